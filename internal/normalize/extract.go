package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON means no JSON value could be recovered from a model reply.
var ErrNoJSON = errors.New("no JSON value found in reply")

// ExtractJSON recovers the JSON payload of a model reply. It strips a
// markdown code fence, then takes the first array or object in the reply
// that decodes, so brackets in surrounding prose are skipped. Trailing commas
// before a closing bracket are dropped when a candidate does not decode
// as-is. Replies with no decodable value return an error wrapping ErrNoJSON.
func ExtractJSON(reply string) ([]byte, error) {
	s := stripFence(strings.TrimSpace(reply))
	if s == "" {
		return nil, ErrNoJSON
	}
	if json.Valid([]byte(s)) {
		return []byte(s), nil
	}

	var firstErr error
	for i := 0; i < len(s); i++ {
		if s[i] != '[' && s[i] != '{' {
			continue
		}
		raw, err := decodeFirst(s[i:])
		if err != nil {
			raw, err = decodeFirst(dropTrailingCommas(s[i:]))
		}
		if err == nil {
			return raw, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		return nil, ErrNoJSON
	}
	return nil, fmt.Errorf("%w: %v", ErrNoJSON, firstErr)
}

// decodeFirst decodes the leading JSON value of s and ignores what follows.
func decodeFirst(s string) ([]byte, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(strings.NewReader(s)).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	start := 3
	// skip the language tag line
	if nl := strings.Index(s[start:], "\n"); nl != -1 {
		start += nl + 1
	} else {
		return ""
	}
	if end := strings.Index(s[start:], "```"); end != -1 {
		return strings.TrimSpace(s[start : start+end])
	}
	return strings.TrimSpace(s[start:])
}

// dropTrailingCommas removes commas that directly precede '}' or ']',
// ignoring anything inside string literals.
func dropTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
