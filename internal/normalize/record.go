package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// AnswerKind tags the canonical answer encodings.
type AnswerKind int

const (
	AnswerNone AnswerKind = iota
	AnswerText
	AnswerLetters
	AnswerBool
)

// Answer is the normalized answer of a record.
type Answer struct {
	Kind    AnswerKind
	Text    string
	Letters []string
	Bool    bool
}

func TextAnswer(s string) Answer        { return Answer{Kind: AnswerText, Text: s} }
func LettersAnswer(ls ...string) Answer { return Answer{Kind: AnswerLetters, Letters: ls} }
func BoolAnswer(b bool) Answer          { return Answer{Kind: AnswerBool, Bool: b} }

// Value returns the JSON form: string, []string, bool or nil.
func (a Answer) Value() any {
	switch a.Kind {
	case AnswerText:
		return a.Text
	case AnswerLetters:
		return a.Letters
	case AnswerBool:
		return a.Bool
	default:
		return nil
	}
}

// String renders the answer for a spreadsheet cell.
func (a Answer) String() string {
	switch a.Kind {
	case AnswerText:
		return a.Text
	case AnswerLetters:
		return strings.Join(a.Letters, ",")
	case AnswerBool:
		if a.Bool {
			return "True"
		}
		return "False"
	default:
		return ""
	}
}

// Record is one normalized, schema-valid question. Fields outside the
// canonical four are kept in Extra.
type Record struct {
	Question string
	Options  map[string]string
	Answer   Answer
	Analysis string
	Extra    map[string]any
}

// OptionKeys returns the option letters in order.
func (r Record) OptionKeys() []string {
	keys := make([]string, 0, len(r.Options))
	for k := range r.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns the record as a generic JSON object.
func (r Record) Map() map[string]any {
	m := make(map[string]any, 4+len(r.Extra))
	for k, v := range r.Extra {
		m[k] = v
	}
	m["question"] = r.Question
	if r.Options != nil {
		m["options"] = r.Options
	}
	if r.Answer.Kind != AnswerNone {
		m["answer"] = r.Answer.Value()
	}
	if r.Analysis != "" {
		m["analysis"] = r.Analysis
	}
	return m
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	rec, err := fromMap(m)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// fromMap converts an element whose options and answer are already in
// canonical shape.
func fromMap(m map[string]any) (Record, error) {
	var r Record
	for k, v := range m {
		switch k {
		case "question":
			r.Question = stringify(v)
		case "analysis":
			r.Analysis = stringify(v)
		case "options":
			opts, ok := v.(map[string]any)
			if !ok {
				return Record{}, fmt.Errorf("options must be an object, got %s", scalarKind(v))
			}
			r.Options = make(map[string]string, len(opts))
			for key, ov := range opts {
				r.Options[key] = stringify(ov)
			}
		case "answer":
			a, err := answerOf(v)
			if err != nil {
				return Record{}, err
			}
			r.Answer = a
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]any)
			}
			r.Extra[k] = v
		}
	}
	return r, nil
}

func answerOf(v any) (Answer, error) {
	switch t := v.(type) {
	case string:
		return TextAnswer(t), nil
	case bool:
		return BoolAnswer(t), nil
	case []any:
		ls := make([]string, 0, len(t))
		for i, x := range t {
			s, ok := x.(string)
			if !ok {
				return Answer{}, fmt.Errorf("answer[%d] must be a string, got %s", i, scalarKind(x))
			}
			ls = append(ls, s)
		}
		return LettersAnswer(ls...), nil
	case []string:
		return LettersAnswer(t...), nil
	case nil:
		return Answer{}, nil
	default:
		return Answer{}, fmt.Errorf("answer must be a string, list or boolean, got %s", scalarKind(v))
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
