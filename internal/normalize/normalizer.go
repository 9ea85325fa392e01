// Package normalize turns raw model replies into canonical, schema-valid
// records, isolating faults to the record (or batch) that caused them.
package normalize

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/FreelineGuide/ExamBulldozer/constants"
	"github.com/FreelineGuide/ExamBulldozer/internal/diag"
	"github.com/FreelineGuide/ExamBulldozer/internal/schema"
)

const (
	// MaxOptions caps options converted from a list (A..Z).
	MaxOptions = 26
	// ItemsField is the wrapper key some models put around the record list.
	ItemsField = "items"
)

// Normalizer is immutable and safe for concurrent use across batches.
type Normalizer struct {
	validator *schema.Validator
	logger    *slog.Logger
}

// New returns a Normalizer validating against v. A nil v skips schema
// validation and the semantic cross-check still runs.
func New(v *schema.Validator, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{validator: v, logger: logger}
}

type fieldError struct {
	path string
	msg  string
}

func (e *fieldError) Error() string { return e.path + ": " + e.msg }

// Normalize parses one batch reply. It returns the records that survived
// every stage plus one diagnostic per rejected record or failed batch.
func (n *Normalizer) Normalize(batch int, reply string) ([]Record, []diag.Error) {
	payload, err := ExtractJSON(reply)
	if err != nil {
		n.logger.Warn("normalize.parse_error", "batch", batch, "error", err, "reply_len", len(reply))
		return nil, []diag.Error{{
			Stage:       constants.StageParsing,
			BatchIndex:  batch,
			RecordIndex: -1,
			Message:     err.Error(),
		}}
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, []diag.Error{{
			Stage:       constants.StageParsing,
			BatchIndex:  batch,
			RecordIndex: -1,
			Message:     err.Error(),
		}}
	}

	elements, err := unwrap(doc)
	if err != nil {
		return nil, []diag.Error{{
			Stage:       constants.StageNormalization,
			BatchIndex:  batch,
			RecordIndex: -1,
			Message:     err.Error(),
		}}
	}

	var (
		records []Record
		errs    []diag.Error
	)
	for i, el := range elements {
		rec, derr := n.element(el)
		if derr != nil {
			derr.BatchIndex = batch
			derr.RecordIndex = i
			errs = append(errs, *derr)
			continue
		}
		records = append(records, rec)
	}

	n.logger.Debug("normalize.batch",
		"batch", batch,
		"elements", len(elements),
		"records", len(records),
		"errors", len(errs),
	)
	return records, errs
}

func (n *Normalizer) element(el any) (Record, *diag.Error) {
	obj, ok := el.(map[string]any)
	if !ok {
		return Record{}, &diag.Error{
			Stage:   constants.StageNormalization,
			Message: fmt.Sprintf("record must be an object, got %s", kindOf(el)),
		}
	}

	norm, err := normalizeElement(obj)
	if err != nil {
		return Record{}, &diag.Error{Stage: constants.StageNormalization, Message: err.msg, Path: err.path}
	}

	if n.validator != nil {
		if v := n.validator.ValidateAndCollect(norm); v != nil {
			return Record{}, &diag.Error{
				Stage:      constants.StageSchemaValidation,
				Message:    v.Message,
				Path:       v.InstancePath,
				SchemaPath: v.SchemaPath,
			}
		}
	}

	rec, cerr := fromMap(norm)
	if cerr != nil {
		return Record{}, &diag.Error{Stage: constants.StageNormalization, Message: cerr.Error()}
	}
	if err := crossCheck(rec); err != nil {
		return Record{}, &diag.Error{Stage: constants.StageNormalization, Message: err.msg, Path: err.path}
	}
	return rec, nil
}

// unwrap resolves the top-level reply into the list of candidate elements.
func unwrap(doc any) ([]any, error) {
	switch t := doc.(type) {
	case []any:
		return t, nil
	case map[string]any:
		if items, ok := t[ItemsField].([]any); ok {
			return items, nil
		}
		return []any{t}, nil
	default:
		return nil, fmt.Errorf("reply must be an object or a list of objects, got %s", kindOf(doc))
	}
}

// normalizeElement returns a copy of obj with options and answer in
// canonical shape.
func normalizeElement(obj map[string]any) (map[string]any, *fieldError) {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}

	v, present := obj["options"]
	if opts, err := normalizeOptions(ShapeOf(v, present)); err != nil {
		return nil, err
	} else if opts != nil {
		out["options"] = opts
	}

	v, present = obj["answer"]
	if ans, err := normalizeAnswer(ShapeOf(v, present)); err != nil {
		return nil, err
	} else if present {
		out["answer"] = ans
	}
	return out, nil
}

func normalizeOptions(s Shape) (map[string]any, *fieldError) {
	switch s.Kind {
	case ShapeAbsent:
		return nil, nil
	case ShapeSequence:
		out := make(map[string]any, min(len(s.Seq), MaxOptions))
		for i, v := range s.Seq {
			if i >= MaxOptions {
				break
			}
			out[string(rune('A'+i))] = v
		}
		return out, nil
	case ShapeMapping:
		keys := make([]string, 0, len(s.Map))
		for k := range s.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			up := strings.ToUpper(strings.TrimSpace(k))
			if _, dup := out[up]; dup {
				return nil, &fieldError{path: "/options", msg: fmt.Sprintf("option key %q collides with another key once uppercased", k)}
			}
			out[up] = s.Map[k]
		}
		return out, nil
	default:
		return nil, &fieldError{path: "/options", msg: fmt.Sprintf("options must be a list or an object, got %s", scalarKind(s.Scalar))}
	}
}

func normalizeAnswer(s Shape) (any, *fieldError) {
	switch s.Kind {
	case ShapeAbsent:
		return nil, nil
	case ShapeScalar:
		switch t := s.Scalar.(type) {
		case string:
			return strings.ToUpper(strings.TrimSpace(t)), nil
		case bool:
			return t, nil
		}
		return nil, &fieldError{path: "/answer", msg: fmt.Sprintf("answer must be a string, list or boolean, got %s", scalarKind(s.Scalar))}
	case ShapeSequence:
		out := make([]any, 0, len(s.Seq))
		for i, v := range s.Seq {
			str, ok := v.(string)
			if !ok {
				return nil, &fieldError{path: fmt.Sprintf("/answer/%d", i), msg: fmt.Sprintf("answer entries must be strings, got %s", kindOf(v))}
			}
			out = append(out, strings.ToUpper(strings.TrimSpace(str)))
		}
		return out, nil
	default:
		return nil, &fieldError{path: "/answer", msg: "answer must be a string, list or boolean, got object"}
	}
}

// crossCheck verifies that option keys run contiguously from A whenever
// options are present, and that every letter answer names an option.
func crossCheck(r Record) *fieldError {
	if len(r.Options) == 0 {
		return nil
	}
	for i, k := range r.OptionKeys() {
		if want := string(rune('A' + i)); k != want {
			return &fieldError{path: "/options", msg: fmt.Sprintf("option keys must run from A without gaps, found %s where %s was expected", k, want)}
		}
	}
	letters, ok := answerLetters(r.Answer)
	if !ok {
		return nil
	}
	for _, l := range letters {
		if _, ok := r.Options[l]; !ok {
			return &fieldError{path: "/answer", msg: fmt.Sprintf("answer %s does not name an option", l)}
		}
	}
	return nil
}

func answerLetters(a Answer) ([]string, bool) {
	switch a.Kind {
	case AnswerText:
		if isLetter(a.Text) {
			return []string{a.Text}, true
		}
	case AnswerLetters:
		if len(a.Letters) == 0 {
			return nil, false
		}
		for _, l := range a.Letters {
			if !isLetter(l) {
				return nil, false
			}
		}
		return a.Letters, true
	}
	return nil, false
}

func isLetter(s string) bool {
	return len(s) == 1 && s[0] >= 'A' && s[0] <= 'Z'
}

func kindOf(v any) string {
	switch v.(type) {
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return scalarKind(v)
	}
}
