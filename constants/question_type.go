package constants

import (
	"strings"
)

const (
	SingleChoice   = "single_choice"
	MultipleChoice = "multiple_choice"
	TrueFalse      = "true_false"
)

var builtinQuestionTypes = []string{
	SingleChoice,
	MultipleChoice,
	TrueFalse,
}

// BuiltinQuestionTypes returns the ids of the question types that ship with the binary.
func BuiltinQuestionTypes() []string {
	result := make([]string, len(builtinQuestionTypes))
	copy(result, builtinQuestionTypes)
	return result
}

// IsBuiltin reports whether id names a shipped question type.
func IsBuiltin(id string) bool {
	for _, t := range builtinQuestionTypes {
		if t == id {
			return true
		}
	}
	return false
}

// CanonicalQuestionType maps user-facing names onto question type ids.
// Unknown inputs are returned trimmed and lowercased with ok=false so custom
// ids still resolve through the repository.
func CanonicalQuestionType(input string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}

	synonyms := map[string]string{
		"单选题":             SingleChoice,
		"单选":              SingleChoice,
		"single":          SingleChoice,
		"single-choice":   SingleChoice,
		"多选题":             MultipleChoice,
		"多选":              MultipleChoice,
		"multiple":        MultipleChoice,
		"multiple-choice": MultipleChoice,
		"multi":           MultipleChoice,
		"判断题":             TrueFalse,
		"判断":              TrueFalse,
		"true-false":      TrueFalse,
		"truefalse":       TrueFalse,
		"tf":              TrueFalse,
	}
	if id, ok := synonyms[normalized]; ok {
		return id, true
	}

	for _, t := range builtinQuestionTypes {
		if normalized == t {
			return t, true
		}
	}
	return normalized, false
}
