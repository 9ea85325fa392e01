package schema

import (
	"context"
	"embed"
	"fmt"

	"github.com/FreelineGuide/ExamBulldozer/constants"
	"github.com/FreelineGuide/ExamBulldozer/internal/common"
)

//go:embed builtin/*.json builtin/*.tmpl
var builtinFS embed.FS

var builtinMeta = map[string]struct{ name, description string }{
	constants.SingleChoice:   {"Single choice", "Choice questions with exactly one correct option"},
	constants.MultipleChoice: {"Multiple choice", "Choice questions with one or more correct options"},
	constants.TrueFalse:      {"True/false", "Statements judged correct or incorrect"},
}

// BuiltinRepository serves the question types compiled into the binary.
type BuiltinRepository struct {
	byID  map[string]Descriptor
	order []string
}

// NewBuiltinRepository loads the embedded descriptors. Every embedded schema
// is checked; a broken one is a build defect and reported as an error.
func NewBuiltinRepository() (*BuiltinRepository, error) {
	r := &BuiltinRepository{byID: make(map[string]Descriptor)}
	for _, id := range constants.BuiltinQuestionTypes() {
		doc, err := builtinFS.ReadFile("builtin/" + id + ".json")
		if err != nil {
			return nil, fmt.Errorf("read builtin schema %s: %w", id, err)
		}
		tmpl, err := builtinFS.ReadFile("builtin/" + id + ".tmpl")
		if err != nil {
			return nil, fmt.Errorf("read builtin template %s: %w", id, err)
		}
		if err := CheckSchemaWellFormed(doc); err != nil {
			return nil, fmt.Errorf("builtin schema %s: %w", id, err)
		}
		meta := builtinMeta[id]
		r.byID[id] = Descriptor{
			ID:             id,
			Name:           meta.name,
			Description:    meta.description,
			JSONSchema:     doc,
			PromptTemplate: string(tmpl),
			Builtin:        true,
		}
		r.order = append(r.order, id)
	}
	return r, nil
}

func (r *BuiltinRepository) Get(_ context.Context, id string) (Descriptor, error) {
	d, ok := r.byID[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("question type %q: %w", id, common.ErrNotFound)
	}
	return d, nil
}

func (r *BuiltinRepository) List(_ context.Context) ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out, nil
}
