// Package schema owns question-type descriptors: their Draft-7 documents,
// prompt templates, validation, and storage.
package schema

import (
	"context"
	"encoding/json"
	"strings"
)

// TextPlaceholder marks where batch text goes in a prompt template.
const TextPlaceholder = "{text}"

// Descriptor describes one question type. JSONSchema is the raw Draft-7
// document; callers must treat it as read-only.
type Descriptor struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	JSONSchema     json.RawMessage `json:"json_schema"`
	PromptTemplate string          `json:"prompt_template"`
	Builtin        bool            `json:"builtin"`
	Overridden     bool            `json:"overridden,omitempty"`
}

// Repository resolves question types by id. Unknown ids yield an error
// wrapping common.ErrNotFound.
type Repository interface {
	Get(ctx context.Context, id string) (Descriptor, error)
	List(ctx context.Context) ([]Descriptor, error)
}

// Store is a Repository that also accepts writes.
type Store interface {
	Repository
	Put(ctx context.Context, d Descriptor) error
	Delete(ctx context.Context, id string) error
}

// DefaultPromptTemplate is used for custom types registered without a template.
func DefaultPromptTemplate(description string) string {
	if strings.TrimSpace(description) == "" {
		description = "questions"
	}
	return "Convert the following " + description + " into JSON. Rules:\n" +
		"1. Put the question stem in \"question\".\n" +
		"2. Provide the other fields exactly as the JSON Schema below defines them.\n" +
		"3. Put any explanation in \"analysis\" (optional).\n" +
		"Return a JSON array with one object per question and nothing else.\n\n" +
		"Questions:\n" + TextPlaceholder
}

// BuildPrompt renders the request text for one batch: the template with the
// batch substituted, followed by the schema document.
func BuildPrompt(d Descriptor, batchText string) string {
	var b strings.Builder
	if strings.Contains(d.PromptTemplate, TextPlaceholder) {
		b.WriteString(strings.ReplaceAll(d.PromptTemplate, TextPlaceholder, batchText))
	} else {
		b.WriteString(d.PromptTemplate)
		b.WriteString("\n\n")
		b.WriteString(batchText)
	}
	if len(d.JSONSchema) > 0 {
		b.WriteString("\n\nJSON Schema for each object:\n")
		b.Write(d.JSONSchema)
	}
	return b.String()
}
