package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/FreelineGuide/ExamBulldozer/constants"
	"github.com/FreelineGuide/ExamBulldozer/internal/common"
)

// ErrReadOnly is returned when deleting a built-in type that has no override
// or writing to a store-less catalog.
var ErrReadOnly = errors.New("question type is read-only")

// Catalog layers a custom Store over the built-in types. A store entry with a
// built-in id overrides that type's prompt, schema, name or description;
// deleting it restores the built-in. Built-ins themselves are never removed.
type Catalog struct {
	builtin *BuiltinRepository
	custom  Store // may be nil
	logger  *slog.Logger
}

// NewCatalog wraps builtin and an optional custom store.
func NewCatalog(builtin *BuiltinRepository, custom Store, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{builtin: builtin, custom: custom, logger: logger}
}

// Get resolves id after canonicalizing aliases such as "单选题".
func (c *Catalog) Get(ctx context.Context, id string) (Descriptor, error) {
	canonical, _ := constants.CanonicalQuestionType(id)
	if d, err := c.builtin.Get(ctx, canonical); err == nil {
		return c.overlay(ctx, d), nil
	}
	if c.custom == nil {
		return Descriptor{}, fmt.Errorf("question type %q: %w", id, common.ErrNotFound)
	}
	return c.custom.Get(ctx, canonical)
}

// overlay applies a stored override to the built-in d. A store failure
// leaves the built-in in effect.
func (c *Catalog) overlay(ctx context.Context, d Descriptor) Descriptor {
	if c.custom == nil {
		return d
	}
	o, err := c.custom.Get(ctx, d.ID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			c.logger.Warn("schema.catalog.override_unavailable", "id", d.ID, "error", err)
		}
		return d
	}
	o.Builtin = true
	o.Overridden = true
	return o
}

func (c *Catalog) List(ctx context.Context) ([]Descriptor, error) {
	out, err := c.builtin.List(ctx)
	if err != nil {
		return nil, err
	}
	if c.custom == nil {
		return out, nil
	}
	custom, err := c.custom.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list custom question types: %w", err)
	}
	overrides := make(map[string]Descriptor)
	for _, d := range custom {
		if constants.IsBuiltin(d.ID) {
			d.Builtin, d.Overridden = true, true
			overrides[d.ID] = d
			continue
		}
		out = append(out, d)
	}
	for i, d := range out {
		if o, ok := overrides[d.ID]; ok {
			out[i] = o
		}
	}
	return out, nil
}

// Put validates and stores a question type. The schema must pass
// CheckSchemaWellFormed; an empty template gets DefaultPromptTemplate.
// For a built-in id, empty fields keep the built-in values.
func (c *Catalog) Put(ctx context.Context, d Descriptor) error {
	d.ID = strings.TrimSpace(d.ID)
	v := common.NewValidator().
		Field("id", d.ID, common.Required, common.QuestionTypeID).
		Field("name", d.Name, common.MaxLength(128)).
		Field("description", d.Description, common.MaxLength(1024))
	if err := common.ValidateAndReturnError(v); err != nil {
		return err
	}
	if c.custom == nil {
		return fmt.Errorf("no custom question type store configured: %w", ErrReadOnly)
	}
	if constants.IsBuiltin(d.ID) {
		base, err := c.builtin.Get(ctx, d.ID)
		if err != nil {
			return err
		}
		d = mergeOverride(base, d)
	}
	if err := CheckSchemaWellFormed(d.JSONSchema); err != nil {
		return err
	}
	if strings.TrimSpace(d.PromptTemplate) == "" {
		d.PromptTemplate = DefaultPromptTemplate(d.Description)
	}
	if d.Name == "" {
		d.Name = d.ID
	}
	d.Builtin, d.Overridden = false, false

	if err := c.custom.Put(ctx, d); err != nil {
		return fmt.Errorf("store question type %q: %w", d.ID, err)
	}
	c.logger.Info("schema.catalog.put", "id", d.ID, "builtin", constants.IsBuiltin(d.ID))
	return nil
}

func mergeOverride(base, d Descriptor) Descriptor {
	out := base
	if d.Name != "" {
		out.Name = d.Name
	}
	if d.Description != "" {
		out.Description = d.Description
	}
	if strings.TrimSpace(d.PromptTemplate) != "" {
		out.PromptTemplate = d.PromptTemplate
	}
	if raw := strings.TrimSpace(string(d.JSONSchema)); raw != "" && raw != "null" {
		out.JSONSchema = d.JSONSchema
	}
	return out
}

// Delete removes a custom question type, or the override of a built-in one.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	builtin := constants.IsBuiltin(id)
	if c.custom == nil {
		if builtin {
			return fmt.Errorf("question type %q: %w", id, ErrReadOnly)
		}
		return fmt.Errorf("question type %q: %w", id, common.ErrNotFound)
	}
	if builtin {
		if _, err := c.custom.Get(ctx, id); errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("question type %q has no override: %w", id, ErrReadOnly)
		}
	}
	if err := c.custom.Delete(ctx, id); err != nil {
		return err
	}
	c.logger.Info("schema.catalog.delete", "id", id, "builtin", builtin)
	return nil
}
