package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FreelineGuide/ExamBulldozer/internal/common"
	"github.com/FreelineGuide/ExamBulldozer/internal/schema"
)

const questionTypesDDL = `CREATE TABLE IF NOT EXISTS question_types (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	json_schema     TEXT NOT NULL,
	prompt_template TEXT NOT NULL,
	updated_at      TIMESTAMP NOT NULL
)`

// QuestionTypeRepository stores custom question types in SQL.
type QuestionTypeRepository interface {
	schema.Store
	Migrate(ctx context.Context) error
}

type questionTypeRepository struct {
	db     *DB
	logger *slog.Logger
}

// NewQuestionTypeRepository returns a SQL-backed schema.Store. Call Migrate
// once before use.
func NewQuestionTypeRepository(db *DB, logger *slog.Logger) QuestionTypeRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &questionTypeRepository{db: db, logger: logger}
}

// Migrate creates the question_types table when missing.
func (r *questionTypeRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.SQL.ExecContext(ctx, questionTypesDDL); err != nil {
		r.logger.Error("repository.question_types.migrate_error", "error", err)
		return fmt.Errorf("migrate question_types: %w", err)
	}
	return nil
}

func (r *questionTypeRepository) Get(ctx context.Context, id string) (schema.Descriptor, error) {
	row := r.db.SQL.QueryRowContext(ctx, r.db.bind(
		`SELECT id, name, description, json_schema, prompt_template FROM question_types WHERE id = ?`), id)
	d, err := scanDescriptor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Descriptor{}, fmt.Errorf("question type %q: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return schema.Descriptor{}, fmt.Errorf("get question type %q: %w", id, err)
	}
	return d, nil
}

func (r *questionTypeRepository) List(ctx context.Context) ([]schema.Descriptor, error) {
	rows, err := r.db.SQL.QueryContext(ctx,
		`SELECT id, name, description, json_schema, prompt_template FROM question_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list question types: %w", err)
	}
	defer rows.Close()

	var out []schema.Descriptor
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question type: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *questionTypeRepository) Put(ctx context.Context, d schema.Descriptor) error {
	_, err := r.db.SQL.ExecContext(ctx, r.db.bind(`
		INSERT INTO question_types (id, name, description, json_schema, prompt_template, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			json_schema = excluded.json_schema,
			prompt_template = excluded.prompt_template,
			updated_at = excluded.updated_at`),
		d.ID, d.Name, d.Description, string(d.JSONSchema), d.PromptTemplate, time.Now().UTC())
	if err != nil {
		r.logger.Error("repository.question_types.put_error", "id", d.ID, "error", err)
		return fmt.Errorf("upsert question type %q: %w", d.ID, err)
	}
	return nil
}

func (r *questionTypeRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.SQL.ExecContext(ctx, r.db.bind(`DELETE FROM question_types WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete question type %q: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("question type %q: %w", id, common.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDescriptor(s rowScanner) (schema.Descriptor, error) {
	var d schema.Descriptor
	var doc string
	if err := s.Scan(&d.ID, &d.Name, &d.Description, &doc, &d.PromptTemplate); err != nil {
		return schema.Descriptor{}, err
	}
	d.JSONSchema = []byte(doc)
	return d, nil
}
