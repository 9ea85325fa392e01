package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/FreelineGuide/ExamBulldozer/internal/common"
)

// FileRepository keeps custom question types in a YAML document. The
// schema is stored as a nested mapping so the file stays hand-editable.
type FileRepository struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	items map[string]Descriptor
}

type fileEntry struct {
	ID             string         `yaml:"id"`
	Name           string         `yaml:"name,omitempty"`
	Description    string         `yaml:"description,omitempty"`
	Schema         map[string]any `yaml:"json_schema"`
	PromptTemplate string         `yaml:"prompt_template,omitempty"`
}

type fileDocument struct {
	QuestionTypes []fileEntry `yaml:"question_types"`
}

// OpenFileRepository loads path. A missing file is an empty repository and
// is created on the first write.
func OpenFileRepository(path string, logger *slog.Logger) (*FileRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &FileRepository{path: path, logger: logger, items: make(map[string]Descriptor)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("schema.file.missing", "path", path)
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, e := range doc.QuestionTypes {
		raw, err := json.Marshal(e.Schema)
		if err != nil {
			return nil, fmt.Errorf("question type %q: encode schema: %w", e.ID, err)
		}
		r.items[e.ID] = Descriptor{
			ID:             e.ID,
			Name:           e.Name,
			Description:    e.Description,
			JSONSchema:     raw,
			PromptTemplate: e.PromptTemplate,
		}
	}
	logger.Info("schema.file.loaded", "path", path, "count", len(r.items))
	return r, nil
}

func (r *FileRepository) Get(_ context.Context, id string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.items[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("question type %q: %w", id, common.ErrNotFound)
	}
	return d, nil
}

func (r *FileRepository) List(_ context.Context) ([]Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.items))
	for _, d := range r.items {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *FileRepository) Put(_ context.Context, d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, had := r.items[d.ID]
	r.items[d.ID] = d
	if err := r.saveLocked(); err != nil {
		if had {
			r.items[d.ID] = prev
		} else {
			delete(r.items, d.ID)
		}
		return err
	}
	return nil
}

func (r *FileRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.items[id]
	if !ok {
		return fmt.Errorf("question type %q: %w", id, common.ErrNotFound)
	}
	delete(r.items, id)
	if err := r.saveLocked(); err != nil {
		r.items[id] = prev
		return err
	}
	return nil
}

// saveLocked writes via a temp file and rename so readers never see a torn file.
func (r *FileRepository) saveLocked() error {
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var doc fileDocument
	for _, id := range ids {
		d := r.items[id]
		var m map[string]any
		if err := json.Unmarshal(d.JSONSchema, &m); err != nil {
			return fmt.Errorf("question type %q: decode schema: %w", id, err)
		}
		doc.QuestionTypes = append(doc.QuestionTypes, fileEntry{
			ID:             d.ID,
			Name:           d.Name,
			Description:    d.Description,
			Schema:         m,
			PromptTemplate: d.PromptTemplate,
		})
	}
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", r.path, err)
	}

	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace %s: %w", r.path, err)
	}
	r.logger.Debug("schema.file.saved", "path", r.path, "count", len(ids))
	return nil
}
