// Package cache memoizes successful completions in a bbolt file so that
// re-running a conversion over the same text does not pay for it twice.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"github.com/FreelineGuide/ExamBulldozer/internal/llm"
)

var bucketCompletions = []byte("completions")

type entry struct {
	Model     string `json:"model"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

// Store is a bbolt-backed completion cache.
type Store struct {
	db     *bbolt.DB
	logger *slog.Logger
}

func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCompletions)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", bucketCompletions, err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Key is sha256(model + NUL + prompt), hex encoded.
func Key(modelID, prompt string) string {
	h := sha256.New()
	h.Write([]byte(modelID))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Store) Get(modelID, prompt string) (string, bool) {
	var text string
	var found bool
	_ = s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCompletions).Get([]byte(Key(modelID, prompt)))
		if data == nil {
			return nil
		}
		var e entry
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		text, found = e.Text, true
		return nil
	})
	return text, found
}

func (s *Store) Put(modelID, prompt, text string) error {
	data, err := json.Marshal(entry{Model: modelID, Text: text, CreatedAt: time.Now().Unix()})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCompletions).Put([]byte(Key(modelID, prompt)), data)
	})
}

// Delete removes the completion stored for modelID and prompt, if any.
func (s *Store) Delete(modelID, prompt string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCompletions).Delete([]byte(Key(modelID, prompt)))
	})
}

// Len reports the number of cached completions.
func (s *Store) Len() int {
	n := 0
	_ = s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketCompletions).Stats().KeyN
		return nil
	})
	return n
}

type cached struct {
	inner llm.TextCompletionService
	store *Store
}

// Wrap returns a TextCompletionService that serves repeats from the store.
// Only successful replies are stored. The returned service is an
// llm.Invalidator, so callers can evict replies they could not use.
func Wrap(svc llm.TextCompletionService, store *Store) llm.TextCompletionService {
	if store == nil {
		return svc
	}
	return &cached{inner: svc, store: store}
}

func (c *cached) Complete(ctx context.Context, modelID, apiKey, prompt string) (string, error) {
	if text, ok := c.store.Get(modelID, prompt); ok {
		c.store.logger.Debug("llm.cache.hit", "model", modelID)
		return text, nil
	}
	text, err := c.inner.Complete(ctx, modelID, apiKey, prompt)
	if err != nil {
		return "", err
	}
	if err := c.store.Put(modelID, prompt, text); err != nil {
		c.store.logger.Warn("llm.cache.put_error", "model", modelID, "error", err)
	}
	return text, nil
}

func (c *cached) Invalidate(modelID, prompt string) {
	if err := c.store.Delete(modelID, prompt); err != nil {
		c.store.logger.Warn("llm.cache.delete_error", "model", modelID, "error", err)
		return
	}
	c.store.logger.Debug("llm.cache.evicted", "model", modelID)
}
