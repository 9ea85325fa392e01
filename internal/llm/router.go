package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FreelineGuide/ExamBulldozer/internal/common"
)

// Backend speaks one Endpoint envelope.
type Backend interface {
	Complete(ctx context.Context, spec ModelSpec, apiKey, prompt string) (string, error)
}

// Router implements TextCompletionService by resolving the model in a
// Catalog and handing the call to the backend registered for its Endpoint.
type Router struct {
	catalog  *Catalog
	backends map[Endpoint]Backend
	logger   *slog.Logger
}

func NewRouter(catalog *Catalog, logger *slog.Logger) *Router {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{catalog: catalog, backends: make(map[Endpoint]Backend), logger: logger}
}

// Register binds a backend to an endpoint envelope.
func (r *Router) Register(e Endpoint, b Backend) *Router {
	r.backends[e] = b
	return r
}

// Catalog exposes the model catalog.
func (r *Router) Catalog() *Catalog { return r.catalog }

func (r *Router) Complete(ctx context.Context, modelID, apiKey, prompt string) (string, error) {
	spec, err := r.catalog.Lookup(modelID)
	if err != nil {
		return "", err
	}
	b, ok := r.backends[spec.Endpoint]
	if !ok {
		return "", fmt.Errorf("%w: no backend for %s (%s)", ErrUnsupportedModel, spec.Endpoint, spec.ID)
	}
	if spec.RequiresKey && apiKey == "" {
		return "", fmt.Errorf("%w: no credential for provider %s", ErrAuthentication, spec.Provider)
	}

	reqID := uuid.New().String()
	start := time.Now()
	r.logger.Info("llm.complete.start",
		"req_id", reqID,
		"run_id", common.RunIDFromContext(ctx),
		"model", spec.ID,
		"provider", spec.Provider,
		"prompt_len", len(prompt),
	)

	text, err := b.Complete(ctx, spec, apiKey, prompt)
	if err != nil {
		r.logger.Error("llm.complete.error",
			"req_id", reqID,
			"model", spec.ID,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}
	r.logger.Info("llm.complete.ok",
		"req_id", reqID,
		"model", spec.ID,
		"reply_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}
