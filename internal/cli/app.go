package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/FreelineGuide/ExamBulldozer/internal/common"
	"github.com/FreelineGuide/ExamBulldozer/internal/llm"
	"github.com/FreelineGuide/ExamBulldozer/internal/llm/anthropic"
	"github.com/FreelineGuide/ExamBulldozer/internal/llm/cache"
	"github.com/FreelineGuide/ExamBulldozer/internal/llm/dashscope"
	"github.com/FreelineGuide/ExamBulldozer/internal/llm/gemini"
	"github.com/FreelineGuide/ExamBulldozer/internal/llm/openai"
	"github.com/FreelineGuide/ExamBulldozer/internal/pipeline"
	"github.com/FreelineGuide/ExamBulldozer/internal/repository"
	"github.com/FreelineGuide/ExamBulldozer/internal/schema"
	"github.com/FreelineGuide/ExamBulldozer/internal/splitter"
	"github.com/FreelineGuide/ExamBulldozer/internal/tokenizer"
)

// app holds the collaborators shared by every command.
type app struct {
	cfg     *common.Config
	logger  *slog.Logger
	models  *llm.Catalog
	svc     llm.TextCompletionService
	schemas *schema.Catalog
	tokens  *tokenizer.Tokenizer
	closers []func()
}

func newApp(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &app{cfg: cfg, logger: logger, tokens: tokenizer.New(logger)}

	a.models = llm.DefaultCatalog()
	for provider, url := range cfg.LLM.BaseURLs {
		a.models.OverrideBaseURL(llm.Provider(provider), url)
	}

	opts := llm.RequestOptions{
		Temperature: cfg.LLM.Temperature,
		HTTPClient:  &http.Client{Timeout: cfg.LLM.Timeout},
	}
	router := llm.NewRouter(a.models, logger).
		Register(llm.EndpointChatCompletions, openai.New(opts, logger)).
		Register(llm.EndpointDashScope, dashscope.New(opts, logger)).
		Register(llm.EndpointAnthropicMessages, anthropic.New(opts, logger)).
		Register(llm.EndpointGeminiGenerate, gemini.New(opts, logger))

	a.svc = llm.WithRetry(router, llm.RetryConfig{
		MaxRetries:       cfg.LLM.MaxRetries,
		BaseDelay:        cfg.LLM.RetryDelay,
		MaxJitterPercent: llm.DefaultMaxJitterPercent,
	}, logger)

	if cfg.LLM.CachePath != "" {
		store, err := cache.Open(cfg.LLM.CachePath, logger)
		if err != nil {
			return nil, fmt.Errorf("open completion cache: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		a.svc = cache.Wrap(a.svc, store)
	}

	custom, err := a.openSchemaStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	builtin, err := schema.NewBuiltinRepository()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.schemas = schema.NewCatalog(builtin, custom, logger)
	return a, nil
}

// openSchemaStore returns the custom question type store, nil for builtin only.
func (a *app) openSchemaStore(ctx context.Context) (schema.Store, error) {
	sc := a.cfg.Schemas
	switch sc.Source {
	case "file":
		return schema.OpenFileRepository(sc.Path, a.logger)
	case "sql":
		db, err := repository.Open(ctx, repository.Config{
			Driver:          sc.Driver,
			DSN:             sc.DSN,
			MaxConns:        4,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
		}, a.logger)
		if err != nil {
			return nil, common.NewConfigError("open schema database", err)
		}
		a.closers = append(a.closers, func() { db.Close(a.logger) })
		if err := repository.HealthCheck(ctx, db, 5*time.Second, a.logger); err != nil {
			return nil, common.NewConfigError("schema database", err)
		}
		repo := repository.NewQuestionTypeRepository(db, a.logger)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, nil
	}
}

func (a *app) settings() pipeline.Settings {
	return pipeline.Settings{
		SafetyMargin:   a.cfg.Pipeline.SafetyMargin,
		MaxModelTokens: a.cfg.Pipeline.MaxModelTokens,
		Concurrency:    a.cfg.Pipeline.Concurrency,
		RequestTimeout: a.cfg.LLM.Timeout,
		Keys:           a.cfg.LLM.APIKeyFor,
	}
}

func (a *app) orchestrator(opts ...pipeline.Option) *pipeline.Orchestrator {
	base := []pipeline.Option{
		pipeline.WithTokenizer(a.tokens),
		pipeline.WithSplitter(splitter.New(a.cfg.Pipeline.SplitWindow)),
	}
	return pipeline.NewOrchestrator(a.svc, a.schemas, a.logger, append(base, opts...)...)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
