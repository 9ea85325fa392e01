// Package pipeline runs a conversion: split, plan, dispatch, normalize and
// validate, collecting records and diagnostics in batch order.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FreelineGuide/ExamBulldozer/constants"
	"github.com/FreelineGuide/ExamBulldozer/internal/batch"
	"github.com/FreelineGuide/ExamBulldozer/internal/common"
	"github.com/FreelineGuide/ExamBulldozer/internal/diag"
	"github.com/FreelineGuide/ExamBulldozer/internal/llm"
	"github.com/FreelineGuide/ExamBulldozer/internal/normalize"
	"github.com/FreelineGuide/ExamBulldozer/internal/schema"
	"github.com/FreelineGuide/ExamBulldozer/internal/splitter"
	"github.com/FreelineGuide/ExamBulldozer/internal/tokenizer"
)

const DefaultRequestTimeout = 30 * time.Second

// RunConfig carries everything one run needs; the orchestrator keeps no
// per-run state of its own.
type RunConfig struct {
	QuestionType   string
	ModelID        string
	APIKey         string
	RequireAPIKey  bool
	MaxModelTokens int
	SafetyMargin   float64
	Encoding       string
	Concurrency    int
	RequestTimeout time.Duration
}

// RunConfigFor fills the model-derived fields from spec.
func RunConfigFor(spec llm.ModelSpec, apiKey, questionType string) RunConfig {
	return RunConfig{
		QuestionType:   questionType,
		ModelID:        spec.ID,
		APIKey:         apiKey,
		RequireAPIKey:  spec.RequiresKey,
		MaxModelTokens: spec.MaxTokens,
		Encoding:       spec.Encoding,
		Concurrency:    1,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// Settings are process-wide run defaults layered over the model catalog.
type Settings struct {
	SafetyMargin   float64
	MaxModelTokens int // 0 keeps the catalog ceiling
	Concurrency    int
	RequestTimeout time.Duration
	Keys           func(provider string) string
}

// RunConfig resolves modelID and builds the config for one run. apiKey wins
// over the configured provider key. An unknown model is a configuration error.
func (s Settings) RunConfig(catalog *llm.Catalog, modelID, questionType, apiKey string) (RunConfig, error) {
	spec, err := catalog.Lookup(modelID)
	if err != nil {
		return RunConfig{}, common.NewConfigError("model", err)
	}
	if apiKey == "" && s.Keys != nil {
		apiKey = s.Keys(string(spec.Provider))
	}
	cfg := RunConfigFor(spec, apiKey, questionType)
	cfg.SafetyMargin = s.SafetyMargin
	if s.MaxModelTokens > 0 {
		cfg.MaxModelTokens = s.MaxModelTokens
	}
	if s.Concurrency > 0 {
		cfg.Concurrency = s.Concurrency
	}
	if s.RequestTimeout > 0 {
		cfg.RequestTimeout = s.RequestTimeout
	}
	return cfg, nil
}

func (c RunConfig) limits() batch.Limits {
	return batch.Limits{MaxModelTokens: c.MaxModelTokens, SafetyMargin: c.SafetyMargin}
}

// Result is what a run produced. Records and Errors are in batch order.
type Result struct {
	RunID        string             `json:"run_id"`
	QuestionType string             `json:"question_type"`
	ModelID      string             `json:"model_id"`
	State        constants.RunState `json:"state"`
	Records      []normalize.Record `json:"records"`
	Errors       []diag.Error       `json:"errors"`
	Batches      int                `json:"batches"`
	Cancelled    bool               `json:"cancelled"`
	Elapsed      time.Duration      `json:"elapsed_ns"`
}

// Progress is reported after every finished batch.
type Progress struct {
	Done   int
	Total  int
	Errors int
}

// Prepared is a planned run, ready to dispatch.
type Prepared struct {
	Descriptor schema.Descriptor
	Plan       batch.Plan
	Units      []splitter.Unit
	validator  *schema.Validator
}

type Orchestrator struct {
	svc        llm.TextCompletionService
	schemas    schema.Repository
	tokens     *tokenizer.Tokenizer
	estimate   tokenizer.Estimator
	splitter   *splitter.Splitter
	onProgress func(Progress)
	logger     *slog.Logger
}

type Option func(*Orchestrator)

// WithTokenizer sets the tokenizer used for budget estimates.
func WithTokenizer(t *tokenizer.Tokenizer) Option {
	return func(o *Orchestrator) { o.tokens = t }
}

// WithEstimator overrides token estimation regardless of encoding.
func WithEstimator(e tokenizer.Estimator) Option {
	return func(o *Orchestrator) { o.estimate = e }
}

func WithSplitter(s *splitter.Splitter) Option {
	return func(o *Orchestrator) { o.splitter = s }
}

// WithProgress registers a callback invoked after each batch. Calls are
// serialized.
func WithProgress(fn func(Progress)) Option {
	return func(o *Orchestrator) { o.onProgress = fn }
}

func NewOrchestrator(svc llm.TextCompletionService, schemas schema.Repository, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{svc: svc, schemas: schemas, logger: logger}
	for _, opt := range opts {
		opt(o)
	}
	if o.splitter == nil {
		o.splitter = splitter.New(splitter.DefaultWindow)
	}
	if o.tokens == nil && o.estimate == nil {
		o.tokens = tokenizer.New(logger)
	}
	return o
}

func (o *Orchestrator) estimator(encoding string) tokenizer.Estimator {
	if o.estimate != nil {
		return o.estimate
	}
	return o.tokens.For(encoding)
}

// Prepare resolves the question type, checks its schema and plans batches.
// Every error it returns is a configuration error.
func (o *Orchestrator) Prepare(ctx context.Context, cfg RunConfig, text string) (*Prepared, error) {
	if cfg.RequireAPIKey && strings.TrimSpace(cfg.APIKey) == "" {
		return nil, common.ConfigErrorf("no API key configured for model %q", cfg.ModelID)
	}
	desc, err := o.schemas.Get(ctx, cfg.QuestionType)
	if err != nil {
		return nil, common.NewConfigError(fmt.Sprintf("question type %q", cfg.QuestionType), err)
	}
	v, err := schema.Compile(desc.JSONSchema)
	if err != nil {
		return nil, err
	}

	units := o.splitter.Split(text)
	planner := batch.NewPlanner(o.estimator(cfg.Encoding), o.logger)
	plan, err := planner.Plan(units, desc.PromptTemplate, desc.JSONSchema, cfg.limits())
	if err != nil {
		return nil, err
	}
	return &Prepared{Descriptor: desc, Plan: plan, Units: units, validator: v}, nil
}

// Run converts text. The returned error is non-nil only for configuration
// errors, in which case the result is Aborted and nothing was dispatched.
// Every other failure is recorded in Result.Errors.
func (o *Orchestrator) Run(ctx context.Context, cfg RunConfig, text string) (*Result, error) {
	start := time.Now()
	res := &Result{
		RunID:        uuid.New().String(),
		QuestionType: cfg.QuestionType,
		ModelID:      cfg.ModelID,
		State:        constants.RunStatePlanning,
		Records:      []normalize.Record{},
		Errors:       []diag.Error{},
	}
	ctx = common.WithRunID(ctx, res.RunID)
	log := o.logger.With("run_id", res.RunID)
	log.Info("pipeline.run.start",
		"question_type", cfg.QuestionType,
		"model", cfg.ModelID,
		"max_tokens", cfg.MaxModelTokens,
		"margin", cfg.SafetyMargin,
		"text_len", len(text),
	)

	prep, err := o.Prepare(ctx, cfg, text)
	if err != nil {
		res.State = constants.RunStateAborted
		res.Elapsed = time.Since(start)
		log.Error("pipeline.run.aborted", "error", err)
		return res, err
	}
	res.Batches = len(prep.Plan.Batches)

	o.dispatch(ctx, cfg, prep, res, log)

	res.State = constants.RunStateDone
	res.Elapsed = time.Since(start)
	log.Info("pipeline.run.done",
		"batches", res.Batches,
		"records", len(res.Records),
		"errors", len(res.Errors),
		"cancelled", res.Cancelled,
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
	return res, nil
}

type outcome struct {
	records []normalize.Record
	errs    []diag.Error
}

func (o *Orchestrator) dispatch(ctx context.Context, cfg RunConfig, prep *Prepared, res *Result, log *slog.Logger) {
	total := len(prep.Plan.Batches)
	if total == 0 {
		return
	}
	norm := normalize.New(prep.validator, o.logger)
	slots := make([]*outcome, total)

	var (
		mu       sync.Mutex
		done     int
		errCount int
	)
	report := func(oc *outcome) {
		mu.Lock()
		defer mu.Unlock()
		done++
		errCount += len(oc.errs)
		if o.onProgress != nil {
			o.onProgress(Progress{Done: done, Total: total, Errors: errCount})
		}
	}

	handle := func(callCtx context.Context, j job) {
		oc := o.runBatch(callCtx, cfg, j, norm, log)
		slots[j.batch.Index] = oc
		report(oc)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	q := newDispatchQueue(ctx, handle, log, withWorkers(cfg.Concurrency), withProcessTimeout(timeout))

	res.State = constants.RunStateDispatching
	for _, b := range prep.Plan.Batches {
		j := job{batch: b, prompt: schema.BuildPrompt(prep.Descriptor, b.Text())}
		if err := q.enqueue(ctx, j); err != nil {
			log.Warn("pipeline.dispatch.stopped", "next_batch", b.Index, "error", err)
			res.Cancelled = true
			break
		}
	}
	q.shutdown()

	for i, oc := range slots {
		if oc == nil {
			res.Errors = append(res.Errors, diag.Error{
				Stage:       constants.StageRequest,
				BatchIndex:  i,
				RecordIndex: -1,
				Message:     "batch not dispatched: run cancelled",
				Code:        diag.CodeCancel,
			})
			continue
		}
		res.Records = append(res.Records, oc.records...)
		res.Errors = append(res.Errors, oc.errs...)
	}
}

func (o *Orchestrator) runBatch(ctx context.Context, cfg RunConfig, j job, norm *normalize.Normalizer, log *slog.Logger) *outcome {
	idx := j.batch.Index
	start := time.Now()
	log.Debug("pipeline.batch.state", "batch", idx, "state", constants.RunStateDispatching, "tokens", j.batch.Tokens)

	reply, err := o.svc.Complete(ctx, cfg.ModelID, cfg.APIKey, j.prompt)
	if err != nil {
		log.Warn("pipeline.batch.dispatch_error",
			"batch", idx,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return &outcome{errs: []diag.Error{diag.Request(idx, err)}}
	}

	log.Debug("pipeline.batch.state", "batch", idx, "state", constants.RunStateNormalizing)
	records, errs := norm.Normalize(idx, reply)
	log.Debug("pipeline.batch.state", "batch", idx, "state", constants.RunStateValidating)
	if len(errs) > 0 {
		if inv, ok := o.svc.(llm.Invalidator); ok {
			inv.Invalidate(cfg.ModelID, j.prompt)
			log.Debug("pipeline.batch.reply_evicted", "batch", idx)
		}
	}

	log.Info("pipeline.batch.ok",
		"batch", idx,
		"records", len(records),
		"errors", len(errs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &outcome{records: records, errs: errs}
}
