package llm

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

const (
	DefaultRetryBaseDelay   = 2 * time.Second
	DefaultMaxJitterPercent = 25
)

// RetryConfig controls the retrying decorator.
type RetryConfig struct {
	MaxRetries       int
	BaseDelay        time.Duration
	MaxJitterPercent int
}

type retrying struct {
	inner  TextCompletionService
	cfg    RetryConfig
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps svc so that transient transport failures are retried with
// exponential backoff. MaxRetries <= 0 returns svc unchanged.
func WithRetry(svc TextCompletionService, cfg RetryConfig, logger *slog.Logger) TextCompletionService {
	if cfg.MaxRetries <= 0 {
		return svc
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryBaseDelay
	}
	if cfg.MaxJitterPercent < 0 || cfg.MaxJitterPercent > 100 {
		cfg.MaxJitterPercent = DefaultMaxJitterPercent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retrying{inner: svc, cfg: cfg, logger: logger, sleep: sleepCtx}
}

func (r *retrying) Complete(ctx context.Context, modelID, apiKey, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		text, err := r.inner.Complete(ctx, modelID, apiKey, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !IsRetryable(err) || ctx.Err() != nil {
			return "", err
		}
		if attempt >= r.cfg.MaxRetries {
			break
		}
		delay := CalculateDelay(r.cfg.BaseDelay, attempt, r.cfg.MaxJitterPercent)
		r.logger.Warn("llm.retry",
			"model", modelID,
			"attempt", attempt+1,
			"max", r.cfg.MaxRetries,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		if err := r.sleep(ctx, delay); err != nil {
			return "", lastErr
		}
	}
	r.logger.Error("llm.retry.exhausted", "model", modelID, "attempts", r.cfg.MaxRetries+1, "error", lastErr)
	return "", lastErr
}

// CalculateDelay returns base * 2^attempt plus up to maxJitterPercent of jitter.
func CalculateDelay(base time.Duration, attempt int, maxJitterPercent int) time.Duration {
	delay := base * time.Duration(1<<attempt)
	if maxJitterPercent > 0 {
		jitterRange := float64(delay) * float64(maxJitterPercent) / 100.0
		delay += time.Duration(rand.Float64() * jitterRange)
	}
	return delay
}

// IsRetryable reports whether err is a transient transport failure.
// Authentication, unsupported-model and context errors never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrAuthentication) || errors.Is(err, ErrUnsupportedModel) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= 500
	}
	return errors.Is(err, ErrTransport)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
