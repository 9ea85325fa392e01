package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/FreelineGuide/ExamBulldozer/internal/diag"
	"github.com/FreelineGuide/ExamBulldozer/internal/llm"
)

// checkPrompt is sent by CheckModel. Any reply counts as success.
const checkPrompt = "Reply with the single word OK."

// ModelCheck is the outcome of one credential round trip.
type ModelCheck struct {
	ModelID   string    `json:"model_id"`
	OK        bool      `json:"ok"`
	Code      diag.Code `json:"code,omitempty"`
	Message   string    `json:"message,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
}

// CheckModel sends a short prompt for cfg.ModelID and reports whether the
// model and key are usable. Failures are classified, never returned.
func CheckModel(ctx context.Context, svc llm.TextCompletionService, cfg RunConfig) ModelCheck {
	out := ModelCheck{ModelID: cfg.ModelID}
	if cfg.RequireAPIKey && strings.TrimSpace(cfg.APIKey) == "" {
		out.Code = diag.CodeAuth
		out.Message = "no API key configured"
		return out
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	_, err := svc.Complete(callCtx, cfg.ModelID, cfg.APIKey, checkPrompt)
	out.ElapsedMS = time.Since(start).Milliseconds()
	if err != nil {
		out.Code = diag.Classify(err)
		out.Message = err.Error()
		return out
	}
	out.OK = true
	return out
}
