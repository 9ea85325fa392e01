package openai

import (
	"log/slog"

	"github.com/FreelineGuide/ExamBulldozer/internal/llm"
)

// Backend serves every model on the chat/completions envelope (OpenAI and
// DeepSeek share it). A client is built per call because credentials
// travel with the request.
type Backend struct {
	opts   llm.RequestOptions
	logger *slog.Logger
}

func New(opts llm.RequestOptions, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{opts: opts.WithDefaults(), logger: logger}
}
