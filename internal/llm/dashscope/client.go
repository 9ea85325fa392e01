// Package dashscope talks to Alibaba DashScope's text-generation endpoint,
// which serves the Qwen models.
package dashscope

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/FreelineGuide/ExamBulldozer/internal/llm"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model string `json:"model"`
	Input struct {
		Messages []message `json:"messages"`
	} `json:"input"`
	Parameters parameters `json:"parameters"`
}

type parameters struct {
	Temperature  float32 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	ResultFormat string  `json:"result_format"`
}

type response struct {
	Output struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"output"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

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

func (b *Backend) Complete(ctx context.Context, spec llm.ModelSpec, apiKey, prompt string) (string, error) {
	var req request
	req.Model = spec.ID
	req.Input.Messages = []message{
		{Role: "system", Content: b.opts.SystemPrompt},
		{Role: "user", Content: prompt},
	}
	req.Parameters = parameters{
		Temperature:  b.opts.Temperature,
		MaxTokens:    b.opts.MaxOutputTokens,
		ResultFormat: "text",
	}

	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	raw, err := llm.SendJSON(ctx, b.opts.HTTPClient, spec.Provider, spec.BaseURL, req, headers, b.logger)
	if err != nil {
		return "", err
	}

	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%w: %s: decode response: %w", llm.ErrTransport, spec.Provider, err)
	}
	if resp.Code != "" {
		return "", fmt.Errorf("%w: %s: %s: %s", llm.ErrTransport, spec.Provider, resp.Code, resp.Message)
	}
	b.logger.Debug("llm.dashscope.reply",
		"request_id", resp.RequestID,
		"finish_reason", resp.Output.FinishReason,
	)
	return strings.TrimSpace(resp.Output.Text), nil
}
