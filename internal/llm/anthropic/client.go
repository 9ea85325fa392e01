// Package anthropic serves Claude models through the Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/FreelineGuide/ExamBulldozer/internal/llm"
)

// DefaultMaxTokens is sent when RequestOptions leaves the output cap unset;
// the Messages API requires one.
const DefaultMaxTokens = 4096

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
	opts := []anthropic.ClientOption{anthropic.WithHTTPClient(b.opts.HTTPClient)}
	if spec.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(spec.BaseURL))
	}
	client := anthropic.NewClient(apiKey, opts...)

	maxTokens := b.opts.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	temp := b.opts.Temperature

	resp, err := client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:  anthropic.Model(spec.ID),
		System: b.opts.SystemPrompt,
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewTextMessageContent(prompt),
				},
			},
		},
		MaxTokens:   maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		b.logger.Debug("llm.anthropic.error", "model", spec.ID, "error", err)
		return "", classify(spec.Provider, err)
	}

	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Text != nil {
			sb.WriteString(*c.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: %s: no text content in response", llm.ErrTransport, spec.Provider)
	}
	return strings.TrimSpace(sb.String()), nil
}

// errorTypeStatus maps Messages API error types onto HTTP status codes.
var errorTypeStatus = map[string]int{
	"invalid_request_error": http.StatusBadRequest,
	"authentication_error":  http.StatusUnauthorized,
	"permission_error":      http.StatusForbidden,
	"not_found_error":       http.StatusNotFound,
	"request_too_large":     http.StatusRequestEntityTooLarge,
	"rate_limit_error":      http.StatusTooManyRequests,
	"api_error":             http.StatusInternalServerError,
	"overloaded_error":      529,
}

func classify(provider llm.Provider, err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		if status, ok := errorTypeStatus[string(apiErr.Type)]; ok {
			return &llm.StatusError{Provider: provider, Status: status, Body: apiErr.Message}
		}
	}
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode > 0 {
		return &llm.StatusError{Provider: provider, Status: reqErr.StatusCode, Body: reqErr.Error()}
	}
	return fmt.Errorf("%w: %s: %w", llm.ErrTransport, provider, err)
}
