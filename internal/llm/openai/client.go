package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/FreelineGuide/ExamBulldozer/internal/llm"
)

func (b *Backend) Complete(ctx context.Context, spec llm.ModelSpec, apiKey, prompt string) (string, error) {
	start := time.Now()

	cfg := goopenai.DefaultConfig(apiKey)
	if spec.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(spec.BaseURL, "/")
	}
	cfg.HTTPClient = b.opts.HTTPClient
	client := goopenai.NewClientWithConfig(cfg)

	req := goopenai.ChatCompletionRequest{
		Model:       spec.ID,
		Temperature: b.opts.Temperature,
		MaxTokens:   b.opts.MaxOutputTokens,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: b.opts.SystemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		b.logger.Debug("llm.openai.error",
			"model", spec.ID,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", classify(spec.Provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s: no choices in response", llm.ErrTransport, spec.Provider)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// classify maps go-openai errors onto llm.StatusError or llm.ErrTransport.
func classify(provider llm.Provider, err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &llm.StatusError{Provider: provider, Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &llm.StatusError{Provider: provider, Status: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return fmt.Errorf("%w: %s: %w", llm.ErrTransport, provider, err)
}
