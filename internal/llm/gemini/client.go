// Package gemini serves Google Gemini models through generative-ai-go.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/FreelineGuide/ExamBulldozer/internal/llm"
)

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
	clientOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if spec.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(spec.BaseURL))
	}
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return "", classify(spec.Provider, err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			b.logger.Warn("llm.gemini.close_error", "error", err)
		}
	}()

	model := client.GenerativeModel(spec.ID)
	model.SetTemperature(b.opts.Temperature)
	if b.opts.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(int32(b.opts.MaxOutputTokens))
	}
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(b.opts.SystemPrompt)}}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		b.logger.Debug("llm.gemini.error", "model", spec.ID, "error", err)
		return "", classify(spec.Provider, err)
	}
	text := replyText(resp)
	if text == "" {
		return "", fmt.Errorf("%w: %s: no text candidates in response", llm.ErrTransport, spec.Provider)
	}
	return text, nil
}

func replyText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(sb.String())
}

var grpcCodeStatus = map[codes.Code]int{
	codes.Unauthenticated:   http.StatusUnauthorized,
	codes.PermissionDenied:  http.StatusForbidden,
	codes.ResourceExhausted: http.StatusTooManyRequests,
	codes.Unavailable:       http.StatusServiceUnavailable,
	codes.Internal:          http.StatusInternalServerError,
	codes.InvalidArgument:   http.StatusBadRequest,
}

func classify(provider llm.Provider, err error) error {
	if s, ok := status.FromError(err); ok {
		if s.Code() == codes.NotFound {
			return fmt.Errorf("%w: %s: %s", llm.ErrUnsupportedModel, provider, s.Message())
		}
		if code, ok := grpcCodeStatus[s.Code()]; ok {
			return &llm.StatusError{Provider: provider, Status: code, Body: s.Message()}
		}
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		if gErr.Code == http.StatusNotFound {
			return fmt.Errorf("%w: %s: %s", llm.ErrUnsupportedModel, provider, gErr.Message)
		}
		return &llm.StatusError{Provider: provider, Status: gErr.Code, Body: gErr.Message}
	}
	return fmt.Errorf("%w: %s: %w", llm.ErrTransport, provider, err)
}
