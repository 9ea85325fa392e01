package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// TextCompletionService turns a prompt into the model's raw reply.
// Failures wrap ErrAuthentication, ErrUnsupportedModel or ErrTransport.
type TextCompletionService interface {
	Complete(ctx context.Context, modelID, apiKey, prompt string) (string, error)
}

// CompletionFunc adapts a function to TextCompletionService.
type CompletionFunc func(ctx context.Context, modelID, apiKey, prompt string) (string, error)

func (f CompletionFunc) Complete(ctx context.Context, modelID, apiKey, prompt string) (string, error) {
	return f(ctx, modelID, apiKey, prompt)
}

// Invalidator is implemented by services that keep replies. Invalidate drops
// the stored reply for prompt so the next call reaches the model again.
type Invalidator interface {
	Invalidate(modelID, prompt string)
}

var (
	ErrAuthentication   = errors.New("authentication failed")
	ErrUnsupportedModel = errors.New("unsupported model")
	ErrTransport        = errors.New("transport failure")
)

// DefaultSystemPrompt frames every conversion request.
const DefaultSystemPrompt = "You are a professional exam-question conversion assistant. " +
	"Convert the questions exactly as instructed and reply with JSON only."

// RequestOptions are shared by every provider backend.
type RequestOptions struct {
	SystemPrompt    string
	Temperature     float32
	MaxOutputTokens int // 0 leaves the provider default
	HTTPClient      *http.Client
}

// WithDefaults fills unset fields.
func (o RequestOptions) WithDefaults() RequestOptions {
	if o.SystemPrompt == "" {
		o.SystemPrompt = DefaultSystemPrompt
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	return o
}

// StatusError is a non-2xx reply from a provider endpoint.
type StatusError struct {
	Provider Provider
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, body)
}

// Unwrap maps the status onto the service error taxonomy.
func (e *StatusError) Unwrap() error {
	return StatusSentinel(e.Status)
}

// StatusSentinel classifies an HTTP status code.
func StatusSentinel(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthentication
	default:
		return ErrTransport
	}
}
