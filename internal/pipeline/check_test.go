package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FreelineGuide/ExamBulldozer/internal/diag"
	"github.com/FreelineGuide/ExamBulldozer/internal/llm"
)

func TestCheckModel(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want diag.Code
	}{
		{"auth", &llm.StatusError{Provider: llm.ProviderDeepSeek, Status: 401, Body: "bad key"}, diag.CodeAuth},
		{"unsupported", fmt.Errorf("%w: nope", llm.ErrUnsupportedModel), diag.CodeUnsupportedModel},
		{"transport", &llm.StatusError{Provider: llm.ProviderDeepSeek, Status: 502}, diag.CodeTransport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := llm.CompletionFunc(func(context.Context, string, string, string) (string, error) {
				return "", tc.err
			})
			got := CheckModel(context.Background(), svc, baseConfig())
			assert.False(t, got.OK)
			assert.Equal(t, tc.want, got.Code)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestCheckModel_OK(t *testing.T) {
	var seen string
	svc := llm.CompletionFunc(func(_ context.Context, modelID, apiKey, prompt string) (string, error) {
		seen = modelID + "/" + apiKey
		return "OK", nil
	})
	got := CheckModel(context.Background(), svc, baseConfig())
	assert.True(t, got.OK)
	assert.Empty(t, got.Code)
	assert.Equal(t, "stub/k", seen)
}

func TestCheckModel_MissingKeySkipsCall(t *testing.T) {
	called := false
	svc := llm.CompletionFunc(func(context.Context, string, string, string) (string, error) {
		called = true
		return "", nil
	})
	cfg := baseConfig()
	cfg.APIKey = ""
	got := CheckModel(context.Background(), svc, cfg)
	assert.False(t, got.OK)
	assert.Equal(t, diag.CodeAuth, got.Code)
	assert.False(t, called)
}
