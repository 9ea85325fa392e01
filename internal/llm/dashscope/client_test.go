package dashscope

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreelineGuide/ExamBulldozer/internal/llm"
)

func TestComplete_OK(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer dk", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"output":{"text":"[]","finish_reason":"stop"},"request_id":"r1"}`))
	}))
	defer srv.Close()

	spec := llm.ModelSpec{ID: "qwen-plus", Provider: llm.ProviderQwen, BaseURL: srv.URL}
	out, err := New(llm.RequestOptions{Temperature: 0.3, MaxOutputTokens: 512}, nil).Complete(context.Background(), spec, "dk", "hello")
	require.NoError(t, err)
	assert.Equal(t, "[]", out)

	assert.Equal(t, "qwen-plus", got.Model)
	require.Len(t, got.Input.Messages, 2)
	assert.Equal(t, "hello", got.Input.Messages[1].Content)
	assert.Equal(t, "text", got.Parameters.ResultFormat)
	assert.Equal(t, 512, got.Parameters.MaxTokens)
}

func TestComplete_Errors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"invalid key", http.StatusUnauthorized, `{"code":"InvalidApiKey","message":"bad"}`, llm.ErrAuthentication},
		{"throttled", http.StatusTooManyRequests, `{"code":"Throttling","message":"slow down"}`, llm.ErrTransport},
		{"error code on 200", http.StatusOK, `{"code":"DataInspectionFailed","message":"no"}`, llm.ErrTransport},
		{"garbage body", http.StatusOK, `not json`, llm.ErrTransport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			spec := llm.ModelSpec{ID: "qwen-turbo", Provider: llm.ProviderQwen, BaseURL: srv.URL}
			_, err := New(llm.RequestOptions{}, nil).Complete(context.Background(), spec, "k", "p")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}
