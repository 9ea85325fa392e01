package openai

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

func specFor(url string) llm.ModelSpec {
	return llm.ModelSpec{
		ID:       "deepseek-chat",
		Provider: llm.ProviderDeepSeek,
		Endpoint: llm.EndpointChatCompletions,
		BaseURL:  url,
	}
}

func TestComplete_OK(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  [{\"question\":\"q\"}]  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	b := New(llm.RequestOptions{Temperature: 0.3}, nil)
	out, err := b.Complete(context.Background(), specFor(srv.URL), "sk-test", "convert this")
	require.NoError(t, err)
	assert.Equal(t, `[{"question":"q"}]`, out)

	assert.Equal(t, "deepseek-chat", got["model"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	assert.Equal(t, "convert this", msgs[1].(map[string]any)["content"])
}

func TestComplete_StatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, llm.ErrAuthentication},
		{"forbidden", http.StatusForbidden, llm.ErrAuthentication},
		{"server error", http.StatusInternalServerError, llm.ErrTransport},
		{"rate limited", http.StatusTooManyRequests, llm.ErrTransport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			}))
			defer srv.Close()

			_, err := New(llm.RequestOptions{}, nil).Complete(context.Background(), specFor(srv.URL), "k", "p")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)

			var se *llm.StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tc.status, se.Status)
		})
	}
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := New(llm.RequestOptions{}, nil).Complete(context.Background(), specFor(srv.URL), "k", "p")
	assert.True(t, errors.Is(err, llm.ErrTransport))
}

func TestComplete_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(llm.RequestOptions{}, nil).Complete(context.Background(), specFor(url), "k", "p")
	assert.True(t, errors.Is(err, llm.ErrTransport))
}
