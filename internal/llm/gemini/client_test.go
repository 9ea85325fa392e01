package gemini

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/FreelineGuide/ExamBulldozer/internal/llm"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"grpc unauthenticated", status.Error(codes.Unauthenticated, "no key"), llm.ErrAuthentication},
		{"grpc permission denied", status.Error(codes.PermissionDenied, "nope"), llm.ErrAuthentication},
		{"grpc not found", status.Error(codes.NotFound, "no such model"), llm.ErrUnsupportedModel},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), llm.ErrTransport},
		{"rest forbidden", &googleapi.Error{Code: http.StatusForbidden, Message: "key"}, llm.ErrAuthentication},
		{"rest not found", &googleapi.Error{Code: http.StatusNotFound, Message: "model"}, llm.ErrUnsupportedModel},
		{"plain", errors.New("boom"), llm.ErrTransport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(llm.ProviderGemini, tc.err)
			assert.True(t, errors.Is(got, tc.want), "got %v", got)
		})
	}
}

func TestReplyText(t *testing.T) {
	assert.Equal(t, "", replyText(nil))
	assert.Equal(t, "", replyText(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(" [1"), genai.Text(",2] ")}},
		}},
	}
	assert.Equal(t, "[1,2]", replyText(resp))
}
