package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/FreelineGuide/ExamBulldozer/internal/common"
	"github.com/FreelineGuide/ExamBulldozer/internal/llm"
	"github.com/FreelineGuide/ExamBulldozer/internal/pipeline"
	"github.com/FreelineGuide/ExamBulldozer/internal/schema"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	twoQuestions = "1. What is 2+2?\nA. 3\nB. 4\n\n2. What is 3+3?\nA. 6\nB. 7"
	stubReply    = `[{"question":"What is 2+2?","options":["3","4"],"answer":"b"},` +
		`{"question":"What is 3+3?","options":{"a":"6","b":"7"},"answer":"A"}]`
)

func words(s string) int { return len(strings.Fields(s)) }

func newTestServer(t *testing.T, svc llm.TextCompletionService) *gin.Engine {
	t.Helper()
	builtin, err := schema.NewBuiltinRepository()
	require.NoError(t, err)
	store, err := schema.OpenFileRepository(filepath.Join(t.TempDir(), "schemas.yaml"), nil)
	require.NoError(t, err)
	schemas := schema.NewCatalog(builtin, store, nil)

	models := llm.NewCatalog(llm.ModelSpec{
		ID:        "stub",
		Provider:  llm.ProviderOpenAI,
		MaxTokens: 100000,
		Endpoint:  llm.EndpointChatCompletions,
	})
	orch := pipeline.NewOrchestrator(svc, schemas, nil, pipeline.WithEstimator(words))
	return New(Deps{
		Orchestrator: orch,
		Service:      svc,
		Models:       models,
		Schemas:      schemas,
		Settings:     pipeline.Settings{SafetyMargin: 0.15, Concurrency: 2, RequestTimeout: time.Second},
		DefaultModel: "stub",
	}, nil).Router()
}

func stubService(reply string) llm.TextCompletionService {
	return llm.CompletionFunc(func(context.Context, string, string, string) (string, error) {
		return reply, nil
	})
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func TestHealthzAndModels(t *testing.T) {
	r := newTestServer(t, stubService(stubReply))

	w := do(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	w = do(t, r, http.MethodGet, "/v1/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "stub", body["default"])
	models := body["models"].([]any)
	require.Len(t, models, 1)
	assert.Equal(t, "stub", models[0].(map[string]any)["id"])
}

func TestCheckModel(t *testing.T) {
	w := do(t, newTestServer(t, stubService("OK")), http.MethodGet, "/v1/models/stub/check", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "stub", body["model_id"])

	denied := llm.CompletionFunc(func(context.Context, string, string, string) (string, error) {
		return "", &llm.StatusError{Provider: llm.ProviderOpenAI, Status: 401, Body: "invalid key"}
	})
	w = do(t, newTestServer(t, denied), http.MethodGet, "/v1/models/stub/check", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "auth", body["code"])

	w = do(t, newTestServer(t, denied), http.MethodGet, "/v1/models/nope/check", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "CONFIG_ERROR", decode(t, w)["code"])
}

func TestQuestionTypes_CRUD(t *testing.T) {
	r := newTestServer(t, stubService(stubReply))

	w := do(t, r, http.MethodGet, "/v1/question-types", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["question_types"], 3)

	w = do(t, r, http.MethodGet, "/v1/question-types/single", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "single_choice", decode(t, w)["id"])

	w = do(t, r, http.MethodGet, "/v1/question-types/essay", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	custom := map[string]any{
		"description": "fill-in-the-blank questions",
		"json_schema": map[string]any{
			"type":       "object",
			"properties": map[string]any{"question": map[string]any{"type": "string"}, "answer": map[string]any{"type": "string"}},
			"required":   []string{"question", "answer"},
		},
	}
	w = do(t, r, http.MethodPut, "/v1/question-types/fill_blank", custom)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode(t, w)
	assert.Equal(t, "fill_blank", got["name"])
	assert.Contains(t, got["prompt_template"], schema.TextPlaceholder)

	w = do(t, r, http.MethodGet, "/v1/question-types", nil)
	assert.Len(t, decode(t, w)["question_types"], 4)

	w = do(t, r, http.MethodDelete, "/v1/question-types/fill_blank", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, r, http.MethodDelete, "/v1/question-types/fill_blank", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQuestionTypes_PutRejects(t *testing.T) {
	r := newTestServer(t, stubService(stubReply))

	w := do(t, r, http.MethodDelete, "/v1/question-types/single_choice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPut, "/v1/question-types/anything", map[string]any{"json_schema": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, common.CodeConfig, decode(t, w)["code"])

	w = do(t, r, http.MethodPut, "/v1/question-types/Bad-ID", map[string]any{"json_schema": map[string]any{"type": "object"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, common.CodeInvalidInput, decode(t, w)["code"])
}

func TestQuestionTypes_OverrideBuiltinPrompt(t *testing.T) {
	r := newTestServer(t, stubService(stubReply))

	w := do(t, r, http.MethodPut, "/v1/question-types/true_false", map[string]any{"prompt_template": "Judge each: {text}"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Judge each: {text}", body["prompt_template"])
	assert.Equal(t, true, body["builtin"])
	assert.Equal(t, true, body["overridden"])
	assert.NotNil(t, body["json_schema"])

	w = do(t, r, http.MethodDelete, "/v1/question-types/true_false", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodGet, "/v1/question-types/true_false", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, "Judge each: {text}", decode(t, w)["prompt_template"])
}

func TestPlan(t *testing.T) {
	r := newTestServer(t, llm.CompletionFunc(func(context.Context, string, string, string) (string, error) {
		t.Error("plan must not call the model")
		return "", nil
	}))

	w := do(t, r, http.MethodPost, "/v1/plan", map[string]any{"question_type": "single_choice", "text": twoQuestions})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "single_choice", body["question_type"])
	assert.EqualValues(t, 2, body["units"])
	assert.Len(t, body["batches"], 1)
	assert.Greater(t, body["budget"].(float64), 0.0)
}

func TestConvert(t *testing.T) {
	r := newTestServer(t, stubService(stubReply))

	w := do(t, r, http.MethodPost, "/v1/convert", map[string]any{"question_type": "单选题", "text": twoQuestions})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "DONE", body["state"])
	assert.Empty(t, body["errors"])
	records := body["records"].([]any)
	require.Len(t, records, 2)
	first := records[0].(map[string]any)
	assert.Equal(t, "B", first["answer"])
	assert.Equal(t, map[string]any{"A": "3", "B": "4"}, first["options"])
}

func TestConvert_ConfigurationErrors(t *testing.T) {
	r := newTestServer(t, stubService(stubReply))

	w := do(t, r, http.MethodPost, "/v1/convert", map[string]any{"question_type": "essay", "text": twoQuestions})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, common.CodeConfig, decode(t, w)["code"])

	w = do(t, r, http.MethodPost, "/v1/convert", map[string]any{"question_type": "single_choice", "model": "gpt-99", "text": twoQuestions})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, common.CodeConfig, decode(t, w)["code"])

	w = do(t, r, http.MethodPost, "/v1/convert", map[string]any{"text": twoQuestions})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, common.CodeInvalidInput, decode(t, w)["code"])
}

func TestExport(t *testing.T) {
	r := newTestServer(t, stubService(stubReply))

	records := []map[string]any{{"question": "What is 2+2?", "options": map[string]string{"A": "3", "B": "4"}, "answer": "B"}}
	w := do(t, r, http.MethodPost, "/v1/export", map[string]any{"question_type": "single_choice", "records": records})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, contentTypeXLSX, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="single_choice_`)
	assert.NotEmpty(t, w.Body.Bytes())

	w = do(t, r, http.MethodPost, "/v1/export", map[string]any{"question_type": "single_choice", "records": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServe_HTTPAndGRPCHealth(t *testing.T) {
	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := newTestServer(t, stubService(stubReply))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, httpLis, grpcLis, handler, nil)
	}()

	resp, err := http.Get("http://" + httpLis.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn, err := grpc.NewClient(grpcLis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	checkCtx, checkCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer checkCancel()
	hc, err := grpc_health_v1.NewHealthClient(conn).Check(checkCtx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, hc.GetStatus())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
