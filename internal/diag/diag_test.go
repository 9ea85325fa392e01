package diag

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FreelineGuide/ExamBulldozer/constants"
	"github.com/FreelineGuide/ExamBulldozer/internal/llm"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, CodeUnknown},
		{"canceled", fmt.Errorf("%w: %w", llm.ErrTransport, context.Canceled), CodeCancel},
		{"deadline", fmt.Errorf("%w: %w", llm.ErrTransport, context.DeadlineExceeded), CodeTimeout},
		{"auth", &llm.StatusError{Status: 401}, CodeAuth},
		{"unsupported", fmt.Errorf("%w: x", llm.ErrUnsupportedModel), CodeUnsupportedModel},
		{"net timeout", fmt.Errorf("%w: %w", llm.ErrTransport, timeoutErr{}), CodeTimeout},
		{"net op", &net.OpError{Op: "dial", Err: errors.New("refused")}, CodeNetwork},
		{"transport", &llm.StatusError{Status: 500}, CodeTransport},
		{"other", errors.New("x"), CodeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestError_String(t *testing.T) {
	e := Error{Stage: constants.StageSchemaValidation, BatchIndex: 2, RecordIndex: 1, Message: "bad", Path: "/answer", SchemaPath: "/properties/answer/pattern"}
	assert.Equal(t, "[schema_validation] batch 2 record 1: bad (at /answer, schema /properties/answer/pattern)", e.Error())
	assert.False(t, e.BatchLevel())

	n := Error{Stage: constants.StageNormalization, BatchIndex: 0, RecordIndex: 3, Message: "gap", Path: "/options"}
	assert.Equal(t, "[normalization] batch 0 record 3: gap (at /options)", n.Error())

	r := Request(0, &llm.StatusError{Provider: llm.ProviderQwen, Status: 401, Body: "no"})
	assert.True(t, r.BatchLevel())
	assert.Equal(t, constants.StageRequest, r.Stage)
	assert.Equal(t, CodeAuth, r.Code)
	assert.Equal(t, "[request] batch 0: qwen: status 401: no", r.Error())
}

func TestCountByStage(t *testing.T) {
	got := CountByStage([]Error{
		{Stage: constants.StageParsing},
		{Stage: constants.StageParsing},
		{Stage: constants.StageNormalization},
	})
	assert.Equal(t, 2, got[constants.StageParsing])
	assert.Equal(t, 1, got[constants.StageNormalization])
	assert.Zero(t, got[constants.StageSchemaValidation])
}
