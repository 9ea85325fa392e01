// Package diag carries the per-batch and per-record diagnostics a
// conversion run accumulates instead of failing.
package diag

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/FreelineGuide/ExamBulldozer/constants"
	"github.com/FreelineGuide/ExamBulldozer/internal/llm"
)

// Code is a coarse cause classification used in logs and reports.
type Code string

const (
	CodeUnknown          Code = "unknown"
	CodeCancel           Code = "cancel"
	CodeTimeout          Code = "timeout"
	CodeAuth             Code = "auth"
	CodeUnsupportedModel Code = "unsupported_model"
	CodeNetwork          Code = "network"
	CodeTransport        Code = "transport"
)

// Error is one recorded failure. RecordIndex is -1 when the failure concerns
// the whole batch.
type Error struct {
	Stage       constants.Stage `json:"stage"`
	BatchIndex  int             `json:"batch_index"`
	RecordIndex int             `json:"record_index"`
	Message     string          `json:"message"`
	Path        string          `json:"path,omitempty"`
	SchemaPath  string          `json:"schema_path,omitempty"`
	Code        Code            `json:"code,omitempty"`
}

func (e Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] batch %d", e.Stage, e.BatchIndex)
	if e.RecordIndex >= 0 {
		fmt.Fprintf(&b, " record %d", e.RecordIndex)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	switch {
	case e.SchemaPath != "":
		fmt.Fprintf(&b, " (at %s, schema %s)", orRoot(e.Path), e.SchemaPath)
	case e.Path != "":
		fmt.Fprintf(&b, " (at %s)", e.Path)
	}
	return b.String()
}

// BatchLevel reports whether the error concerns a whole batch.
func (e Error) BatchLevel() bool { return e.RecordIndex < 0 }

// Request builds a request-stage error from a completion failure.
func Request(batch int, err error) Error {
	return Error{
		Stage:       constants.StageRequest,
		BatchIndex:  batch,
		RecordIndex: -1,
		Message:     err.Error(),
		Code:        Classify(err),
	}
}

// Classify maps an error onto a Code using sentinels and error types only.
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// cancellation and deadlines first; providers wrap them in ErrTransport
	if errors.Is(err, context.Canceled) {
		return CodeCancel
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	if errors.Is(err, llm.ErrAuthentication) {
		return CodeAuth
	}
	if errors.Is(err, llm.ErrUnsupportedModel) {
		return CodeUnsupportedModel
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return CodeTimeout
		}
		return CodeNetwork
	}
	if errors.Is(err, llm.ErrTransport) {
		return CodeTransport
	}
	return CodeUnknown
}

// CountByStage tallies errors per stage.
func CountByStage(errs []Error) map[constants.Stage]int {
	out := make(map[constants.Stage]int, 4)
	for _, e := range errs {
		out[e.Stage]++
	}
	return out
}

func orRoot(p string) string {
	if p == "" {
		return "/"
	}
	return p
}
