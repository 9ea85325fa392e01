package pipeline

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/FreelineGuide/ExamBulldozer/constants"
	"github.com/FreelineGuide/ExamBulldozer/internal/diag"
)

var (
	colorSuccess = lipgloss.Color("#00D787")
	colorError   = lipgloss.Color("#FF5F87")
	colorWarning = lipgloss.Color("#FFAF00")
	colorMuted   = lipgloss.Color("#888888")

	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleBold    = lipgloss.NewStyle().Bold(true)
)

var stageOrder = []constants.Stage{
	constants.StageRequest,
	constants.StageParsing,
	constants.StageNormalization,
	constants.StageSchemaValidation,
}

// Report renders a human-readable summary listing every failure by stage
// and batch. styled=false produces plain text for logs and files.
func Report(res *Result, styled bool) string {
	paint := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	var b strings.Builder
	status := paint(styleSuccess, "OK")
	switch {
	case res.State == constants.RunStateAborted:
		status = paint(styleError, "ABORTED")
	case res.Cancelled:
		status = paint(styleWarning, "CANCELLED")
	case len(res.Errors) > 0:
		status = paint(styleWarning, "PARTIAL")
	}
	fmt.Fprintf(&b, "%s %s  type=%s model=%s\n", status, paint(styleBold, "run "+short(res.RunID)), res.QuestionType, res.ModelID)
	fmt.Fprintf(&b, "%s\n", paint(styleMuted, fmt.Sprintf(
		"batches %d | records %d | errors %d | %dms",
		res.Batches, len(res.Records), len(res.Errors), res.Elapsed.Milliseconds())))

	if len(res.Errors) == 0 {
		return b.String()
	}

	counts := diag.CountByStage(res.Errors)
	for _, st := range stageOrder {
		if counts[st] == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s (%d)\n", paint(styleError, string(st)), counts[st])
		for _, e := range res.Errors {
			if e.Stage != st {
				continue
			}
			b.WriteString("  ")
			b.WriteString(describe(e))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func describe(e diag.Error) string {
	loc := fmt.Sprintf("batch %d", e.BatchIndex)
	if e.RecordIndex >= 0 {
		loc += fmt.Sprintf(" record %d", e.RecordIndex)
	}
	out := loc + ": " + e.Message
	if e.Code != "" && e.Code != diag.CodeUnknown {
		out += " [" + string(e.Code) + "]"
	}
	switch {
	case e.SchemaPath != "":
		path := e.Path
		if path == "" {
			path = "/"
		}
		out += fmt.Sprintf("\n    at %s (schema %s)", path, e.SchemaPath)
	case e.Path != "":
		out += "\n    at " + e.Path
	}
	return out
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
