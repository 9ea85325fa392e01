// Package export renders normalized records as an XLSX workbook.
package export

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/FreelineGuide/ExamBulldozer/constants"
	"github.com/FreelineGuide/ExamBulldozer/internal/common"
	"github.com/FreelineGuide/ExamBulldozer/internal/normalize"
)

const (
	SheetName      = "Questions"
	MinOptionCols  = 5
	HeaderFill     = "CCE5FF"
	filenameLayout = "20060102_150405"
)

var typeLabels = map[string]string{
	constants.SingleChoice:   "Single Choice",
	constants.MultipleChoice: "Multiple Choice",
	constants.TrueFalse:      "True/False",
}

// File is a rendered workbook and the name it should be saved under.
type File struct {
	Name string
	Data []byte
	Rows int
}

// Service produces XLSX bytes for a set of records of one question type.
type Service struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, now: time.Now}
}

// Filename is <type>_<YYYYmmdd_HHMMSS>.xlsx.
func Filename(questionType string, at time.Time) string {
	return fmt.Sprintf("%s_%s.xlsx", questionType, at.Format(filenameLayout))
}

// TypeLabel is the text shown in the Type column. label overrides the
// built-in names; custom types fall back to their id.
func TypeLabel(questionType, label string) string {
	if label != "" {
		return label
	}
	if l, ok := typeLabels[questionType]; ok {
		return l
	}
	return questionType
}

// ExportXLSX writes one sheet with a header row followed by one row per
// record. An empty record set is rejected.
func (s *Service) ExportXLSX(questionType, label string, records []normalize.Record) (*File, error) {
	start := time.Now()
	if len(records) == 0 {
		return nil, fmt.Errorf("export %s: no records: %w", questionType, common.ErrInvalidInput)
	}

	optionCols := optionWidth(records)
	extras := extraKeys(records)
	headers := []any{"Question", "Type"}
	for i := 0; i < optionCols; i++ {
		headers = append(headers, "Option "+letter(i))
	}
	headers = append(headers, "Answer", "Analysis")
	for _, k := range extras {
		headers = append(headers, k)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &headers); err != nil {
		return nil, fmt.Errorf("xlsx header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{HeaderFill}, Pattern: 1},
		Alignment: &excelize.Alignment{Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("xlsx style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, style); err != nil {
		return nil, fmt.Errorf("xlsx style: %w", err)
	}

	typeText := TypeLabel(questionType, label)
	for i, r := range records {
		row := []any{r.Question, typeText}
		for c := 0; c < optionCols; c++ {
			row = append(row, r.Options[letter(c)])
		}
		row = append(row, r.Answer.String(), r.Analysis)
		for _, k := range extras {
			v, ok := r.Extra[k]
			if !ok || v == nil {
				row = append(row, "")
				continue
			}
			row = append(row, fmt.Sprint(v))
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("xlsx row %d: %w", i+1, err)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 60)
	_ = f.SetColWidth(SheetName, "B", "B", 16)
	if optionCols > 0 {
		first, _ := excelize.ColumnNumberToName(3)
		end, _ := excelize.ColumnNumberToName(2 + optionCols)
		_ = f.SetColWidth(SheetName, first, end, 24)
	}
	analysis, _ := excelize.ColumnNumberToName(4 + optionCols)
	_ = f.SetColWidth(SheetName, analysis, analysis, 48)
	_ = f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	out := &File{Name: Filename(questionType, s.now()), Data: buf.Bytes(), Rows: len(records)}
	s.logger.Info("export.xlsx.ok",
		"question_type", questionType,
		"rows", len(records),
		"option_cols", optionCols,
		"bytes", len(out.Data),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// optionWidth is the widest record's option count, at least MinOptionCols
// when any record has options.
func optionWidth(records []normalize.Record) int {
	widest := 0
	for _, r := range records {
		if n := len(r.Options); n > widest {
			widest = n
		}
	}
	if widest == 0 {
		return 0
	}
	if widest < MinOptionCols {
		return MinOptionCols
	}
	if widest > normalize.MaxOptions {
		return normalize.MaxOptions
	}
	return widest
}

func extraKeys(records []normalize.Record) []string {
	seen := map[string]bool{}
	var keys []string
	for _, r := range records {
		for k := range r.Extra {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func letter(i int) string {
	return string(rune('A' + i))
}
