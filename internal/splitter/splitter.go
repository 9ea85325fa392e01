// Package splitter cuts raw exam text into candidate question units.
package splitter

import (
	"regexp"
	"strings"
)

// DefaultWindow is the number of lines a blank-line paragraph may span
// before single newlines are considered as delimiters.
const DefaultWindow = 12

// Unit is one candidate question. Index is its position in the source.
type Unit struct {
	Index int
	Text  string
}

var (
	reParagraph = regexp.MustCompile(`\n[ \t]*\n`)
	// numbered question starts: "1.", "2、", "(3)", "（4）", "第5题", "Q6:"
	reQuestionStart = regexp.MustCompile(`^\s*(?:\d{1,4}\s*[.．、)）]|[(（]\d{1,4}[)）]|第\s*\d{1,4}\s*题|[Qq]\d{1,4}\s*[.:：])`)
)

// Splitter splits text on blank lines first, then on single newlines inside
// paragraphs longer than its window.
type Splitter struct {
	window int
}

// New returns a Splitter; window <= 0 selects DefaultWindow.
func New(window int) *Splitter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Splitter{window: window}
}

// Split returns the non-empty units of text in source order. The result is a
// fresh slice on every call.
func (s *Splitter) Split(text string) []Unit {
	text = Normalize(text)
	if text == "" {
		return nil
	}

	var units []Unit
	emit := func(chunk string) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			return
		}
		units = append(units, Unit{Index: len(units), Text: chunk})
	}

	for _, para := range reParagraph.Split(text, -1) {
		lines := strings.Split(strings.TrimSpace(para), "\n")
		if len(lines) <= s.window {
			emit(para)
			continue
		}
		for _, chunk := range s.splitLong(lines) {
			emit(chunk)
		}
	}
	return units
}

// splitLong cuts an oversized paragraph at numbered question starts, or into
// window-sized line groups when no numbering is present.
func (s *Splitter) splitLong(lines []string) []string {
	var cuts []int
	for i := 1; i < len(lines); i++ {
		if reQuestionStart.MatchString(lines[i]) {
			cuts = append(cuts, i)
		}
	}

	var out []string
	if len(cuts) > 0 {
		start := 0
		for _, c := range cuts {
			out = append(out, strings.Join(lines[start:c], "\n"))
			start = c
		}
		return append(out, strings.Join(lines[start:], "\n"))
	}

	for start := 0; start < len(lines); start += s.window {
		end := min(start+s.window, len(lines))
		out = append(out, strings.Join(lines[start:end], "\n"))
	}
	return out
}
