package splitter

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(units []Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.Text
	}
	return out
}

func TestSplit_BlankLines(t *testing.T) {
	in := "1. What prints output?\nA. print()\nB. display()\n\n2. What is 2+2?\nA. 3\nB. 4\n"

	units := New(0).Split(in)

	require.Len(t, units, 2)
	assert.Equal(t, "1. What prints output?\nA. print()\nB. display()", units[0].Text)
	assert.Equal(t, "2. What is 2+2?\nA. 3\nB. 4", units[1].Text)
	assert.Equal(t, 0, units[0].Index)
	assert.Equal(t, 1, units[1].Index)
}

func TestSplit_DiscardsWhitespaceUnits(t *testing.T) {
	in := "\n\n   \n\nQ1\n\n\t\n\n\nQ2\n\n  "

	assert.Equal(t, []string{"Q1", "Q2"}, texts(New(0).Split(in)))
}

func TestSplit_EmptyInput(t *testing.T) {
	assert.Empty(t, New(0).Split(""))
	assert.Empty(t, New(0).Split(" \n\t\n "))
}

func TestSplit_CRLF(t *testing.T) {
	in := "first question\r\nA. yes\r\n\r\nsecond question"

	assert.Equal(t, []string{"first question\nA. yes", "second question"}, texts(New(0).Split(in)))
}

func TestSplit_LongParagraphCutAtNumberedStarts(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 4; i++ {
		fmt.Fprintf(&b, "%d. question %d\nA. a\nB. b\nC. c\n", i, i)
	}

	units := New(5).Split(b.String())

	require.Len(t, units, 4)
	for i, u := range units {
		assert.True(t, strings.HasPrefix(u.Text, fmt.Sprintf("%d. question %d", i+1, i+1)), u.Text)
	}
}

func TestSplit_LongParagraphWithoutNumberingChunksByWindow(t *testing.T) {
	lines := make([]string, 7)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i)
	}

	units := New(3).Split(strings.Join(lines, "\n"))

	assert.Equal(t, []string{
		"line 0\nline 1\nline 2",
		"line 3\nline 4\nline 5",
		"line 6",
	}, texts(units))
}

func TestSplit_Restartable(t *testing.T) {
	s := New(0)
	in := "a\n\nb\n\nc"
	assert.Equal(t, s.Split(in), s.Split(in))
}

func TestNormalize(t *testing.T) {
	in := "a\t\tb   c  \r\n\r\n\r\n\r\n-----\nd"
	assert.Equal(t, "a b c\n\nd", Normalize(in))
}
