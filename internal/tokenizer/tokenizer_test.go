package tokenizer

import (
	"errors"
	"testing"

	"github.com/pkoukk/tiktoken-go"
	"github.com/stretchr/testify/assert"
)

func TestCount_Deterministic(t *testing.T) {
	tk := New(nil)
	text := "1. Which function prints output in Python?\nA. print()\nB. display()"

	first := tk.Count(text, DefaultEncoding)
	second := tk.Count(text, DefaultEncoding)

	assert.Greater(t, first, 0)
	assert.Equal(t, first, second)
}

func TestCount_Empty(t *testing.T) {
	assert.Equal(t, 0, New(nil).Count("", DefaultEncoding))
}

func TestCount_UnknownEncodingFallsBackToDefault(t *testing.T) {
	tk := New(nil)
	text := "下列哪个选项是正确的？"

	assert.Equal(t, tk.Count(text, DefaultEncoding), tk.Count(text, "no_such_encoding"))
	assert.Equal(t, tk.Count(text, DefaultEncoding), tk.Count(text, ""))
}

func TestCount_LoaderFailureOverestimates(t *testing.T) {
	failing := func(string) (*tiktoken.Tiktoken, error) { return nil, errors.New("offline") }
	tk := New(nil, WithLoader(failing))
	ref := New(nil)
	text := "What is 2 + 2? A. 3 B. 4"

	got := tk.Count(text, DefaultEncoding)

	assert.Equal(t, len(text), got)
	assert.GreaterOrEqual(t, got, ref.Count(text, DefaultEncoding))
}

func TestFor_BindsEncoding(t *testing.T) {
	tk := New(nil)
	est := tk.For(DefaultEncoding)
	assert.Equal(t, tk.Count("hello world", DefaultEncoding), est("hello world"))
}
