// Package tokenizer estimates prompt cost in model tokens.
package tokenizer

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is used when a model does not name one or the named one cannot be loaded.
const DefaultEncoding = "cl100k_base"

func init() {
	// BPE ranks ship inside the binary; no download at first use.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Estimator returns the token cost of text under a fixed encoding.
type Estimator func(text string) int

// Loader resolves an encoding by name.
type Loader func(name string) (*tiktoken.Tiktoken, error)

// Tokenizer counts tokens. Loaded encodings are memoized; a Tokenizer is safe
// for concurrent use and its counts never depend on call order.
type Tokenizer struct {
	load   Loader
	logger *slog.Logger

	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken // nil value: load failed
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithLoader replaces the encoding loader.
func WithLoader(l Loader) Option {
	return func(t *Tokenizer) {
		if l != nil {
			t.load = l
		}
	}
}

// New returns a Tokenizer backed by tiktoken.
func New(logger *slog.Logger, opts ...Option) *Tokenizer {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tokenizer{
		load:      tiktoken.GetEncoding,
		logger:    logger,
		encodings: make(map[string]*tiktoken.Tiktoken),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Count returns the number of tokens in text under encoding. It never fails:
// an unknown encoding falls back to DefaultEncoding, and when no encoding can
// be used at all the byte length is returned, which is an upper bound for
// byte-level BPE.
func (t *Tokenizer) Count(text, encoding string) (n int) {
	if text == "" {
		return 0
	}
	enc := t.resolve(encoding)
	if enc == nil {
		return Overestimate(text)
	}
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("tokenizer.encode_panic", "encoding", encoding, "panic", r, "text_len", len(text))
			n = Overestimate(text)
		}
	}()
	return len(enc.Encode(text, nil, nil))
}

// For binds the tokenizer to one encoding.
func (t *Tokenizer) For(encoding string) Estimator {
	return func(text string) int { return t.Count(text, encoding) }
}

// Overestimate is the degraded count used when tokenization is unavailable.
func Overestimate(text string) int {
	return len(text)
}

func (t *Tokenizer) resolve(name string) *tiktoken.Tiktoken {
	if name == "" {
		name = DefaultEncoding
	}
	if enc := t.get(name); enc != nil || name == DefaultEncoding {
		return enc
	}
	t.logger.Warn("tokenizer.encoding_fallback", "requested", name, "fallback", DefaultEncoding)
	return t.get(DefaultEncoding)
}

func (t *Tokenizer) get(name string) *tiktoken.Tiktoken {
	t.mu.Lock()
	defer t.mu.Unlock()
	if enc, ok := t.encodings[name]; ok {
		return enc
	}
	enc, err := t.load(name)
	if err != nil {
		t.logger.Warn("tokenizer.encoding_unavailable", "encoding", name, "error", err)
		enc = nil
	}
	t.encodings[name] = enc
	return enc
}
