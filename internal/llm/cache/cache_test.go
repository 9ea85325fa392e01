package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreelineGuide/ExamBulldozer/internal/llm"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWrap_ServesRepeatsFromStore(t *testing.T) {
	store := openTemp(t)
	calls := 0
	inner := llm.CompletionFunc(func(ctx context.Context, modelID, apiKey, prompt string) (string, error) {
		calls++
		return "reply:" + prompt, nil
	})
	svc := Wrap(inner, store)

	for i := 0; i < 3; i++ {
		out, err := svc.Complete(context.Background(), "m", "k", "p")
		require.NoError(t, err)
		assert.Equal(t, "reply:p", out)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, store.Len())

	_, err := svc.Complete(context.Background(), "other", "k", "p")
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "model id is part of the key")
}

func TestWrap_DoesNotStoreFailures(t *testing.T) {
	store := openTemp(t)
	inner := llm.CompletionFunc(func(ctx context.Context, modelID, apiKey, prompt string) (string, error) {
		return "", llm.ErrTransport
	})
	_, err := Wrap(inner, store).Complete(context.Background(), "m", "k", "p")
	assert.True(t, errors.Is(err, llm.ErrTransport))
	assert.Equal(t, 0, store.Len())
}

func TestWrap_NilStore(t *testing.T) {
	inner := llm.CompletionFunc(func(ctx context.Context, modelID, apiKey, prompt string) (string, error) {
		return "x", nil
	})
	assert.NotNil(t, Wrap(inner, nil))
}

func TestKey_Stable(t *testing.T) {
	assert.Equal(t, Key("a", "b"), Key("a", "b"))
	assert.NotEqual(t, Key("ab", ""), Key("a", "b"))
}

func TestWrap_Invalidate(t *testing.T) {
	store := openTemp(t)
	calls := 0
	inner := llm.CompletionFunc(func(ctx context.Context, modelID, apiKey, prompt string) (string, error) {
		calls++
		return "not json", nil
	})
	svc := Wrap(inner, store)

	_, err := svc.Complete(context.Background(), "m", "k", "p")
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	inv, ok := svc.(llm.Invalidator)
	require.True(t, ok)
	inv.Invalidate("m", "p")
	assert.Equal(t, 0, store.Len())

	_, err = svc.Complete(context.Background(), "m", "k", "p")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
