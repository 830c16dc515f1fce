package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreSaveLoad(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	s := New("sess-1", "q")

	require.NoError(t, store.Save(ctx, s))
	got, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestInMemoryStoreLoadMissingReturnsErrNotFound(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.Load(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInMemoryStoreList(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, New("a", "q")))
	require.NoError(t, store.Save(ctx, New("b", "q")))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}
