package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeTests exercises the Store contract against any backend.
func storeTests(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("put get roundtrip", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, "idx/doc-1/source.0.txt", []byte("hello")))
		data, err := s.Get(ctx, "idx/doc-1/source.0.txt")
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), data)
	})

	t.Run("overwrite", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, "idx/doc-1/a", []byte("v1")))
		require.NoError(t, s.Put(ctx, "idx/doc-1/a", []byte("v2")))
		data, err := s.Get(ctx, "idx/doc-1/a")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), data)
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		_, err := s.Get(ctx, "idx/doc-1/nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list by prefix sorted", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, "idx/doc-2/b", []byte("2")))
		require.NoError(t, s.Put(ctx, "idx/doc-1/b", []byte("1b")))
		require.NoError(t, s.Put(ctx, "idx/doc-1/a", []byte("1a")))
		require.NoError(t, s.Put(ctx, "other/doc-1/a", []byte("x")))

		keys, err := s.List(ctx, "idx/doc-1/")
		require.NoError(t, err)
		assert.Equal(t, []string{"idx/doc-1/a", "idx/doc-1/b"}, keys)

		keys, err = s.List(ctx, "idx/")
		require.NoError(t, err)
		assert.Len(t, keys, 3)
	})

	t.Run("delete prefix recursive and idempotent", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, "idx/doc-1/a", []byte("1")))
		require.NoError(t, s.Put(ctx, "idx/doc-1/sub", []byte("2")))
		require.NoError(t, s.Put(ctx, "idx/doc-2/a", []byte("3")))

		require.NoError(t, s.Delete(ctx, "idx/doc-1/"))
		keys, err := s.List(ctx, "idx/")
		require.NoError(t, err)
		assert.Equal(t, []string{"idx/doc-2/a"}, keys)

		// Deleting again is not an error.
		require.NoError(t, s.Delete(ctx, "idx/doc-1/"))
	})

	t.Run("rejects traversal keys", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		assert.ErrorIs(t, s.Put(ctx, "../escape", []byte("x")), ErrInvalidKey)
		assert.ErrorIs(t, s.Put(ctx, "idx/../../etc", []byte("x")), ErrInvalidKey)
		assert.ErrorIs(t, s.Put(ctx, "", []byte("x")), ErrInvalidKey)
	})
}

func TestMemoryStore(t *testing.T) {
	storeTests(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestFSStore(t *testing.T) {
	storeTests(t, func(t *testing.T) Store {
		s, err := NewFSStore(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Put(context.Background(), "a/b/c", nil), ErrStoreClosed)
	_, err := s.Get(context.Background(), "a/b/c")
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "idx/doc-1/pipeline.state", StateKey("idx", "doc-1"))
	assert.Equal(t, "source.0.txt", SourceName(0, "Notes.TXT"))
	assert.Equal(t, "source.2.bin", SourceName(2, "raw"))
	assert.Equal(t, "partition_text.0.4.txt", StepOutputName("partition_text", "0", 4, "txt"))
}
