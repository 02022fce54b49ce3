package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anhlhn1/udacity-data-lake/internal/storage"
)

func TestBucketRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, b.Put(ctx, "t/a=1/part-0", []byte("one")))
	require.NoError(t, b.Put(ctx, "t/a=2/part-0", []byte("two")))
	require.NoError(t, b.Put(ctx, "other/x", []byte("x")))

	keys, err := b.List(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, []string{"t/a=1/part-0", "t/a=2/part-0"}, keys)

	got, err := storage.ReadAll(ctx, b, "t/a=2/part-0")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	ok, err := b.Exists(ctx, "other/x")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, b.Move(ctx, "other/x", "t/_SUCCESS"))
	ok, err = b.Exists(ctx, "other/x")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = os.Stat(filepath.Join(b.root, "other"))
	assert.True(t, os.IsNotExist(err), "empty source directory should be pruned")

	require.NoError(t, b.Delete(ctx, "t/a=1/part-0", "t/missing"))
	keys, err = b.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"t/_SUCCESS", "t/a=2/part-0"}, keys)
}

func TestBucketMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, err := New(filepath.Join(t.TempDir(), "not-yet"))
	require.NoError(t, err)

	keys, err := b.List(ctx, "nothing/here")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = b.Open(ctx, "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrNotExist))
}

func TestOpenViaRegistry(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, loc := range []string{dir, "file://" + dir} {
		b, err := storage.Open(context.Background(), loc, storage.Options{})
		require.NoError(t, err, loc)
		assert.Equal(t, dir, b.URI(""))
	}
}
