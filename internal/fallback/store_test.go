package fallback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfcache/internal/ports"
)

func TestStore_SetGetDelete(t *testing.T) {
	t.Parallel()

	s := New(8)
	ctx := context.Background()

	_, err := s.Get(ctx, "k1")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, s.Set(ctx, "k1", []byte("v1"), 0))
	got, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	n, err := s.Delete(ctx, "k1", "absent")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, "k1")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestStore_TTLExpiry(t *testing.T) {
	t.Parallel()

	s := New(8)
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }
	require.NoError(t, s.Set(ctx, "k1", []byte("v1"), time.Minute))

	s.now = func() time.Time { return now.Add(30 * time.Second) }
	_, err := s.Get(ctx, "k1")
	assert.NoError(t, err)

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = s.Get(ctx, "k1")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestStore_EvictsOldestAtCapacity(t *testing.T) {
	t.Parallel()

	s := New(2)
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }
	require.NoError(t, s.Set(ctx, "old", []byte("1"), 0))
	s.now = func() time.Time { return now.Add(time.Second) }
	require.NoError(t, s.Set(ctx, "mid", []byte("2"), 0))
	s.now = func() time.Time { return now.Add(2 * time.Second) }
	require.NoError(t, s.Set(ctx, "new", []byte("3"), 0))

	assert.Equal(t, 2, s.Len())
	_, err := s.Get(ctx, "old")
	assert.ErrorIs(t, err, ports.ErrNotFound, "oldest write is evicted first")
	_, err = s.Get(ctx, "new")
	assert.NoError(t, err)
}

func TestStore_KeysGlob(t *testing.T) {
	t.Parallel()

	s := New(8)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "cache:pdf:abc:1", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "cache:pdf:abc:2", []byte("2"), 0))
	require.NoError(t, s.Set(ctx, "cache:other:xyz", []byte("3"), 0))

	keys, err := s.Keys(ctx, "cache:pdf:abc:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cache:pdf:abc:1", "cache:pdf:abc:2"}, keys)

	keys, err = s.Keys(ctx, "cache:*")
	require.NoError(t, err)
	assert.Len(t, keys, 3, "star crosses the colon delimiter")
}
