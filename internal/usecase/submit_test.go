package usecase

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfcache/internal/cache"
	"pdfcache/internal/config"
	"pdfcache/internal/domain"
	"pdfcache/internal/fallback"
	"pdfcache/pkg/breaker"
)

func newTestEngine() *cache.Engine {
	cfg := config.Cache{
		KeyPrefix:            "cache",
		DefaultTTL:           time.Hour,
		Version:              2,
		CompressionThreshold: 512,
		BreakerThreshold:     5,
		BreakerRecovery:      time.Minute,
	}
	return cache.New(fallback.New(256), fallback.New(256), breaker.New(5, time.Minute), cfg)
}

func TestSubmitter_MissSchedulesTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := Submitter{Cache: newTestEngine(), Tasks: newTestManager(3)}

	resp, err := s.Submit(ctx, Request{
		Kind:     "pdf_generation",
		Params:   map[string]string{"ppi": "300"},
		Files:    []io.Reader{bytes.NewReader([]byte("front"))},
		Priority: domain.PriorityNormal,
		Owner:    "alice",
	})
	require.NoError(t, err)

	assert.False(t, resp.Cached)
	assert.NotEmpty(t, resp.TaskID)
	assert.NotEmpty(t, resp.CacheKey)

	created, found := s.Tasks.Get(ctx, resp.TaskID)
	require.True(t, found)
	assert.Equal(t, domain.StatusPending, created.Status)
	assert.Equal(t, resp.CacheKey, created.Payload["cache_key"])
	assert.Equal(t, "alice", created.Owner)
}

func TestSubmitter_HitReturnsCachedResult(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := Submitter{Cache: newTestEngine(), Tasks: newTestManager(3)}

	req := Request{
		Kind:   "pdf_generation",
		Params: map[string]string{"ppi": "300"},
		Files:  []io.Reader{bytes.NewReader([]byte("front"))},
	}
	first, err := s.Submit(ctx, req)
	require.NoError(t, err)
	require.False(t, first.Cached)

	// The worker finishes and stores the artifact under the fingerprint.
	require.NoError(t, s.Cache.Set(ctx, first.CacheKey, []byte("the pdf"), time.Hour, map[string]string{"kind": "pdf_generation"}))

	req.Files = []io.Reader{bytes.NewReader([]byte("front"))}
	second, err := s.Submit(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, []byte("the pdf"), second.Payload)
	assert.Empty(t, second.TaskID)
	assert.Equal(t, first.CacheKey, second.CacheKey)
}
