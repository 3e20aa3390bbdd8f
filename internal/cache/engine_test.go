package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfcache/internal/config"
	"pdfcache/internal/domain"
	"pdfcache/internal/fallback"
	"pdfcache/internal/ports"
	"pdfcache/pkg/breaker"
)

// flakyStore wraps the in-memory store and injects transient failures on
// demand, standing in for a degraded Redis.
type flakyStore struct {
	inner   *fallback.Store
	mu      sync.Mutex
	failing bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{inner: fallback.New(1024)}
}

func (f *flakyStore) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *flakyStore) down() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failing
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.down() {
		return nil, ports.Transient("get", errors.New("connection refused"))
	}
	return f.inner.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if f.down() {
		return ports.Transient("set", errors.New("connection refused"))
	}
	return f.inner.Set(ctx, key, value, ttl)
}

func (f *flakyStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	if f.down() {
		return 0, ports.Transient("delete", errors.New("connection refused"))
	}
	return f.inner.Delete(ctx, keys...)
}

func (f *flakyStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if f.down() {
		return nil, ports.Transient("scan", errors.New("connection refused"))
	}
	return f.inner.Keys(ctx, pattern)
}

func (f *flakyStore) Ping(ctx context.Context) error {
	if f.down() {
		return ports.Transient("ping", errors.New("connection refused"))
	}
	return nil
}

func testCacheConfig() config.Cache {
	return config.Cache{
		KeyPrefix:            "cache",
		DefaultTTL:           time.Hour,
		Version:              2,
		CompressionThreshold: 512,
		BreakerThreshold:     5,
		BreakerRecovery:      time.Minute,
	}
}

func newTestEngine(store ports.Store, cfg config.Cache) *Engine {
	return New(store, fallback.New(64), breaker.New(cfg.BreakerThreshold, cfg.BreakerRecovery), cfg)
}

func TestEngine_HitMissScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(newFlakyStore(), testCacheConfig())

	entry, outcome, err := e.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Equal(t, OutcomeMiss, outcome)

	require.NoError(t, e.Set(ctx, "k1", []byte("data"), time.Minute, nil))

	entry, outcome, err = e.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, OutcomeHit, outcome)
	assert.Equal(t, []byte("data"), entry.Payload)
	assert.Equal(t, int64(1), entry.AccessCount)
	assert.Equal(t, "k1", entry.Key)
}

func TestEngine_AccessCountPersistsAcrossHits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(newFlakyStore(), testCacheConfig())
	require.NoError(t, e.Set(ctx, "k1", []byte("data"), time.Minute, nil))

	_, _, err := e.Get(ctx, "k1")
	require.NoError(t, err)
	entry, outcome, err := e.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, OutcomeHit, outcome)
	assert.Equal(t, int64(2), entry.AccessCount, "sliding refresh persists the bumped count")
}

func TestEngine_CompressionRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFlakyStore()
	e := newTestEngine(store, testCacheConfig())

	payload := bytes.Repeat([]byte("pdf bytes "), 200)
	require.NoError(t, e.Set(ctx, "big", payload, time.Minute, nil))

	raw, err := store.Get(ctx, "cache:big")
	require.NoError(t, err)
	var stored domain.CacheEntry
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.True(t, stored.Compressed)
	assert.Less(t, len(stored.Payload), len(payload))

	entry, outcome, err := e.Get(ctx, "big")
	require.NoError(t, err)
	require.Equal(t, OutcomeHit, outcome)
	assert.Equal(t, payload, entry.Payload)
	assert.False(t, entry.Compressed)
}

func TestEngine_VersionMismatchIsMiss(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFlakyStore()
	e := newTestEngine(store, testCacheConfig())
	require.NoError(t, e.Set(ctx, "k1", []byte("data"), time.Minute, nil))

	newer := testCacheConfig()
	newer.Version = 3
	e2 := New(store, fallback.New(64), breaker.New(5, time.Minute), newer)

	_, outcome, err := e2.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, outcome, "old-generation entries read as absent")
}

func TestEngine_CorruptPayloadIsMiss(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFlakyStore()
	e := newTestEngine(store, testCacheConfig())

	entry := domain.CacheEntry{
		Key:        "k1",
		Payload:    []byte("not gzip at all"),
		Compressed: true,
		Version:    2,
	}
	raw, err := json.Marshal(entry)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "cache:k1", raw, time.Minute))

	got, outcome, err := e.Get(ctx, "k1")
	require.NoError(t, err, "decompression failure must not surface")
	assert.Nil(t, got)
	assert.Equal(t, OutcomeMiss, outcome)
}

func TestEngine_FallbackWhenStoreDown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFlakyStore()
	store.setFailing(true)
	e := newTestEngine(store, testCacheConfig())

	require.NoError(t, e.Set(ctx, "k1", []byte("data"), time.Minute, nil), "set degrades to fallback, no transport error")

	entry, outcome, err := e.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, OutcomeHit, outcome, "fallback serves the outage-era write")
	assert.Equal(t, []byte("data"), entry.Payload)
}

func TestEngine_BreakerOpensUnderRepeatedFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFlakyStore()
	store.setFailing(true)
	cfg := testCacheConfig()
	cfg.BreakerThreshold = 3
	e := newTestEngine(store, cfg)

	for i := 0; i < 3; i++ {
		_, _, err := e.Get(ctx, "k1")
		require.NoError(t, err)
	}
	assert.Equal(t, breaker.Open, e.Health().Breaker.Status)

	// Still no error surfaced while open; calls route straight to fallback.
	_, outcome, err := e.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, outcome)
}

func TestEngine_InvalidateAbsentIsNoop(t *testing.T) {
	t.Parallel()

	e := newTestEngine(newFlakyStore(), testCacheConfig())
	assert.NoError(t, e.Invalidate(context.Background(), "never-set"))
}

func TestEngine_PatternInvalidationScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(newFlakyStore(), testCacheConfig())
	require.NoError(t, e.Set(ctx, "pdf:abc:1", []byte("a"), time.Minute, nil))
	require.NoError(t, e.Set(ctx, "pdf:abc:2", []byte("b"), time.Minute, nil))
	require.NoError(t, e.Set(ctx, "other:xyz", []byte("c"), time.Minute, nil))

	removed, err := e.InvalidateByPattern(ctx, "pdf:abc:*")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, outcome, err := e.Get(ctx, "pdf:abc:1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, outcome)
	_, outcome, err = e.Get(ctx, "other:xyz")
	require.NoError(t, err)
	assert.Equal(t, OutcomeHit, outcome, "entries outside the pattern survive")
}

func TestEngine_LastWriteWinsOnDoubleSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(newFlakyStore(), testCacheConfig())

	require.NoError(t, e.Set(ctx, "k2", []byte("resultA"), time.Minute, nil))
	require.NoError(t, e.Set(ctx, "k2", []byte("resultB"), time.Minute, nil))

	entry, outcome, err := e.Get(ctx, "k2")
	require.NoError(t, err)
	require.Equal(t, OutcomeHit, outcome)
	assert.Equal(t, []byte("resultB"), entry.Payload)
}

func TestEngine_WarmCollectsPartialFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(newFlakyStore(), testCacheConfig())

	report := e.Warm(ctx, []WarmEntry{
		{Key: "w1", Payload: []byte("1")},
		{Key: "bad key", Payload: []byte("2")},
		{Key: "w3", Payload: []byte("3")},
	})

	assert.Equal(t, 2, report.Warmed)
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed, "bad key")

	_, outcome, err := e.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeHit, outcome)
}

func TestEngine_Stats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFlakyStore()
	e := newTestEngine(store, testCacheConfig())

	require.NoError(t, e.Set(ctx, "small", []byte("tiny"), time.Minute, nil))
	require.NoError(t, e.Set(ctx, "big", bytes.Repeat([]byte("x"), 2048), time.Minute, nil))
	_, _, err := e.Get(ctx, "small")
	require.NoError(t, err)

	stats := e.Stats(ctx)
	assert.True(t, stats.Available)
	assert.Equal(t, 2, stats.EntryCount)
	assert.Equal(t, 1, stats.CompressedEntries)
	assert.InDelta(t, 0.5, stats.CompressionRatio, 0.001)
	assert.InDelta(t, 0.5, stats.AvgAccessCount, 0.001)
	assert.NotNil(t, stats.OldestEntry)
	assert.NotNil(t, stats.NewestEntry)
}

func TestEngine_StatsDegradedWhenStoreDown(t *testing.T) {
	t.Parallel()

	store := newFlakyStore()
	store.setFailing(true)
	e := newTestEngine(store, testCacheConfig())

	stats := e.Stats(context.Background())
	assert.False(t, stats.Available)
	assert.Equal(t, 0, stats.EntryCount)
}

func TestEngine_InvalidKeyRejectedBeforeIO(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(newFlakyStore(), testCacheConfig())

	var ve *domain.ValidationError
	_, _, err := e.Get(ctx, "has space")
	require.Error(t, err)
	assert.ErrorAs(t, err, &ve)

	err = e.Set(ctx, "", []byte("x"), time.Minute, nil)
	require.Error(t, err)
	assert.ErrorAs(t, err, &ve)
}

func TestEngine_HealthAfterCheck(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFlakyStore()
	cfg := testCacheConfig()
	cfg.BreakerThreshold = 1
	e := newTestEngine(store, cfg)

	store.setFailing(true)
	_, _, err := e.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, breaker.Open, e.Health().Breaker.Status)
	assert.False(t, e.CheckHealth(ctx))
	assert.False(t, e.Health().Available)

	store.setFailing(false)
	assert.True(t, e.CheckHealth(ctx))
	h := e.Health()
	assert.True(t, h.Available)
	assert.False(t, h.LastHealthCheckAt.IsZero())
	assert.Equal(t, breaker.HalfOpen, h.Breaker.Status, "healthy probe moves an open breaker to half-open")
}
