// Package cache maps deterministic request fingerprints to previously
// computed artifacts. Every remote operation goes through a circuit breaker;
// while the breaker is open, reads and writes are transparently served by the
// local fallback store, so callers only ever observe hit, miss or degraded,
// never a transport error.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pdfcache/internal/config"
	"pdfcache/internal/domain"
	"pdfcache/internal/ports"
	"pdfcache/pkg/breaker"
	"pdfcache/pkg/compress"
)

// Outcome tells the caller how a lookup resolved. There is no exception path
// for an unreachable store: unavailability is a value.
type Outcome string

const (
	OutcomeHit         Outcome = "hit"
	OutcomeMiss        Outcome = "miss"
	OutcomeUnavailable Outcome = "unavailable"
)

type Engine struct {
	store   ports.Store
	local   ports.Store
	breaker *breaker.Breaker
	codec   compress.Codec
	cfg     config.Cache

	healthMu        sync.Mutex
	available       bool
	lastHealthCheck time.Time
}

// New wires an engine from explicit collaborators. No globals: tests build
// isolated instances per case.
func New(store, local ports.Store, br *breaker.Breaker, cfg config.Cache) *Engine {
	return &Engine{
		store:   store,
		local:   local,
		breaker: br,
		codec:   compress.Codec{Threshold: cfg.CompressionThreshold},
		cfg:     cfg,
	}
}

func (e *Engine) storageKey(key string) string {
	return e.cfg.KeyPrefix + ":" + key
}

// Get returns the entry for key, refreshing its sliding TTL and access
// metadata on a hit. Version mismatches, corrupt envelopes and
// undecompressable payloads all read as misses. The only error returned is a
// validation error for a malformed key.
func (e *Engine) Get(ctx context.Context, key string) (*domain.CacheEntry, Outcome, error) {
	if err := validateKey(key); err != nil {
		return nil, OutcomeMiss, domain.Invalid("key", err.Error())
	}
	sk := e.storageKey(key)

	if err := e.breaker.Allow(); err != nil {
		return e.getFrom(ctx, e.local, key, sk, false)
	}

	entry, outcome, err := e.getFrom(ctx, e.store, key, sk, true)
	if outcome == OutcomeUnavailable {
		return e.getFrom(ctx, e.local, key, sk, false)
	}
	return entry, outcome, err
}

// getFrom reads one store. When recording is set the result is reported to
// the breaker; a miss still counts as success since the dependency answered.
func (e *Engine) getFrom(ctx context.Context, s ports.Store, key, sk string, record bool) (*domain.CacheEntry, Outcome, error) {
	raw, err := s.Get(ctx, sk)
	if err != nil {
		if err == ports.ErrNotFound {
			if record {
				e.breaker.RecordSuccess()
			}
			return nil, OutcomeMiss, nil
		}
		if record && ports.IsTransient(err) {
			e.breaker.RecordFailure()
			log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("durable store read failed, trying fallback")
		}
		return nil, OutcomeUnavailable, nil
	}
	if record {
		e.breaker.RecordSuccess()
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("key", key).Msg("corrupt cache envelope, treating as miss")
		return nil, OutcomeMiss, nil
	}
	if entry.Version != e.cfg.Version {
		return nil, OutcomeMiss, nil
	}
	if entry.Compressed {
		plain, err := e.codec.Decompress(entry.Payload)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("key", key).Msg("cache payload decompression failed, treating as miss")
			return nil, OutcomeMiss, nil
		}
		entry.Payload = plain
		entry.Compressed = false
	}

	entry.AccessCount++
	entry.LastAccessedAt = time.Now().UTC()
	e.refresh(ctx, s, sk, entry)

	entry.Key = key
	return &entry, OutcomeHit, nil
}

// refresh writes back the bumped access metadata and restarts the TTL.
// Best-effort: a failed refresh does not turn a hit into an error.
func (e *Engine) refresh(ctx context.Context, s ports.Store, sk string, entry domain.CacheEntry) {
	ttl := time.Duration(entry.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = e.cfg.DefaultTTL
	}
	entry.Payload, entry.Compressed = e.codec.Compress(entry.Payload)
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.Set(ctx, sk, raw, ttl); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("cache ttl refresh failed")
	}
}

// Set stores payload under key, compressing it above the configured
// threshold. A zero ttl uses the engine default. Storage failures route the
// entry into the local fallback instead of surfacing.
func (e *Engine) Set(ctx context.Context, key string, payload []byte, ttl time.Duration, metadata map[string]string) error {
	if err := validateKey(key); err != nil {
		return domain.Invalid("key", err.Error())
	}
	if ttl <= 0 {
		ttl = e.cfg.DefaultTTL
	}

	now := time.Now().UTC()
	entry := domain.CacheEntry{
		Key:            key,
		Version:        e.cfg.Version,
		CreatedAt:      now,
		LastAccessedAt: now,
		TTLSeconds:     int64(ttl / time.Second),
		Metadata:       metadata,
	}
	entry.Payload, entry.Compressed = e.codec.Compress(payload)

	raw, err := json.Marshal(entry)
	if err != nil {
		return domain.Invalid("payload", err.Error())
	}
	sk := e.storageKey(key)

	if err := e.breaker.Allow(); err != nil {
		return e.local.Set(ctx, sk, raw, ttl)
	}
	if err := e.store.Set(ctx, sk, raw, ttl); err != nil {
		if ports.IsTransient(err) {
			e.breaker.RecordFailure()
			log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("durable store write failed, writing to fallback")
			return e.local.Set(ctx, sk, raw, ttl)
		}
		return err
	}
	e.breaker.RecordSuccess()
	return nil
}

// Invalidate deletes one entry. Deleting an absent key is a no-op. The local
// fallback is always cleared too so stale outage-era copies cannot resurface.
func (e *Engine) Invalidate(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return domain.Invalid("key", err.Error())
	}
	sk := e.storageKey(key)
	defer e.local.Delete(ctx, sk)

	if err := e.breaker.Allow(); err != nil {
		return nil
	}
	if _, err := e.store.Delete(ctx, sk); err != nil {
		if ports.IsTransient(err) {
			e.breaker.RecordFailure()
			log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("durable store delete failed")
			return nil
		}
		return err
	}
	e.breaker.RecordSuccess()
	return nil
}

// InvalidateByPattern deletes every entry whose key matches a glob pattern
// (Redis MATCH dialect; `*` crosses the `:` delimiter). The pattern applies
// within this engine's namespace, so task records are never touched.
func (e *Engine) InvalidateByPattern(ctx context.Context, pattern string) (int64, error) {
	if pattern == "" {
		return 0, domain.Invalid("pattern", "empty pattern")
	}
	sp := e.storageKey(pattern)

	var removed int64
	if localKeys, err := e.local.Keys(ctx, sp); err == nil && len(localKeys) > 0 {
		n, _ := e.local.Delete(ctx, localKeys...)
		removed += n
	}

	if err := e.breaker.Allow(); err != nil {
		return removed, nil
	}
	keys, err := e.store.Keys(ctx, sp)
	if err != nil {
		if ports.IsTransient(err) {
			e.breaker.RecordFailure()
			log.Ctx(ctx).Warn().Err(err).Str("pattern", pattern).Msg("pattern scan failed")
			return removed, nil
		}
		return removed, err
	}
	e.breaker.RecordSuccess()
	if len(keys) == 0 {
		return removed, nil
	}
	n, err := e.store.Delete(ctx, keys...)
	if err != nil {
		if ports.IsTransient(err) {
			e.breaker.RecordFailure()
			return removed, nil
		}
		return removed, err
	}
	return removed + n, nil
}

// WarmEntry is one precomputed record for bulk loading.
type WarmEntry struct {
	Key      string            `json:"key"`
	Payload  []byte            `json:"payload"`
	TTL      time.Duration     `json:"ttl"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// WarmReport collects per-entry failures; warming is never all-or-nothing.
type WarmReport struct {
	Warmed int
	Failed map[string]error
}

func (e *Engine) Warm(ctx context.Context, entries []WarmEntry) WarmReport {
	report := WarmReport{Failed: map[string]error{}}
	for _, we := range entries {
		if err := e.Set(ctx, we.Key, we.Payload, we.TTL, we.Metadata); err != nil {
			report.Failed[we.Key] = err
			continue
		}
		report.Warmed++
	}
	log.Ctx(ctx).Info().Int("warmed", report.Warmed).Int("failed", len(report.Failed)).Msg("cache warm finished")
	return report
}
