package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"pdfcache/internal/domain"
	"pdfcache/internal/ports"
	"pdfcache/pkg/breaker"
)

// Stats is the aggregate view over every live entry in the engine's
// namespace. When the store is unreachable the degraded form carries
// Available=false plus breaker state instead of an error.
type Stats struct {
	Available         bool          `json:"available"`
	EntryCount        int           `json:"entry_count"`
	TotalSizeBytes    int64         `json:"total_size_bytes"`
	CompressedEntries int           `json:"compressed_entries"`
	CompressionRatio  float64       `json:"compression_ratio"`
	AvgAccessCount    float64       `json:"avg_access_count"`
	OldestEntry       *time.Time    `json:"oldest_entry,omitempty"`
	NewestEntry       *time.Time    `json:"newest_entry,omitempty"`
	Breaker           breaker.State `json:"circuit_breaker"`
}

func (e *Engine) Stats(ctx context.Context) Stats {
	stats := Stats{Breaker: e.breaker.Snapshot()}

	if err := e.breaker.Allow(); err != nil {
		return stats
	}
	keys, err := e.store.Keys(ctx, e.cfg.KeyPrefix+":*")
	if err != nil {
		if ports.IsTransient(err) {
			e.breaker.RecordFailure()
		}
		log.Ctx(ctx).Warn().Err(err).Msg("cache stats scan failed, reporting degraded stats")
		stats.Breaker = e.breaker.Snapshot()
		return stats
	}
	e.breaker.RecordSuccess()

	stats.Available = true
	var accessTotal int64
	for _, k := range keys {
		raw, err := e.store.Get(ctx, k)
		if err != nil {
			continue
		}
		var entry domain.CacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		stats.EntryCount++
		stats.TotalSizeBytes += int64(len(entry.Payload))
		if entry.Compressed {
			stats.CompressedEntries++
		}
		accessTotal += entry.AccessCount
		created := entry.CreatedAt
		if stats.OldestEntry == nil || created.Before(*stats.OldestEntry) {
			t := created
			stats.OldestEntry = &t
		}
		if stats.NewestEntry == nil || created.After(*stats.NewestEntry) {
			t := created
			stats.NewestEntry = &t
		}
	}
	if stats.EntryCount > 0 {
		stats.CompressionRatio = float64(stats.CompressedEntries) / float64(stats.EntryCount)
		stats.AvgAccessCount = float64(accessTotal) / float64(stats.EntryCount)
	}
	stats.Breaker = e.breaker.Snapshot()
	return stats
}
