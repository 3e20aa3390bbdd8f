package domain

import "time"

// CacheEntry is the stored envelope for one cached artifact. The whole struct
// is what goes over the wire to the store, not just the payload: stats and
// health reporting read the metadata fields back.
type CacheEntry struct {
	Key            string            `json:"key"`
	Payload        []byte            `json:"payload"`
	Compressed     bool              `json:"compressed"`
	Version        int               `json:"version"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
	AccessCount    int64             `json:"access_count"`
	TTLSeconds     int64             `json:"ttl_seconds"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}
