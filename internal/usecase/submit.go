package usecase

import (
	"context"
	"io"

	"pdfcache/internal/cache"
	"pdfcache/internal/domain"
	"pdfcache/internal/task"
)

// Request is one job submission: the generation parameters plus the input
// files whose content feeds the fingerprint.
type Request struct {
	Kind     string
	Params   map[string]string
	Files    []io.Reader
	Priority domain.Priority
	Owner    string
}

// Response is either a cached artifact or a tracked task to poll.
type Response struct {
	CacheKey string            `json:"cache_key"`
	Cached   bool              `json:"cached"`
	Payload  []byte            `json:"payload,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	TaskID   string            `json:"task_id,omitempty"`
}

// Submitter is the cache-first front door: derive the fingerprint, return the
// cached result on a hit, otherwise schedule a task for the workers.
//
// Concurrent misses on the same fingerprint are not deduplicated: both
// callers get a task, both computations run, and the last Set wins. The
// computation is idempotent, so the overwrite is equivalent.
type Submitter struct {
	Cache *cache.Engine
	Tasks *task.Manager
}

func (s Submitter) Submit(ctx context.Context, req Request) (*Response, error) {
	key, err := cache.DeriveKey(req.Params, req.Files...)
	if err != nil {
		return nil, err
	}

	entry, outcome, err := s.Cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if outcome == cache.OutcomeHit {
		return &Response{
			CacheKey: key,
			Cached:   true,
			Payload:  entry.Payload,
			Metadata: entry.Metadata,
		}, nil
	}

	payload := make(map[string]string, len(req.Params)+1)
	for k, v := range req.Params {
		payload[k] = v
	}
	payload["cache_key"] = key

	t, err := s.Tasks.Create(ctx, req.Kind, payload, req.Priority, req.Owner)
	if err != nil {
		return nil, err
	}
	return &Response{CacheKey: key, TaskID: t.ID}, nil
}
