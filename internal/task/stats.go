package task

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"pdfcache/internal/domain"
	"pdfcache/pkg/breaker"
)

// Stats aggregates counts by status and priority plus the retry
// distribution. Degraded storage yields Available=false, never an error.
type Stats struct {
	Available  bool                      `json:"available"`
	Total      int                       `json:"total"`
	ByStatus   map[domain.TaskStatus]int `json:"by_status"`
	ByPriority map[domain.Priority]int   `json:"by_priority"`
	Retries    map[int]int               `json:"retries"`
	Breaker    breaker.State             `json:"circuit_breaker"`
}

func (m *Manager) Stats(ctx context.Context) Stats {
	all, available := m.listAll(ctx)
	stats := Stats{
		Available:  available,
		Total:      len(all),
		ByStatus:   map[domain.TaskStatus]int{},
		ByPriority: map[domain.Priority]int{},
		Retries:    map[int]int{},
	}
	for _, t := range all {
		stats.ByStatus[t.Status]++
		stats.ByPriority[t.Priority]++
		stats.Retries[t.RetryCount]++
	}
	stats.Breaker = m.breaker.Snapshot()
	return stats
}

// Health mirrors the cache engine's health view for the task namespace.
type Health struct {
	Available         bool          `json:"available"`
	Breaker           breaker.State `json:"circuit_breaker"`
	LastHealthCheckAt time.Time     `json:"last_health_check_at,omitzero"`
}

func (m *Manager) CheckHealth(ctx context.Context) bool {
	err := m.store.Ping(ctx)

	m.healthMu.Lock()
	m.lastHealthCheck = time.Now().UTC()
	m.available = err == nil
	m.healthMu.Unlock()

	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("task store health check failed")
		return false
	}
	m.breaker.NoteHealthy()
	return true
}

func (m *Manager) Health() Health {
	m.healthMu.Lock()
	available, last := m.available, m.lastHealthCheck
	m.healthMu.Unlock()

	return Health{
		Available:         available,
		Breaker:           m.breaker.Snapshot(),
		LastHealthCheckAt: last,
	}
}

// ResetCircuit is the manual administrative override.
func (m *Manager) ResetCircuit() {
	m.breaker.ForceReset()
	log.Info().Msg("task circuit breaker reset manually")
}
