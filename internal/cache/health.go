package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"pdfcache/pkg/breaker"
)

// Health is the point-in-time availability view the engine reports.
type Health struct {
	Available         bool          `json:"available"`
	Breaker           breaker.State `json:"circuit_breaker"`
	LastHealthCheckAt time.Time     `json:"last_health_check_at,omitzero"`
}

// CheckHealth pings the durable store outside the breaker's call budget. A
// successful probe nudges the breaker toward recovery ahead of its timeout.
func (e *Engine) CheckHealth(ctx context.Context) bool {
	err := e.store.Ping(ctx)

	e.healthMu.Lock()
	e.lastHealthCheck = time.Now().UTC()
	e.available = err == nil
	e.healthMu.Unlock()

	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("cache store health check failed")
		return false
	}
	e.breaker.NoteHealthy()
	return true
}

func (e *Engine) Health() Health {
	e.healthMu.Lock()
	available, last := e.available, e.lastHealthCheck
	e.healthMu.Unlock()

	return Health{
		Available:         available,
		Breaker:           e.breaker.Snapshot(),
		LastHealthCheckAt: last,
	}
}

// ResetCircuit is the manual administrative override.
func (e *Engine) ResetCircuit() {
	e.breaker.ForceReset()
	log.Info().Msg("cache circuit breaker reset manually")
}
