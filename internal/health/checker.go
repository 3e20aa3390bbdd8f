// Package health runs the periodic store probe that lets circuit breakers
// recover ahead of their timeout.
package health

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"pdfcache/pkg/backoff"
)

// Prober is implemented by the cache engine and task manager: ping the
// dependency, record the result, nudge the breaker when healthy.
type Prober interface {
	CheckHealth(ctx context.Context) bool
}

type Checker struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Probes      []Prober
}

func NewChecker(interval, maxInterval time.Duration, probes ...Prober) *Checker {
	return &Checker{Interval: interval, MaxInterval: maxInterval, Probes: probes}
}

// Run probes on the configured interval, widening the gap with exponential
// jitter while the dependency stays down so a dead store is not hammered.
func (c *Checker) Run(ctx context.Context) error {
	fails := 0
	for {
		healthy := true
		for _, p := range c.Probes {
			if !p.CheckHealth(ctx) {
				healthy = false
			}
		}

		wait := c.Interval
		if healthy {
			fails = 0
		} else {
			fails++
			wait = backoff.ExponentialJitter(c.Interval, c.MaxInterval, fails)
			log.Ctx(ctx).Warn().Dur("next_probe_in", wait).Msg("store unhealthy, backing off health probes")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
