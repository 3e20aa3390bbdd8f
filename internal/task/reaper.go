package task

import (
	"context"
	"time"
)

// Reaper periodically deletes terminal tasks past the retention window.
type Reaper struct {
	M        *Manager
	Interval time.Duration
}

func NewReaper(m *Manager, interval time.Duration) *Reaper {
	return &Reaper{M: m, Interval: interval}
}

func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		r.M.ReapExpired(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
