// internal/worker/server.go
package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"pdfcache/internal/cache"
	"pdfcache/internal/config"
	"pdfcache/internal/domain"
	"pdfcache/internal/fallback"
	"pdfcache/internal/health"
	"pdfcache/internal/infra/redisstore"
	"pdfcache/internal/task"
	"pdfcache/internal/usecase"
	"pdfcache/pkg/breaker"
)

// Run starts the worker process: health checker, task reaper and the
// executor loop that renders queued jobs and stores their artifacts in the
// cache. A down store at boot is tolerated; the breakers and fallback take
// over until it comes back.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store := redisstore.New(cfg.Redis)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.Connect(ctx); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("store unreachable at boot, starting degraded")
	}

	engine := cache.New(
		store,
		fallback.New(cfg.Fallback.Capacity),
		breaker.New(cfg.Cache.BreakerThreshold, cfg.Cache.BreakerRecovery),
		cfg.Cache,
	)
	tasks := task.NewManager(
		store,
		fallback.New(cfg.Fallback.Capacity),
		breaker.New(cfg.Task.BreakerThreshold, cfg.Task.BreakerRecovery),
		cfg.Task,
	)

	checker := health.NewChecker(cfg.Cache.HealthCheckInterval, 10*cfg.Cache.HealthCheckInterval, engine, tasks)
	go func() {
		if err := checker.Run(ctx); err != nil && ctx.Err() == nil {
			log.Ctx(ctx).Error().Err(err).Msg("health checker stopped with error")
		}
	}()

	reaper := task.NewReaper(tasks, cfg.Task.ReapInterval)
	go func() {
		if err := reaper.Run(ctx); err != nil && ctx.Err() == nil {
			log.Ctx(ctx).Error().Err(err).Msg("reaper stopped with error")
		}
	}()

	exec := usecase.Executor{
		Tasks:        tasks,
		Handle:       renderHandler(engine, cfg.Cache.DefaultTTL),
		PollInterval: cfg.Worker.PollInterval,
		BaseBackoff:  cfg.Worker.BaseBackoff,
		MaxBackoff:   cfg.Worker.MaxBackoff,
	}
	return exec.Run(ctx)
}

// renderHandler runs one generation job and caches the produced artifact
// under the fingerprint the submitter attached to the task payload. The
// render itself is a placeholder: this layer only cares that the result
// lands in the cache.
func renderHandler(engine *cache.Engine, ttl time.Duration) usecase.Handler {
	return func(ctx context.Context, t domain.Task, report func(float64) bool) (map[string]string, error) {
		key := t.Payload["cache_key"]
		if key == "" {
			return nil, fmt.Errorf("task %s has no cache_key", t.ID)
		}
		if !report(10) {
			return nil, fmt.Errorf("task %s cancelled", t.ID)
		}

		artifact := []byte("rendered:" + t.Kind + ":" + key)
		if !report(90) {
			return nil, fmt.Errorf("task %s cancelled", t.ID)
		}

		if err := engine.Set(ctx, key, artifact, ttl, map[string]string{"kind": t.Kind}); err != nil {
			return nil, err
		}
		log.Ctx(ctx).Info().Str("task_id", t.ID).Str("key", key).Msg("artifact cached")
		return map[string]string{"cache_key": key}, nil
	}
}
