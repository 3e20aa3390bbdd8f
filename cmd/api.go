package cmd

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pdfcache/internal/api"
	"pdfcache/internal/cache"
	"pdfcache/internal/config"
	"pdfcache/internal/fallback"
	"pdfcache/internal/health"
	"pdfcache/internal/infra/redisstore"
	"pdfcache/internal/task"
	"pdfcache/internal/usecase"
	"pdfcache/pkg/breaker"
)

func apiCmd() *cobra.Command {
	var port int
	var command = &cobra.Command{
		Use:   "api",
		Short: "Start API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			store := redisstore.New(cfg.Redis)
			if err := store.Connect(ctx); err != nil {
				log.Warn().Err(err).Msg("store unreachable at boot, starting degraded")
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
				if err := checker.Run(ctx); err != nil {
					log.Error().Err(err).Msg("health checker stopped with error")
				}
			}()

			server := api.NewServer(api.Deps{
				Engine:    engine,
				Tasks:     tasks,
				Submitter: usecase.Submitter{Cache: engine, Tasks: tasks},
			})
			server.Run(port)
			return nil
		},
	}

	command.Flags().IntVarP(&port, "port", "p", 8080, "Port to run the server on")
	return command
}
