package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pdfcache/internal/cache"
	"pdfcache/internal/config"
	"pdfcache/internal/fallback"
	"pdfcache/internal/infra/redisstore"
	"pdfcache/pkg/breaker"
)

func warmCmd() *cobra.Command {
	var file string
	var command = &cobra.Command{
		Use:   "warm",
		Short: "Bulk-load precomputed cache entries from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read warm file: %w", err)
			}
			var entries []cache.WarmEntry
			if err := json.Unmarshal(raw, &entries); err != nil {
				return fmt.Errorf("parse warm file: %w", err)
			}

			ctx := context.Background()
			store := redisstore.New(cfg.Redis)
			if err := store.Connect(ctx); err != nil {
				return err
			}
			engine := cache.New(
				store,
				fallback.New(cfg.Fallback.Capacity),
				breaker.New(cfg.Cache.BreakerThreshold, cfg.Cache.BreakerRecovery),
				cfg.Cache,
			)

			report := engine.Warm(ctx, entries)
			for key, err := range report.Failed {
				log.Error().Err(err).Str("key", key).Msg("warm entry rejected")
			}
			log.Info().Msgf("warmed %d of %d entries", report.Warmed, len(entries))
			return nil
		},
	}

	command.Flags().StringVarP(&file, "file", "f", "warm.json", "JSON file of entries to preload")
	return command
}
