package main

import (
	"context"
	"flag"
	"time"

	"github.com/noah-isme/toko-cart/internal/config"
	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/repo"
)

func main() {
	down := flag.Bool("down", false, "revert the most recent migration")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.ObsLogFormat, cfg.ObsLogLevel).With().Str("component", "migrate").Logger()
	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if *down {
		err = repo.Rollback(ctx, cfg.DatabaseURL)
	} else {
		err = repo.Migrate(ctx, cfg.DatabaseURL)
	}
	if err != nil {
		logger.Fatal().Err(err).Bool("down", *down).Msg("migration failed")
	}
	logger.Info().Bool("down", *down).Msg("migrations applied")
}
