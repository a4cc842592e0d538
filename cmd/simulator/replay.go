package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquiditySim/internal/cache"
	"liquiditySim/internal/config"
	"liquiditySim/internal/feed"
	"liquiditySim/internal/ingest"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.ReplayFile == "" {
		return fmt.Errorf("replay file is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stateCache := cache.New(nil, logger)
	source := feed.NewReplayFeed(cfg.ReplayFile, 0, logger)
	runner := ingest.NewRunner(ingest.RunConfig{QueueSize: cfg.QueueSize}, source, stateCache, nil, logger)

	logger.Info("replay start", zap.String("in", cfg.ReplayFile))
	if err := runner.Run(ctx); err != nil {
		return err
	}

	snapshot := stateCache.FullSnapshot()
	logger.Info("replay done",
		zap.Uint64("block", snapshot.BlockNumber),
		zap.Int("pools", stateCache.Len()),
		zap.Int("priced", len(snapshot.SpotPrices)),
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot)
}
