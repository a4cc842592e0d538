package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"liquiditySim/internal/api"
	"liquiditySim/internal/broadcast"
	"liquiditySim/internal/cache"
	"liquiditySim/internal/chain"
	"liquiditySim/internal/config"
	"liquiditySim/internal/feed"
	"liquiditySim/internal/ingest"
	"liquiditySim/internal/metrics"
	"liquiditySim/internal/model"
	"liquiditySim/internal/simulate"
	"liquiditySim/internal/storage"
	"liquiditySim/internal/storage/postgres"
	"liquiditySim/internal/storage/redisstore"
)

func runServe(cmd *cobra.Command, _ []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	hub := broadcast.New[model.ClientUpdate](cfg.SubscriberBuffer)
	defer hub.Close()
	stateCache := cache.New(hub, logger)

	source, closeFeed, err := buildFeed(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFeed()

	sinks, closeSinks, err := buildSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	server := api.NewServer(api.Config{Listen: cfg.Listen, Version: version},
		stateCache, simulate.New(stateCache, logger), m, reg, logger)
	runner := ingest.NewRunner(ingest.RunConfig{QueueSize: cfg.QueueSize}, source, stateCache, m, logger)

	logger.Info("simulator start",
		zap.String("version", version),
		zap.String("listen", cfg.Listen),
		zap.String("chain", cfg.Chain),
		zap.String("replay_file", cfg.ReplayFile),
		zap.String("record_file", cfg.RecordFile),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Int("subscriber_buffer", cfg.SubscriberBuffer),
		zap.Int("sinks", len(sinks)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.ListenAndServe(gctx) })

	if len(sinks) > 0 {
		mirror := storage.NewMirror(stateCache.Subscribe(), sinks, m, logger)
		g.Go(func() error { return mirror.Run(gctx) })
	}

	// Ingestion ending, cleanly or not, leaves the API serving the last state.
	g.Go(func() error {
		if err := runner.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("ingestion stopped", zap.Error(err))
			return nil
		}
		logger.Info("ingestion finished", zap.Uint64("block", stateCache.CurrentBlock()))
		return nil
	})

	return g.Wait()
}

func buildFeed(ctx context.Context, cfg config.Config, logger *zap.Logger) (feed.Feed, func(), error) {
	var (
		source  feed.Feed
		closeFn = func() {}
	)

	if cfg.ReplayFile != "" {
		source = feed.NewReplayFeed(cfg.ReplayFile, cfg.PollInterval, logger)
	} else {
		pools, err := feed.LoadPools(cfg.PoolsFile)
		if err != nil {
			return nil, nil, err
		}

		client, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect rpc: %w", err)
		}
		closeFn = client.Close

		chainID, err := client.GetChainID(ctx)
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("get chain id: %w", err)
		}
		logger.Info("rpc connected",
			zap.String("chain", cfg.Chain),
			zap.String("chain_id", chainID.String()),
			zap.Int("pools", len(pools)),
		)

		source = feed.NewChainFeed(feed.ChainConfig{
			Chain:        cfg.Chain,
			Pools:        pools,
			PollInterval: cfg.PollInterval,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
		}, client, logger)
	}

	if cfg.RecordFile != "" {
		source = feed.NewRecorder(source, cfg.RecordFile, logger)
	}
	return source, closeFn, nil
}

func buildSinks(ctx context.Context, cfg config.Config, logger *zap.Logger) ([]storage.Sink, func(), error) {
	var (
		sinks   []storage.Sink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.JSONLOut != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.JSONLOut))
	}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, store)
	}

	if cfg.Redis.Addr != "" {
		client, err := redisstore.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("close redis", zap.Error(err))
			}
		})
		sinks = append(sinks, redisstore.NewWriter(client))
	}

	return sinks, closeAll, nil
}
