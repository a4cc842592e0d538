package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"liquiditySim/internal/feed"
	"liquiditySim/internal/metrics"
	"liquiditySim/internal/model"
)

// DefaultQueueSize bounds the feed-to-writer queue when no size is given.
const DefaultQueueSize = 32

// Ingester merges block updates. *cache.Cache satisfies it.
type Ingester interface {
	Ingest(update model.BlockUpdate) model.ClientUpdate
}

// RunConfig holds runtime settings for the ingestion loop.
type RunConfig struct {
	QueueSize int
}

// Runner connects a feed to the cache: the feed runs in its own goroutine
// and fills a bounded queue, and the calling goroutine applies updates one
// at a time in arrival order.
type Runner struct {
	cfg     RunConfig
	feed    feed.Feed
	cache   Ingester
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewRunner builds a Runner with its dependencies. m may be nil.
func NewRunner(cfg RunConfig, source feed.Feed, cache Ingester, m *metrics.Metrics, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Runner{
		cfg:     cfg,
		feed:    source,
		cache:   cache,
		metrics: m,
		logger:  logger,
	}
}

// Run blocks until the feed finishes and every queued update has been
// applied. It returns the feed's error; a feed that ends cleanly yields nil.
func (r *Runner) Run(ctx context.Context) error {
	if r.feed == nil {
		return fmt.Errorf("feed is nil")
	}
	if r.cache == nil {
		return fmt.Errorf("cache is nil")
	}

	queue := make(chan model.BlockUpdate, r.cfg.QueueSize)
	feedErr := make(chan error, 1)
	go func() {
		defer close(queue)
		feedErr <- r.feed.Run(ctx, queue)
	}()

	applied := 0
	for update := range queue {
		msg := r.cache.Ingest(update)
		applied++
		if r.metrics != nil {
			r.metrics.UpdatesIngested.Inc()
			r.metrics.CurrentBlock.Set(float64(msg.BlockNumber))
			r.metrics.QueueDepth.Set(float64(len(queue)))
		}
	}

	err := <-feedErr
	switch {
	case err == nil:
		r.logger.Info("feed finished", zap.Int("applied", applied))
	case errors.Is(err, context.Canceled):
		r.logger.Info("ingestion stopped", zap.Int("applied", applied))
	default:
		r.logger.Error("feed failed", zap.Int("applied", applied), zap.Error(err))
	}
	return err
}
