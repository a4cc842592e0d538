package storage

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"liquiditySim/internal/broadcast"
	"liquiditySim/internal/metrics"
	"liquiditySim/internal/model"
)

// Sink receives every client update published by the cache.
type Sink interface {
	Name() string
	Write(ctx context.Context, update model.ClientUpdate) error
}

// Mirror forwards client updates from a subscription to export sinks.
// Sinks are write-only; nothing is read back at startup.
type Mirror struct {
	sub     *broadcast.Subscription[model.ClientUpdate]
	sinks   []Sink
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewMirror(sub *broadcast.Subscription[model.ClientUpdate], sinks []Sink, m *metrics.Metrics, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{sub: sub, sinks: sinks, metrics: m, logger: logger}
}

// Run blocks until ctx is done or the subscription closes. Sink failures
// are logged and do not stop the mirror.
func (m *Mirror) Run(ctx context.Context) error {
	defer m.sub.Close()

	for {
		update, err := m.sub.Recv(ctx)
		if err != nil {
			var lagged *broadcast.LaggedError
			switch {
			case errors.As(err, &lagged):
				m.logger.Warn("mirror lagged", zap.Uint64("skipped", lagged.Skipped))
				if m.metrics != nil {
					m.metrics.LaggedMessages.Add(float64(lagged.Skipped))
				}
				continue
			case errors.Is(err, broadcast.ErrClosed), errors.Is(err, context.Canceled):
				return nil
			default:
				return err
			}
		}

		for _, sink := range m.sinks {
			if err := sink.Write(ctx, update); err != nil {
				m.logger.Warn("sink write failed",
					zap.String("sink", sink.Name()),
					zap.Uint64("block", update.BlockNumber),
					zap.Error(err),
				)
				if m.metrics != nil {
					m.metrics.SinkErrors.WithLabelValues(sink.Name()).Inc()
				}
			}
		}
	}
}
