// Package feed produces block updates for the ingestion loop.
package feed

import (
	"context"

	"liquiditySim/internal/model"
)

// Feed streams block updates into out until it is exhausted, fails, or ctx
// is done. Sends block when the consumer is behind.
type Feed interface {
	Run(ctx context.Context, out chan<- model.BlockUpdate) error
}

func send(ctx context.Context, out chan<- model.BlockUpdate, update model.BlockUpdate) error {
	select {
	case out <- update:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
