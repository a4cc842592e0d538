package feed

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"liquiditySim/internal/model"
)

// Recorder wraps a feed and appends every update it emits to a JSONL file
// readable by ReplayFeed.
type Recorder struct {
	inner  Feed
	path   string
	logger *zap.Logger
}

func NewRecorder(inner Feed, path string, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{inner: inner, path: path, logger: logger}
}

func (r *Recorder) Run(ctx context.Context, out chan<- model.BlockUpdate) error {
	if dir := filepath.Dir(r.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create record dir: %w", err)
		}
	}
	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open record file: %w", err)
	}
	defer file.Close()
	writer := bufio.NewWriter(file)
	defer writer.Flush()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	relay := make(chan model.BlockUpdate)
	innerErr := make(chan error, 1)
	go func() {
		defer close(relay)
		innerErr <- r.inner.Run(ctx, relay)
	}()

	for update := range relay {
		line, err := EncodeRecord(update)
		if err != nil {
			r.logger.Warn("record update failed", zap.Uint64("block", update.BlockNumber), zap.Error(err))
		} else {
			if _, err := writer.Write(append(line, '\n')); err != nil {
				return fmt.Errorf("write record: %w", err)
			}
			if err := writer.Flush(); err != nil {
				return fmt.Errorf("flush record: %w", err)
			}
		}
		if err := send(ctx, out, update); err != nil {
			return err
		}
	}
	return <-innerErr
}
