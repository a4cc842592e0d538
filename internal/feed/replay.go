package feed

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"liquiditySim/internal/model"
)

const maxRecordSize = 16 * 1024 * 1024

// ReplayFeed plays back a JSONL file of block update records in file order.
type ReplayFeed struct {
	path     string
	interval time.Duration
	logger   *zap.Logger
}

// NewReplayFeed builds a replay feed. A positive interval paces the updates.
func NewReplayFeed(path string, interval time.Duration, logger *zap.Logger) *ReplayFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplayFeed{path: path, interval: interval, logger: logger}
}

// Run returns nil once the file is exhausted.
func (f *ReplayFeed) Run(ctx context.Context, out chan<- model.BlockUpdate) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("open replay file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)

	lineNo := 0
	sent := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		update, err := DecodeRecord(line)
		if err != nil {
			return fmt.Errorf("replay line %d: %w", lineNo, err)
		}
		if sent > 0 && f.interval > 0 {
			timer := time.NewTimer(f.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := send(ctx, out, update); err != nil {
			return err
		}
		sent++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read replay file: %w", err)
	}

	f.logger.Info("replay complete", zap.String("path", f.path), zap.Int("updates", sent))
	return nil
}
