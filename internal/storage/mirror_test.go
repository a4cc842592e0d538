package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"liquiditySim/internal/broadcast"
	"liquiditySim/internal/metrics"
	"liquiditySim/internal/model"
)

type fakeSink struct {
	name string
	err  error

	mu     sync.Mutex
	blocks []uint64
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Write(_ context.Context, update model.ClientUpdate) error {
	f.mu.Lock()
	f.blocks = append(f.blocks, update.BlockNumber)
	f.mu.Unlock()
	return f.err
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blocks)
}

func TestMirrorWritesEverySink(t *testing.T) {
	hub := broadcast.New[model.ClientUpdate](8)
	good := &fakeSink{name: "good"}
	bad := &fakeSink{name: "bad", err: errors.New("down")}
	m := metrics.New(nil)

	mirror := NewMirror(hub.Subscribe(), []Sink{bad, good}, m, nil)

	done := make(chan error, 1)
	go func() { done <- mirror.Run(context.Background()) }()

	hub.Publish(model.ClientUpdate{BlockNumber: 1})
	hub.Publish(model.ClientUpdate{BlockNumber: 2})

	deadline := time.After(time.Second)
	for good.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("sink received %d updates", good.count())
		case <-time.After(5 * time.Millisecond):
		}
	}

	hub.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("mirror did not stop after close")
	}

	if bad.count() != 2 {
		t.Fatalf("failing sink should still see every update, got %d", bad.count())
	}
	if got := testutil.ToFloat64(m.SinkErrors.WithLabelValues("bad")); got != 2 {
		t.Fatalf("expected 2 sink errors, got %v", got)
	}
}

func TestMirrorStopsOnCancel(t *testing.T) {
	hub := broadcast.New[model.ClientUpdate](8)
	mirror := NewMirror(hub.Subscribe(), nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mirror.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("mirror did not stop after cancel")
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("mirror should unsubscribe on exit")
	}
}
