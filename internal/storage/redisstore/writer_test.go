package redisstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"liquiditySim/internal/model"
)

// mockRedis records every call for assertion.
type mockRedis struct {
	mu      sync.Mutex
	calls   []hsetCall
	deleted []string
	failOn  string
}

type hsetCall struct {
	Key    string
	Fields map[string]string
}

func (m *mockRedis) HSet(_ context.Context, key string, values ...any) error {
	if key == m.failOn {
		return errors.New("boom")
	}
	fields := make(map[string]string)
	for i := 0; i+1 < len(values); i += 2 {
		k, _ := values[i].(string)
		v, _ := values[i+1].(string)
		fields[k] = v
	}
	m.mu.Lock()
	m.calls = append(m.calls, hsetCall{Key: key, Fields: fields})
	m.mu.Unlock()
	return nil
}

func (m *mockRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	m.deleted = append(m.deleted, keys...)
	m.mu.Unlock()
	return nil
}

func TestWriterHSet(t *testing.T) {
	mock := &mockRedis{}
	w := NewWriter(mock)

	err := w.Write(context.Background(), model.ClientUpdate{
		BlockNumber: 42,
		SpotPrices:  map[string]float64{"0xabc": 0.5},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 hset, got %d", len(mock.calls))
	}
	c := mock.calls[0]
	if c.Key != "pool:0xabc" {
		t.Fatalf("wrong key: %s", c.Key)
	}
	if c.Fields["price"] != "0.5" || c.Fields["block"] != "42" {
		t.Fatalf("unexpected fields: %+v", c.Fields)
	}
}

func TestWriterSkipsUnchangedPrice(t *testing.T) {
	mock := &mockRedis{}
	w := NewWriter(mock)
	ctx := context.Background()

	for block := uint64(1); block <= 3; block++ {
		if err := w.Write(ctx, model.ClientUpdate{
			BlockNumber: block,
			SpotPrices:  map[string]float64{"P": 2},
		}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Write(ctx, model.ClientUpdate{
		BlockNumber: 4,
		SpotPrices:  map[string]float64{"P": 2.25},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	if len(mock.calls) != 2 {
		t.Fatalf("expected 2 hset calls, got %d", len(mock.calls))
	}
	if mock.calls[1].Fields["price"] != "2.25" || mock.calls[1].Fields["block"] != "4" {
		t.Fatalf("unexpected second write: %+v", mock.calls[1].Fields)
	}
}

func TestWriterRemovedPairs(t *testing.T) {
	mock := &mockRedis{}
	w := NewWriter(mock)
	ctx := context.Background()

	_ = w.Write(ctx, model.ClientUpdate{BlockNumber: 1, SpotPrices: map[string]float64{"P": 1}})
	if err := w.Write(ctx, model.ClientUpdate{BlockNumber: 2, RemovedPairs: []string{"P"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(mock.deleted) != 1 || mock.deleted[0] != "pool:P" {
		t.Fatalf("unexpected deletes: %v", mock.deleted)
	}

	// a re-added pool with the same price is written again
	_ = w.Write(ctx, model.ClientUpdate{BlockNumber: 3, SpotPrices: map[string]float64{"P": 1}})
	if len(mock.calls) != 2 {
		t.Fatalf("expected rewrite after removal, got %d calls", len(mock.calls))
	}
}

func TestWriterRetriesAfterFailure(t *testing.T) {
	mock := &mockRedis{failOn: "pool:P"}
	w := NewWriter(mock)
	ctx := context.Background()

	if err := w.Write(ctx, model.ClientUpdate{BlockNumber: 1, SpotPrices: map[string]float64{"P": 1}}); err == nil {
		t.Fatalf("expected error")
	}
	mock.failOn = ""
	if err := w.Write(ctx, model.ClientUpdate{BlockNumber: 2, SpotPrices: map[string]float64{"P": 1}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(mock.calls) != 1 {
		t.Fatalf("expected failed price to be retried, got %d calls", len(mock.calls))
	}
}
