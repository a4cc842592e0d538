package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"liquiditySim/internal/model"
)

// Client abstracts the Redis operations used by Writer.
type Client interface {
	HSet(ctx context.Context, key string, values ...any) error
	Del(ctx context.Context, keys ...string) error
}

type priceSnapshot struct {
	Price string
	Block string
}

// Writer persists the latest spot price of every pool into Redis:
//
//	Key:    pool:{component_id}
//	Fields: price, block
//
// Unchanged prices are not rewritten.
type Writer struct {
	client Client

	mu   sync.Mutex
	last map[string]priceSnapshot
}

func NewWriter(client Client) *Writer {
	return &Writer{
		client: client,
		last:   make(map[string]priceSnapshot),
	}
}

func (w *Writer) Name() string { return "redis" }

func Key(componentID string) string {
	return fmt.Sprintf("pool:%s", componentID)
}

func (w *Writer) Write(ctx context.Context, update model.ClientUpdate) error {
	var errs []error
	block := strconv.FormatUint(update.BlockNumber, 10)

	for id, price := range update.SpotPrices {
		key := Key(id)
		value := strconv.FormatFloat(price, 'f', -1, 64)

		w.mu.Lock()
		prev, exists := w.last[key]
		if exists && prev.Price == value {
			w.mu.Unlock()
			continue
		}
		w.last[key] = priceSnapshot{Price: value, Block: block}
		w.mu.Unlock()

		if err := w.client.HSet(ctx, key, "price", value, "block", block); err != nil {
			w.forget(key)
			errs = append(errs, fmt.Errorf("hset %s: %w", key, err))
		}
	}

	if len(update.RemovedPairs) > 0 {
		keys := make([]string, 0, len(update.RemovedPairs))
		for _, id := range update.RemovedPairs {
			key := Key(id)
			keys = append(keys, key)
			w.forget(key)
		}
		if err := w.client.Del(ctx, keys...); err != nil {
			errs = append(errs, fmt.Errorf("del removed pools: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (w *Writer) forget(key string) {
	w.mu.Lock()
	delete(w.last, key)
	w.mu.Unlock()
}

// GoRedis adapts *redis.Client to Client.
type GoRedis struct {
	rdb *redis.Client
}

// Dial connects to Redis and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string, db int) (*GoRedis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &GoRedis{rdb: rdb}, nil
}

func (g *GoRedis) HSet(ctx context.Context, key string, values ...any) error {
	return g.rdb.HSet(ctx, key, values...).Err()
}

func (g *GoRedis) Del(ctx context.Context, keys ...string) error {
	return g.rdb.Del(ctx, keys...).Err()
}

func (g *GoRedis) Close() error {
	return g.rdb.Close()
}
