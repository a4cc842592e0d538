package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquiditySim/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS pools (
	pool_id           TEXT PRIMARY KEY,
	protocol_system   TEXT NOT NULL,
	token0            TEXT NOT NULL,
	token1            TEXT NOT NULL,
	static_attributes JSONB NOT NULL DEFAULT '{}',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS pool_prices (
	pool_id      TEXT PRIMARY KEY,
	block_number BIGINT NOT NULL,
	spot_price   DOUBLE PRECISION NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store mirrors components and their latest spot prices into Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Name() string { return "postgres" }

// EnsureSchema creates the mirror tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Write upserts new components and prices and deletes removed pools in one batch.
func (s *Store) Write(ctx context.Context, update model.ClientUpdate) error {
	batch, err := buildBatch(update)
	if err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("block %d: %w", update.BlockNumber, err)
		}
	}
	return nil
}

func buildBatch(update model.ClientUpdate) (*pgx.Batch, error) {
	batch := &pgx.Batch{}

	for id, comp := range update.NewPairs {
		if len(comp.Tokens) < 2 {
			continue
		}
		attributes, err := json.Marshal(comp.StaticAttributes)
		if err != nil {
			return nil, fmt.Errorf("marshal attributes for %s: %w", id, err)
		}
		batch.Queue(`
			INSERT INTO pools (pool_id, protocol_system, token0, token1, static_attributes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (pool_id)
			DO UPDATE SET
				protocol_system = EXCLUDED.protocol_system,
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				static_attributes = EXCLUDED.static_attributes,
				updated_at = now()
		`,
			id,
			comp.ProtocolSystem,
			comp.Tokens[0].Address,
			comp.Tokens[1].Address,
			string(attributes),
			comp.CreatedAt,
		)
	}

	for id, price := range update.SpotPrices {
		batch.Queue(`
			INSERT INTO pool_prices (pool_id, block_number, spot_price, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (pool_id)
			DO UPDATE SET
				block_number = EXCLUDED.block_number,
				spot_price = EXCLUDED.spot_price,
				updated_at = now()
		`, id, int64(update.BlockNumber), price)
	}

	if len(update.RemovedPairs) > 0 {
		batch.Queue(`DELETE FROM pool_prices WHERE pool_id = ANY($1)`, update.RemovedPairs)
		batch.Queue(`DELETE FROM pools WHERE pool_id = ANY($1)`, update.RemovedPairs)
	}

	return batch, nil
}
