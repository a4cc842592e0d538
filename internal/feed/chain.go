package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquiditySim/internal/dex"
	"liquiditySim/internal/model"
)

// ChainReader is the RPC surface used by ChainFeed. *chain.Client satisfies it.
type ChainReader interface {
	dex.Caller
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// ChainConfig holds runtime settings for the chain poller.
type ChainConfig struct {
	Chain        string
	Pools        []PoolSpec
	PollInterval time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// ChainFeed polls the chain head and emits the pools whose state changed.
type ChainFeed struct {
	cfg    ChainConfig
	chain  ChainReader
	tokens *dex.TokenCache
	retry  retrier
	logger *zap.Logger

	refs         []dex.PoolRef
	fingerprints map[string]string
}

func NewChainFeed(cfg ChainConfig, chainReader ChainReader, logger *zap.Logger) *ChainFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &ChainFeed{
		cfg:          cfg,
		chain:        chainReader,
		tokens:       dex.NewTokenCache(),
		retry:        newRetrier(cfg.MaxRetries, cfg.RetryBackoff, logger),
		logger:       logger,
		fingerprints: make(map[string]string),
	}
}

// Run emits one update with every resolvable component and its state, then
// one update per new head block.
func (f *ChainFeed) Run(ctx context.Context, out chan<- model.BlockUpdate) error {
	if f.chain == nil {
		return fmt.Errorf("chain client is nil")
	}

	components, err := f.resolveComponents(ctx)
	if err != nil {
		return err
	}

	last, err := f.latestBlock(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	f.logger.Info("chain feed start",
		zap.String("chain", f.cfg.Chain),
		zap.Int("pools", len(f.refs)),
		zap.Uint64("block", last),
	)

	first := model.BlockUpdate{
		BlockNumber: last,
		NewPairs:    components,
		States:      f.readStates(ctx, last),
	}
	if err := send(ctx, out, first); err != nil {
		return err
	}

	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		block, err := f.latestBlock(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("poll head failed", zap.Error(err))
			continue
		}
		if block <= last {
			continue
		}
		last = block

		update := model.BlockUpdate{
			BlockNumber: block,
			States:      f.readStates(ctx, block),
		}
		if err := send(ctx, out, update); err != nil {
			return err
		}
		f.logger.Debug("block polled", zap.Uint64("block", block), zap.Int("changed", len(update.States)))
	}
}

func (f *ChainFeed) resolveComponents(ctx context.Context) (map[string]model.Component, error) {
	components := make(map[string]model.Component, len(f.cfg.Pools))
	f.refs = f.refs[:0]
	now := time.Now().UTC()

	for _, spec := range f.cfg.Pools {
		address := common.HexToAddress(spec.Address)

		var pair [2]common.Address
		err := f.retry.do(ctx, "resolve pool tokens", []zap.Field{zap.String("pool", address.Hex())}, func(ctx context.Context) error {
			var err error
			pair, err = dex.ResolveTokens(ctx, f.chain, address, spec.Protocol)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Warn("resolve pool tokens failed", zap.String("pool", address.Hex()), zap.Error(err))
			continue
		}

		tokens := make([]model.Token, 0, len(pair))
		for _, tokenAddress := range pair {
			var token model.Token
			err := f.retry.do(ctx, "fetch token metadata", []zap.Field{zap.String("pool", address.Hex()), zap.String("token", tokenAddress.Hex())}, func(ctx context.Context) error {
				var err error
				token, err = f.tokens.Token(ctx, f.chain, tokenAddress, f.logger)
				return err
			})
			if err != nil {
				f.logger.Warn("token metadata fetch failed", zap.String("pool", address.Hex()), zap.String("token", tokenAddress.Hex()), zap.Error(err))
				break
			}
			tokens = append(tokens, token)
		}
		if len(tokens) != len(pair) {
			continue
		}

		attributes := make(map[string]string, len(spec.Attributes)+1)
		for k, v := range spec.Attributes {
			attributes[k] = v
		}
		if dex.FamilyOf(spec.Protocol) == dex.FamilyConstantProduct {
			attributes["fee_bps"] = fmt.Sprintf("%d", spec.feeBps())
		}

		id := address.Hex()
		components[id] = model.Component{
			ID:               id,
			Tokens:           tokens,
			ProtocolSystem:   spec.Protocol,
			StaticAttributes: attributes,
			CreatedAt:        now,
		}
		f.refs = append(f.refs, dex.PoolRef{
			Address:  address,
			Protocol: spec.Protocol,
			Tokens:   pair,
			FeeBps:   spec.feeBps(),
		})
	}

	if len(components) == 0 {
		return nil, fmt.Errorf("no pool could be resolved")
	}
	return components, nil
}

// readStates reads every pool at block and keeps those whose state differs
// from the last emitted one. Failed pools are skipped for this block.
func (f *ChainFeed) readStates(ctx context.Context, block uint64) map[string]model.PoolState {
	blockNumber := new(big.Int).SetUint64(block)
	states := make(map[string]model.PoolState)

	for _, ref := range f.refs {
		if ctx.Err() != nil {
			break
		}
		id := ref.Address.Hex()

		var state model.PoolState
		err := f.retry.do(ctx, "read pool state", []zap.Field{zap.String("pool", id), zap.Uint64("block", block)}, func(ctx context.Context) error {
			var err error
			state, err = dex.ReadState(ctx, f.chain, ref, blockNumber)
			return err
		})
		if err != nil {
			f.logger.Warn("read pool state failed", zap.String("pool", id), zap.Uint64("block", block), zap.Error(err))
			continue
		}

		fingerprint, err := json.Marshal(state)
		if err != nil {
			f.logger.Warn("fingerprint pool state failed", zap.String("pool", id), zap.Error(err))
			continue
		}
		if f.fingerprints[id] == string(fingerprint) {
			continue
		}
		f.fingerprints[id] = string(fingerprint)
		states[id] = state
	}
	return states
}

func (f *ChainFeed) latestBlock(ctx context.Context) (uint64, error) {
	var block uint64
	err := f.retry.do(ctx, "poll head", nil, func(ctx context.Context) error {
		var err error
		block, err = f.chain.LatestBlockNumber(ctx)
		return err
	})
	return block, err
}
