package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquiditySim/internal/model"
)

// Family groups protocols that share pricing math and on-chain layout.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyConstantProduct
	FamilyConcentrated
	FamilyStableSwap
)

var families = map[string]Family{
	ProtocolUniswapV2: FamilyConstantProduct,
	"sushiswap_v2":    FamilyConstantProduct,
	"pancakeswap_v2":  FamilyConstantProduct,
	ProtocolUniswapV3: FamilyConcentrated,
	"pancakeswap_v3":  FamilyConcentrated,
	ProtocolCurve:     FamilyStableSwap,
	"vm:curve":        FamilyStableSwap,
}

// FamilyOf maps a protocol name to its family.
func FamilyOf(protocol string) Family {
	return families[protocol]
}

// PoolRef identifies a pool to read from chain.
type PoolRef struct {
	Address  common.Address
	Protocol string
	Tokens   [2]common.Address
	FeeBps   uint32
}

// ResolveTokens reads the ordered token pair of a pool from chain.
func ResolveTokens(ctx context.Context, caller Caller, pool common.Address, protocol string) ([2]common.Address, error) {
	var tokens [2]common.Address
	switch FamilyOf(protocol) {
	case FamilyConstantProduct, FamilyConcentrated:
		parsed, err := V2PairABI()
		if err != nil {
			return tokens, fmt.Errorf("parse pair abi: %w", err)
		}
		for i, method := range []string{"token0", "token1"} {
			values, err := callMethod(ctx, caller, pool, parsed, method, nil)
			if err != nil {
				return tokens, err
			}
			if tokens[i], err = asAddress(values[0]); err != nil {
				return tokens, fmt.Errorf("%s: %w", method, err)
			}
		}
	case FamilyStableSwap:
		parsed, err := CurvePoolABI()
		if err != nil {
			return tokens, fmt.Errorf("parse curve abi: %w", err)
		}
		for i := range tokens {
			values, err := callMethod(ctx, caller, pool, parsed, "coins", nil, big.NewInt(int64(i)))
			if err != nil {
				return tokens, err
			}
			if tokens[i], err = asAddress(values[0]); err != nil {
				return tokens, fmt.Errorf("coins(%d): %w", i, err)
			}
		}
	default:
		return tokens, fmt.Errorf("unsupported protocol %q", protocol)
	}
	return tokens, nil
}

// ReadState reads the pricing state of a pool at the given block
// (nil means latest).
func ReadState(ctx context.Context, caller Caller, ref PoolRef, block *big.Int) (model.PoolState, error) {
	switch FamilyOf(ref.Protocol) {
	case FamilyConstantProduct:
		return readConstantProduct(ctx, caller, ref, block)
	case FamilyConcentrated:
		return readConcentrated(ctx, caller, ref, block)
	case FamilyStableSwap:
		return readStableSwap(ctx, caller, ref, block)
	default:
		return nil, fmt.Errorf("unsupported protocol %q", ref.Protocol)
	}
}

func readConstantProduct(ctx context.Context, caller Caller, ref PoolRef, block *big.Int) (model.PoolState, error) {
	parsed, err := V2PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}
	values, err := callMethod(ctx, caller, ref.Address, parsed, "getReserves", block)
	if err != nil {
		return nil, err
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("getReserves: expected 3 values, got %d", len(values))
	}
	reserve0, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := asBigInt(values[1])
	if err != nil {
		return nil, fmt.Errorf("reserve1: %w", err)
	}
	return NewConstantProduct(ref.Protocol, ref.Tokens[0].Hex(), ref.Tokens[1].Hex(), reserve0, reserve1, ref.FeeBps), nil
}

func readConcentrated(ctx context.Context, caller Caller, ref PoolRef, block *big.Int) (model.PoolState, error) {
	parsed, err := V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := callMethod(ctx, caller, ref.Address, parsed, "slot0", block)
	if err != nil {
		return nil, err
	}
	sqrtPrice, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("sqrtPriceX96: %w", err)
	}
	tick, err := asBigInt(values[1])
	if err != nil {
		return nil, fmt.Errorf("tick: %w", err)
	}

	values, err = callMethod(ctx, caller, ref.Address, parsed, "tickSpacing", block)
	if err != nil {
		return nil, err
	}
	spacing, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("tickSpacing: %w", err)
	}

	values, err = callMethod(ctx, caller, ref.Address, parsed, "liquidity", block)
	if err != nil {
		return nil, err
	}
	liquidity, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("liquidity: %w", err)
	}

	values, err = callMethod(ctx, caller, ref.Address, parsed, "fee", block)
	if err != nil {
		return nil, err
	}
	fee, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("fee: %w", err)
	}

	// Only liquidity of the current tick range is known without the tick
	// bitmap, so quotes stop at its edges.
	lower, upper, err := TickRange(tick.Int64(), spacing.Int64())
	if err != nil {
		return nil, err
	}
	if sqrtPrice.Cmp(lower) < 0 {
		lower = sqrtPrice
	}
	if sqrtPrice.Cmp(upper) > 0 {
		upper = sqrtPrice
	}

	return NewConcentratedLiquidity(ref.Protocol, ref.Tokens[0].Hex(), ref.Tokens[1].Hex(), sqrtPrice, liquidity, uint32(fee.Uint64()), lower, upper)
}

func readStableSwap(ctx context.Context, caller Caller, ref PoolRef, block *big.Int) (model.PoolState, error) {
	parsed, err := CurvePoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse curve abi: %w", err)
	}

	read := func(method string, args ...interface{}) (*big.Int, error) {
		values, err := callMethod(ctx, caller, ref.Address, parsed, method, block, args...)
		if err != nil {
			return nil, err
		}
		n, err := asBigInt(values[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
		return n, nil
	}

	amp, err := read("A")
	if err != nil {
		return nil, err
	}
	fee, err := read("fee")
	if err != nil {
		return nil, err
	}
	var balances [2]*big.Int
	for i := range balances {
		if balances[i], err = read("balances", big.NewInt(int64(i))); err != nil {
			return nil, err
		}
	}
	tokens := [2]string{ref.Tokens[0].Hex(), ref.Tokens[1].Hex()}
	return NewStableSwap(ref.Protocol, tokens, balances, amp, fee)
}
