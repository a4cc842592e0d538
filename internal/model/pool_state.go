package model

import "math/big"

// AmountOut is the result of a single-hop swap quote.
type AmountOut struct {
	Amount *big.Int
	Gas    *big.Int
}

// PoolState is the mutable, protocol-specific pricing state of a pool.
// Implementations are immutable once built; a new block produces a new value.
type PoolState interface {
	Protocol() string
	GetAmountOut(amountIn *big.Int, tokenIn, tokenOut Token) (*AmountOut, error)
	SpotPrice(base, quote Token) (float64, error)
}

// Limiter is implemented by pool states that can report trade bounds.
type Limiter interface {
	GetLimits(sellToken, buyToken Token) (maxIn, maxOut *big.Int, err error)
}
