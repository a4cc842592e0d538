package dex

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	ProtocolUniswapV2 = "uniswap_v2"
	ProtocolUniswapV3 = "uniswap_v3"
	ProtocolCurve     = "curve"
)

var (
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrZeroAmount            = errors.New("amount in is zero")
	ErrOverflow              = errors.New("arithmetic overflow")
	ErrUnknownToken          = errors.New("token not in pool")
	ErrUnpriceable           = errors.New("price outside float64 range")
)

var (
	big1  = big.NewInt(1)
	big10 = big.NewInt(10)
	q96   = new(big.Int).Lsh(big1, 96)
	q192  = new(big.Int).Lsh(big1, 192)
)

// orient reports whether tokenIn is token0 of the pair.
func orient(token0, token1, tokenIn, tokenOut string) (bool, error) {
	switch {
	case tokenIn == token0 && tokenOut == token1:
		return true, nil
	case tokenIn == token1 && tokenOut == token0:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s -> %s", ErrUnknownToken, tokenIn, tokenOut)
	}
}

// ratioPrice returns num/den * 10^exp as a float. The ratio is exact until
// the final rounding; results that round to zero or overflow are rejected.
func ratioPrice(num, den *big.Int, exp int32) (float64, error) {
	if den.Sign() == 0 || num.Sign() == 0 {
		return 0, ErrInsufficientLiquidity
	}
	price := decimal.NewFromBigInt(num, exp).Rat()
	price.Quo(price, new(big.Rat).SetInt(den))
	f, _ := price.Float64()
	if f == 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, ErrUnpriceable
	}
	return f, nil
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big10, big.NewInt(int64(n)), nil)
}

func parseBig(field, value string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid integer %q", field, value)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("%s: negative value %s", field, value)
	}
	return n, nil
}
