package dex

import (
	"fmt"
	"math/big"

	"liquiditySim/internal/model"
)

const (
	concentratedGas = 130_000
	feePipsDen      = 1_000_000
	tickPrec        = 512

	MinTick = -887272
	MaxTick = 887272
)

var (
	MinSqrtRatio, _ = new(big.Int).SetString("4295128739", 10)
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)

	tickBase, _ = new(big.Float).SetPrec(tickPrec).SetString("1.0001")
)

// SqrtRatioAtTick returns sqrt(1.0001^tick) as a Q64.96, floored. It is
// computed in 512-bit floating point and may differ from the on-chain
// TickMath table in the last few units.
func SqrtRatioAtTick(tick int64) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("tick %d out of range", tick)
	}
	abs := tick
	if abs < 0 {
		abs = -abs
	}

	ratio := new(big.Float).SetPrec(tickPrec).SetInt64(1)
	base := new(big.Float).SetPrec(tickPrec).Set(tickBase)
	for e := abs; e > 0; e >>= 1 {
		if e&1 == 1 {
			ratio.Mul(ratio, base)
		}
		base.Mul(base, base)
	}
	if tick < 0 {
		ratio.Quo(new(big.Float).SetPrec(tickPrec).SetInt64(1), ratio)
	}
	ratio.Sqrt(ratio)
	ratio.Mul(ratio, new(big.Float).SetPrec(tickPrec).SetInt(q96))

	out, _ := ratio.Int(nil)
	return out, nil
}

// TickRange returns the sqrt-price bounds of the initializable tick range
// [floor(tick/spacing)*spacing, +spacing) that contains tick.
func TickRange(tick, spacing int64) (*big.Int, *big.Int, error) {
	if spacing <= 0 {
		return nil, nil, fmt.Errorf("tick spacing %d must be positive", spacing)
	}
	lowerTick := tick / spacing * spacing
	if tick < 0 && tick%spacing != 0 {
		lowerTick -= spacing
	}
	upperTick := lowerTick + spacing
	if lowerTick < MinTick {
		lowerTick = MinTick
	}
	if upperTick > MaxTick {
		upperTick = MaxTick
	}

	lower, err := SqrtRatioAtTick(lowerTick)
	if err != nil {
		return nil, nil, err
	}
	upper, err := SqrtRatioAtTick(upperTick)
	if err != nil {
		return nil, nil, err
	}
	return lower, upper, nil
}

// ConcentratedLiquidityState quotes swaps inside the active liquidity range
// only. Trades that would cross SqrtLowerX96 or SqrtUpperX96 fail with
// ErrInsufficientLiquidity.
type ConcentratedLiquidityState struct {
	protocol     string
	Token0       string
	Token1       string
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Fee          uint32 // hundredths of a bip
	SqrtLowerX96 *big.Int
	SqrtUpperX96 *big.Int
}

// NewConcentratedLiquidity builds a state; nil bounds default to the full
// tick range.
func NewConcentratedLiquidity(protocol, token0, token1 string, sqrtPriceX96, liquidity *big.Int, fee uint32, lower, upper *big.Int) (*ConcentratedLiquidityState, error) {
	if protocol == "" {
		protocol = ProtocolUniswapV3
	}
	if lower == nil {
		lower = MinSqrtRatio
	}
	if upper == nil {
		upper = MaxSqrtRatio
	}
	if fee >= feePipsDen {
		return nil, fmt.Errorf("fee %d out of range", fee)
	}
	if sqrtPriceX96.Cmp(lower) < 0 || sqrtPriceX96.Cmp(upper) > 0 {
		return nil, fmt.Errorf("sqrt price %s outside range [%s, %s]", sqrtPriceX96, lower, upper)
	}
	return &ConcentratedLiquidityState{
		protocol:     protocol,
		Token0:       token0,
		Token1:       token1,
		SqrtPriceX96: new(big.Int).Set(sqrtPriceX96),
		Liquidity:    new(big.Int).Set(liquidity),
		Fee:          fee,
		SqrtLowerX96: new(big.Int).Set(lower),
		SqrtUpperX96: new(big.Int).Set(upper),
	}, nil
}

func (s *ConcentratedLiquidityState) Protocol() string { return s.protocol }

func (s *ConcentratedLiquidityState) GetAmountOut(amountIn *big.Int, tokenIn, tokenOut model.Token) (*model.AmountOut, error) {
	zeroForOne, err := orient(s.Token0, s.Token1, tokenIn.Address, tokenOut.Address)
	if err != nil {
		return nil, err
	}
	if amountIn.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if s.Liquidity.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}

	amount := new(big.Int).Mul(amountIn, big.NewInt(int64(feePipsDen-s.Fee)))
	amount.Quo(amount, big.NewInt(feePipsDen))

	var out *big.Int
	if zeroForOne {
		out, err = s.swapZeroForOne(amount)
	} else {
		out, err = s.swapOneForZero(amount)
	}
	if err != nil {
		return nil, err
	}
	if out.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	return &model.AmountOut{Amount: out, Gas: big.NewInt(concentratedGas)}, nil
}

// swapZeroForOne moves the price down: token0 in, token1 out.
func (s *ConcentratedLiquidityState) swapZeroForOne(amount *big.Int) (*big.Int, error) {
	liqShifted := new(big.Int).Lsh(s.Liquidity, 96)
	denominator := new(big.Int).Mul(amount, s.SqrtPriceX96)
	denominator.Add(denominator, liqShifted)

	numerator := new(big.Int).Mul(liqShifted, s.SqrtPriceX96)
	sqrtNext := ceilDiv(numerator, denominator)
	if sqrtNext.Cmp(s.SqrtLowerX96) < 0 {
		return nil, ErrInsufficientLiquidity
	}
	return amount1Delta(s.Liquidity, sqrtNext, s.SqrtPriceX96), nil
}

// swapOneForZero moves the price up: token1 in, token0 out.
func (s *ConcentratedLiquidityState) swapOneForZero(amount *big.Int) (*big.Int, error) {
	step := new(big.Int).Lsh(amount, 96)
	step.Quo(step, s.Liquidity)
	sqrtNext := new(big.Int).Add(s.SqrtPriceX96, step)
	if sqrtNext.Cmp(s.SqrtUpperX96) > 0 {
		return nil, ErrInsufficientLiquidity
	}
	return amount0Delta(s.Liquidity, s.SqrtPriceX96, sqrtNext), nil
}

func (s *ConcentratedLiquidityState) SpotPrice(base, quote model.Token) (float64, error) {
	zeroForOne, err := orient(s.Token0, s.Token1, base.Address, quote.Address)
	if err != nil {
		return 0, err
	}
	priceX192 := new(big.Int).Mul(s.SqrtPriceX96, s.SqrtPriceX96)
	exp := int32(base.Decimals) - int32(quote.Decimals)
	if zeroForOne {
		return ratioPrice(priceX192, q192, exp)
	}
	return ratioPrice(q192, priceX192, exp)
}

// GetLimits returns the trade that moves the price exactly to the range bound.
func (s *ConcentratedLiquidityState) GetLimits(sellToken, buyToken model.Token) (*big.Int, *big.Int, error) {
	zeroForOne, err := orient(s.Token0, s.Token1, sellToken.Address, buyToken.Address)
	if err != nil {
		return nil, nil, err
	}
	var netIn, maxOut *big.Int
	if zeroForOne {
		netIn = amount0Delta(s.Liquidity, s.SqrtLowerX96, s.SqrtPriceX96)
		maxOut = amount1Delta(s.Liquidity, s.SqrtLowerX96, s.SqrtPriceX96)
	} else {
		netIn = amount1Delta(s.Liquidity, s.SqrtPriceX96, s.SqrtUpperX96)
		maxOut = amount0Delta(s.Liquidity, s.SqrtPriceX96, s.SqrtUpperX96)
	}
	maxIn := new(big.Int).Mul(netIn, big.NewInt(feePipsDen))
	maxIn.Quo(maxIn, big.NewInt(int64(feePipsDen-s.Fee)))
	return maxIn, maxOut, nil
}

// amount0Delta is L * (upper - lower) / (upper * lower) in Q96, rounded down.
func amount0Delta(liquidity, lower, upper *big.Int) *big.Int {
	if lower.Sign() == 0 {
		return new(big.Int)
	}
	diff := new(big.Int).Sub(upper, lower)
	out := new(big.Int).Lsh(liquidity, 96)
	out.Mul(out, diff)
	out.Quo(out, upper)
	return out.Quo(out, lower)
}

// amount1Delta is L * (upper - lower) / Q96, rounded down.
func amount1Delta(liquidity, lower, upper *big.Int) *big.Int {
	diff := new(big.Int).Sub(upper, lower)
	out := new(big.Int).Mul(liquidity, diff)
	return out.Quo(out, q96)
}

func ceilDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big1)
	}
	return q
}
