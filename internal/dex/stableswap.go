package dex

import (
	"errors"
	"fmt"
	"math/big"

	"liquiditySim/internal/model"
)

const (
	stableSwapGas  = 180_000
	stableMaxIters = 255
	stableNormDec  = 18
)

var (
	stableFeeDen = big.NewInt(10_000_000_000)
	stableN      = big.NewInt(2)

	errNoConvergence = errors.New("stableswap: invariant did not converge")
)

// StableSwapState is a two-coin Curve style pool. Fee uses 1e10 precision.
type StableSwapState struct {
	protocol string
	Tokens   [2]string
	Balances [2]*big.Int
	Amp      *big.Int
	Fee      *big.Int
}

func NewStableSwap(protocol string, tokens [2]string, balances [2]*big.Int, amp, fee *big.Int) (*StableSwapState, error) {
	if protocol == "" {
		protocol = ProtocolCurve
	}
	if amp.Sign() <= 0 {
		return nil, fmt.Errorf("amplification must be positive, got %s", amp)
	}
	if fee.Sign() < 0 || fee.Cmp(stableFeeDen) >= 0 {
		return nil, fmt.Errorf("fee %s out of range", fee)
	}
	return &StableSwapState{
		protocol: protocol,
		Tokens:   tokens,
		Balances: [2]*big.Int{new(big.Int).Set(balances[0]), new(big.Int).Set(balances[1])},
		Amp:      new(big.Int).Set(amp),
		Fee:      new(big.Int).Set(fee),
	}, nil
}

func (s *StableSwapState) Protocol() string { return s.protocol }

func (s *StableSwapState) GetAmountOut(amountIn *big.Int, tokenIn, tokenOut model.Token) (*model.AmountOut, error) {
	out, err := s.exchange(amountIn, tokenIn, tokenOut, s.Fee)
	if err != nil {
		return nil, err
	}
	return &model.AmountOut{Amount: out, Gas: big.NewInt(stableSwapGas)}, nil
}

// SpotPrice quotes a fee-free trade of a small slice of the base balance.
func (s *StableSwapState) SpotPrice(base, quote model.Token) (float64, error) {
	zeroForOne, err := orient(s.Tokens[0], s.Tokens[1], base.Address, quote.Address)
	if err != nil {
		return 0, err
	}
	balance := s.Balances[1]
	if zeroForOne {
		balance = s.Balances[0]
	}
	dx := new(big.Int).Quo(balance, big.NewInt(10_000))
	if dx.Sign() == 0 {
		dx.SetInt64(1)
	}
	dy, err := s.exchange(dx, base, quote, new(big.Int))
	if err != nil {
		return 0, err
	}
	return ratioPrice(dy, dx, int32(base.Decimals)-int32(quote.Decimals))
}

// GetLimits caps the input at the sell-side balance.
func (s *StableSwapState) GetLimits(sellToken, buyToken model.Token) (*big.Int, *big.Int, error) {
	zeroForOne, err := orient(s.Tokens[0], s.Tokens[1], sellToken.Address, buyToken.Address)
	if err != nil {
		return nil, nil, err
	}
	maxIn := new(big.Int).Set(s.Balances[1])
	if zeroForOne {
		maxIn.Set(s.Balances[0])
	}
	maxOut, err := s.exchange(maxIn, sellToken, buyToken, s.Fee)
	if err != nil {
		return nil, nil, err
	}
	return maxIn, maxOut, nil
}

func (s *StableSwapState) exchange(dx *big.Int, tokenIn, tokenOut model.Token, fee *big.Int) (*big.Int, error) {
	zeroForOne, err := orient(s.Tokens[0], s.Tokens[1], tokenIn.Address, tokenOut.Address)
	if err != nil {
		return nil, err
	}
	if dx.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if tokenIn.Decimals > stableNormDec || tokenOut.Decimals > stableNormDec {
		return nil, fmt.Errorf("stableswap: decimals above %d unsupported", stableNormDec)
	}

	i, j := 0, 1
	if !zeroForOne {
		i, j = 1, 0
	}
	var rates [2]*big.Int
	rates[i] = pow10(stableNormDec - tokenIn.Decimals)
	rates[j] = pow10(stableNormDec - tokenOut.Decimals)

	xp := [2]*big.Int{
		new(big.Int).Mul(s.Balances[0], rates[0]),
		new(big.Int).Mul(s.Balances[1], rates[1]),
	}
	if xp[0].Sign() == 0 || xp[1].Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}

	x := new(big.Int).Mul(dx, rates[i])
	x.Add(x, xp[i])
	y, err := getY(x, xp, s.Amp)
	if err != nil {
		return nil, err
	}

	dy := new(big.Int).Sub(xp[j], y)
	dy.Sub(dy, big1)
	if dy.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	dy.Quo(dy, rates[j])

	feeAmount := new(big.Int).Mul(dy, fee)
	feeAmount.Quo(feeAmount, stableFeeDen)
	dy.Sub(dy, feeAmount)
	if dy.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	return dy, nil
}

func getD(xp [2]*big.Int, amp *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(xp[0], xp[1])
	if sum.Sign() == 0 {
		return new(big.Int), nil
	}
	ann := new(big.Int).Mul(amp, stableN)
	annMinusOne := new(big.Int).Sub(ann, big1)
	d := new(big.Int).Set(sum)

	for iter := 0; iter < stableMaxIters; iter++ {
		dp := new(big.Int).Set(d)
		for _, x := range xp {
			dp.Mul(dp, d)
			dp.Quo(dp, new(big.Int).Mul(x, stableN))
		}
		prev := d

		numerator := new(big.Int).Mul(ann, sum)
		numerator.Add(numerator, new(big.Int).Mul(dp, stableN))
		numerator.Mul(numerator, d)

		denominator := new(big.Int).Mul(annMinusOne, d)
		denominator.Add(denominator, new(big.Int).Mul(big.NewInt(3), dp))

		d = numerator.Quo(numerator, denominator)
		if closeEnough(d, prev) {
			return d, nil
		}
	}
	return nil, errNoConvergence
}

// getY solves for the new balance of the output coin given x for the input coin.
func getY(x *big.Int, xp [2]*big.Int, amp *big.Int) (*big.Int, error) {
	d, err := getD(xp, amp)
	if err != nil {
		return nil, err
	}
	ann := new(big.Int).Mul(amp, stableN)

	c := new(big.Int).Mul(d, d)
	c.Quo(c, new(big.Int).Mul(x, stableN))
	c.Mul(c, d)
	c.Quo(c, new(big.Int).Mul(ann, stableN))

	b := new(big.Int).Quo(d, ann)
	b.Add(b, x)

	y := new(big.Int).Set(d)
	for iter := 0; iter < stableMaxIters; iter++ {
		prev := y
		numerator := new(big.Int).Mul(y, y)
		numerator.Add(numerator, c)
		denominator := new(big.Int).Lsh(y, 1)
		denominator.Add(denominator, b)
		denominator.Sub(denominator, d)
		if denominator.Sign() <= 0 {
			return nil, ErrInsufficientLiquidity
		}
		y = numerator.Quo(numerator, denominator)
		if closeEnough(y, prev) {
			return y, nil
		}
	}
	return nil, errNoConvergence
}

func closeEnough(a, b *big.Int) bool {
	diff := new(big.Int).Sub(a, b)
	return diff.CmpAbs(big1) <= 0
}
