package dex

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"liquiditySim/internal/model"
)

const constantProductGas = 120_000

// ConstantProductState is an x*y=k pair with a flat fee in basis points.
type ConstantProductState struct {
	protocol string
	Token0   string
	Token1   string
	Reserve0 *big.Int
	Reserve1 *big.Int
	FeeBps   uint32
}

func NewConstantProduct(protocol, token0, token1 string, reserve0, reserve1 *big.Int, feeBps uint32) *ConstantProductState {
	if protocol == "" {
		protocol = ProtocolUniswapV2
	}
	return &ConstantProductState{
		protocol: protocol,
		Token0:   token0,
		Token1:   token1,
		Reserve0: new(big.Int).Set(reserve0),
		Reserve1: new(big.Int).Set(reserve1),
		FeeBps:   feeBps,
	}
}

func (s *ConstantProductState) Protocol() string { return s.protocol }

func (s *ConstantProductState) reserves(tokenIn, tokenOut string) (*big.Int, *big.Int, error) {
	zeroForOne, err := orient(s.Token0, s.Token1, tokenIn, tokenOut)
	if err != nil {
		return nil, nil, err
	}
	if zeroForOne {
		return s.Reserve0, s.Reserve1, nil
	}
	return s.Reserve1, s.Reserve0, nil
}

func (s *ConstantProductState) GetAmountOut(amountIn *big.Int, tokenIn, tokenOut model.Token) (*model.AmountOut, error) {
	reserveIn, reserveOut, err := s.reserves(tokenIn.Address, tokenOut.Address)
	if err != nil {
		return nil, err
	}
	out, err := s.amountOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	return &model.AmountOut{Amount: out, Gas: big.NewInt(constantProductGas)}, nil
}

func (s *ConstantProductState) amountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	if s.FeeBps >= 10_000 {
		return nil, fmt.Errorf("fee %d bps out of range", s.FeeBps)
	}

	in, overflow := uint256.FromBig(amountIn)
	if overflow {
		return nil, ErrOverflow
	}
	rIn, _ := uint256.FromBig(reserveIn)
	rOut, _ := uint256.FromBig(reserveOut)

	inWithFee, o1 := new(uint256.Int).MulOverflow(in, uint256.NewInt(uint64(10_000-s.FeeBps)))
	numerator, o2 := new(uint256.Int).MulOverflow(inWithFee, rOut)
	scaledReserve, o3 := new(uint256.Int).MulOverflow(rIn, uint256.NewInt(10_000))
	denominator, o4 := new(uint256.Int).AddOverflow(scaledReserve, inWithFee)
	if o1 || o2 || o3 || o4 {
		return nil, ErrOverflow
	}

	out := new(uint256.Int).Div(numerator, denominator)
	if out.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	return out.ToBig(), nil
}

// SpotPrice is reserve-based and ignores the fee.
func (s *ConstantProductState) SpotPrice(base, quote model.Token) (float64, error) {
	reserveBase, reserveQuote, err := s.reserves(base.Address, quote.Address)
	if err != nil {
		return 0, err
	}
	return ratioPrice(reserveQuote, reserveBase, int32(base.Decimals)-int32(quote.Decimals))
}

// GetLimits caps the input at the sell-side reserve.
func (s *ConstantProductState) GetLimits(sellToken, buyToken model.Token) (*big.Int, *big.Int, error) {
	reserveIn, reserveOut, err := s.reserves(sellToken.Address, buyToken.Address)
	if err != nil {
		return nil, nil, err
	}
	maxIn := new(big.Int).Set(reserveIn)
	maxOut, err := s.amountOut(maxIn, reserveIn, reserveOut)
	if err != nil {
		return nil, nil, err
	}
	return maxIn, maxOut, nil
}
