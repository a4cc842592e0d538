package dex

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"liquiditySim/internal/model"
)

var (
	tokA = model.Token{Address: "0xAAAA", Decimals: 6, Symbol: "USDC"}
	tokB = model.Token{Address: "0xBBBB", Decimals: 6, Symbol: "USDT"}
	tokW = model.Token{Address: "0xCCCC", Decimals: 18, Symbol: "DAI"}
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad integer %q", s)
	}
	return n
}

func TestConstantProductAmountOut(t *testing.T) {
	state := NewConstantProduct("", tokA.Address, tokB.Address, big.NewInt(1_000_000), big.NewInt(2_000_000), 30)

	res, err := state.GetAmountOut(big.NewInt(10_000), tokA, tokB)
	if err != nil {
		t.Fatalf("amount out: %v", err)
	}
	if res.Amount.Int64() != 19743 {
		t.Fatalf("amount mismatch: %s", res.Amount)
	}
	if res.Gas.Int64() != constantProductGas {
		t.Fatalf("gas mismatch: %s", res.Gas)
	}
	if state.Protocol() != ProtocolUniswapV2 {
		t.Fatalf("protocol mismatch: %s", state.Protocol())
	}
}

func TestConstantProductErrors(t *testing.T) {
	state := NewConstantProduct("", tokA.Address, tokB.Address, big.NewInt(1_000_000), big.NewInt(2_000_000), 30)

	if _, err := state.GetAmountOut(big.NewInt(1), tokA, tokW); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected unknown token, got %v", err)
	}
	if _, err := state.GetAmountOut(big.NewInt(0), tokA, tokB); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected zero amount, got %v", err)
	}

	huge := new(big.Int).Lsh(big.NewInt(1), 250)
	if _, err := state.GetAmountOut(huge, tokA, tokB); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}

	empty := NewConstantProduct("", tokA.Address, tokB.Address, big.NewInt(0), big.NewInt(0), 30)
	if _, err := empty.GetAmountOut(big.NewInt(1), tokA, tokB); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
}

func TestConstantProductSpotPrice(t *testing.T) {
	// 1 DAI (18) : 2 USDC (6)
	state := NewConstantProduct("", tokW.Address, tokA.Address, mustBig(t, "1000000000000000000000"), big.NewInt(2_000_000_000), 30)

	price, err := state.SpotPrice(tokW, tokA)
	if err != nil {
		t.Fatalf("spot price: %v", err)
	}
	if math.Abs(price-2) > 1e-9 {
		t.Fatalf("price mismatch: %v", price)
	}

	inverse, err := state.SpotPrice(tokA, tokW)
	if err != nil {
		t.Fatalf("inverse price: %v", err)
	}
	if math.Abs(inverse-0.5) > 1e-9 {
		t.Fatalf("inverse mismatch: %v", inverse)
	}
}

func TestSpotPriceKeepsTinyPrices(t *testing.T) {
	sats := model.Token{Address: "0xDDDD", Decimals: 8, Symbol: "WBTC"}
	// 1e18 whole tokens against 10 sats
	state := NewConstantProduct("", tokW.Address, sats.Address, mustBig(t, "1000000000000000000000000000000000000"), big.NewInt(10), 30)

	price, err := state.SpotPrice(tokW, sats)
	if err != nil {
		t.Fatalf("spot price: %v", err)
	}
	if math.Abs(price-1e-25)/1e-25 > 1e-12 {
		t.Fatalf("price mismatch: %v", price)
	}

	// small prices keep full float precision
	price, err = ratioPrice(big.NewInt(123456789), mustBig(t, "1000000000000000000"), 0)
	if err != nil {
		t.Fatalf("ratio price: %v", err)
	}
	if math.Abs(price-1.23456789e-10)/1.23456789e-10 > 1e-12 {
		t.Fatalf("precision lost: %v", price)
	}
}

func TestSpotPriceOutOfRange(t *testing.T) {
	heavy := model.Token{Address: "0xEEEE", Decimals: 255}
	light := model.Token{Address: "0xFFFF", Decimals: 0}
	state := NewConstantProduct("", heavy.Address, light.Address, big.NewInt(1), new(big.Int).Exp(big.NewInt(10), big.NewInt(70), nil), 30)

	if _, err := state.SpotPrice(heavy, light); !errors.Is(err, ErrUnpriceable) {
		t.Fatalf("expected ErrUnpriceable for overflowing price, got %v", err)
	}

	tiny := new(big.Int).Exp(big.NewInt(10), big.NewInt(400), nil)
	if _, err := ratioPrice(big.NewInt(1), tiny, 0); !errors.Is(err, ErrUnpriceable) {
		t.Fatalf("expected ErrUnpriceable for underflowing price, got %v", err)
	}
}

func TestConstantProductLimits(t *testing.T) {
	state := NewConstantProduct("", tokA.Address, tokB.Address, big.NewInt(1_000_000), big.NewInt(2_000_000), 30)

	maxIn, maxOut, err := state.GetLimits(tokA, tokB)
	if err != nil {
		t.Fatalf("limits: %v", err)
	}
	if maxIn.Int64() != 1_000_000 {
		t.Fatalf("max in mismatch: %s", maxIn)
	}
	if maxOut.Sign() <= 0 || maxOut.Int64() >= 2_000_000 {
		t.Fatalf("max out out of bounds: %s", maxOut)
	}
}

func TestConcentratedAmountOut(t *testing.T) {
	liquidity := mustBig(t, "1000000000000000000")
	state, err := NewConcentratedLiquidity("", tokA.Address, tokB.Address, q96, liquidity, 0, nil, nil)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}

	amountIn := mustBig(t, "1000000000000000")
	for _, tc := range []struct {
		name     string
		in, out  model.Token
		expected string
	}{
		{name: "zero for one", in: tokA, out: tokB, expected: "999000999000999"},
		{name: "one for zero", in: tokB, out: tokA, expected: "999000999000999"},
	} {
		res, err := state.GetAmountOut(amountIn, tc.in, tc.out)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if res.Amount.String() != tc.expected {
			t.Fatalf("%s: amount mismatch: %s", tc.name, res.Amount)
		}
		if res.Gas.Int64() != concentratedGas {
			t.Fatalf("%s: gas mismatch: %s", tc.name, res.Gas)
		}
	}

	price, err := state.SpotPrice(tokA, tokB)
	if err != nil {
		t.Fatalf("spot price: %v", err)
	}
	if math.Abs(price-1) > 1e-12 {
		t.Fatalf("price mismatch: %v", price)
	}
}

func TestConcentratedRangeBound(t *testing.T) {
	liquidity := mustBig(t, "1000000000000000000")
	upper := new(big.Int).Add(q96, new(big.Int).Rsh(q96, 10))
	lower := new(big.Int).Sub(q96, new(big.Int).Rsh(q96, 10))
	state, err := NewConcentratedLiquidity("", tokA.Address, tokB.Address, q96, liquidity, 3000, lower, upper)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}

	maxIn, maxOut, err := state.GetLimits(tokB, tokA)
	if err != nil {
		t.Fatalf("limits: %v", err)
	}
	if maxIn.Sign() <= 0 || maxOut.Sign() <= 0 {
		t.Fatalf("limits must be positive: %s %s", maxIn, maxOut)
	}

	tooMuch := new(big.Int).Mul(maxIn, big.NewInt(2))
	if _, err := state.GetAmountOut(tooMuch, tokB, tokA); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected range exhaustion, got %v", err)
	}
	if _, err := state.GetAmountOut(new(big.Int).Quo(maxIn, big.NewInt(2)), tokB, tokA); err != nil {
		t.Fatalf("half of limit should fill: %v", err)
	}
}

func TestConcentratedRejectsPriceOutsideRange(t *testing.T) {
	_, err := NewConcentratedLiquidity("", tokA.Address, tokB.Address, big.NewInt(1), big.NewInt(1), 0, nil, nil)
	if err == nil {
		t.Fatalf("expected error for price below min ratio")
	}
}

func TestSqrtRatioAtTick(t *testing.T) {
	zero, err := SqrtRatioAtTick(0)
	if err != nil {
		t.Fatalf("tick 0: %v", err)
	}
	if zero.Cmp(q96) != 0 {
		t.Fatalf("tick 0 should be 2^96, got %s", zero)
	}

	up, err := SqrtRatioAtTick(60)
	if err != nil {
		t.Fatalf("tick 60: %v", err)
	}
	ratio, _ := new(big.Rat).SetFrac(up, q96).Float64()
	if math.Abs(ratio-math.Pow(1.0001, 30)) > 1e-9 {
		t.Fatalf("tick 60 ratio mismatch: %v", ratio)
	}

	down, err := SqrtRatioAtTick(-60)
	if err != nil {
		t.Fatalf("tick -60: %v", err)
	}
	product, _ := new(big.Rat).SetFrac(new(big.Int).Mul(up, down), new(big.Int).Mul(q96, q96)).Float64()
	if math.Abs(product-1) > 1e-12 {
		t.Fatalf("symmetric ticks should multiply to 1, got %v", product)
	}

	for _, tc := range []struct {
		tick     int64
		expected *big.Int
	}{
		{tick: MinTick, expected: MinSqrtRatio},
		{tick: MaxTick, expected: MaxSqrtRatio},
	} {
		got, err := SqrtRatioAtTick(tc.tick)
		if err != nil {
			t.Fatalf("tick %d: %v", tc.tick, err)
		}
		diff := new(big.Int).Sub(got, tc.expected)
		rel, _ := new(big.Rat).SetFrac(diff.Abs(diff), tc.expected).Float64()
		if rel > 1e-9 {
			t.Fatalf("tick %d: got %s, expected about %s", tc.tick, got, tc.expected)
		}
	}

	if _, err := SqrtRatioAtTick(MaxTick + 1); err == nil {
		t.Fatalf("expected error above max tick")
	}
}

func TestTickRange(t *testing.T) {
	lower, upper, err := TickRange(0, 60)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if lower.Cmp(q96) != 0 {
		t.Fatalf("lower bound of tick 0 should be 2^96, got %s", lower)
	}
	at60, _ := SqrtRatioAtTick(60)
	if upper.Cmp(at60) != 0 {
		t.Fatalf("upper bound mismatch: %s", upper)
	}

	// negative ticks floor toward the lower boundary
	lower, upper, err = TickRange(-1, 60)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	atMinus60, _ := SqrtRatioAtTick(-60)
	if lower.Cmp(atMinus60) != 0 || upper.Cmp(q96) != 0 {
		t.Fatalf("tick -1 range mismatch: [%s, %s]", lower, upper)
	}

	lower, _, err = TickRange(MinTick, 60)
	if err != nil {
		t.Fatalf("range at min tick: %v", err)
	}
	atMin, _ := SqrtRatioAtTick(MinTick)
	if lower.Cmp(atMin) != 0 {
		t.Fatalf("lower bound should clamp to min tick, got %s", lower)
	}

	if _, _, err := TickRange(0, 0); err == nil {
		t.Fatalf("expected error for zero spacing")
	}
}

func TestStableSwapAmountOut(t *testing.T) {
	balances := [2]*big.Int{mustBig(t, "1000000000000"), mustBig(t, "1000000000000")}
	state, err := NewStableSwap("", [2]string{tokA.Address, tokB.Address}, balances, big.NewInt(100), big.NewInt(4_000_000))
	if err != nil {
		t.Fatalf("new state: %v", err)
	}

	res, err := state.GetAmountOut(big.NewInt(1_000_000_000), tokA, tokB)
	if err != nil {
		t.Fatalf("amount out: %v", err)
	}
	if res.Amount.String() != "999590103" {
		t.Fatalf("amount mismatch: %s", res.Amount)
	}
	if res.Gas.Int64() != stableSwapGas {
		t.Fatalf("gas mismatch: %s", res.Gas)
	}
}

func TestStableSwapMixedDecimals(t *testing.T) {
	balances := [2]*big.Int{mustBig(t, "1000000000000000000000000"), mustBig(t, "1000000000000")}
	state, err := NewStableSwap("", [2]string{tokW.Address, tokA.Address}, balances, big.NewInt(100), big.NewInt(4_000_000))
	if err != nil {
		t.Fatalf("new state: %v", err)
	}

	res, err := state.GetAmountOut(mustBig(t, "1000000000000000000000"), tokW, tokA)
	if err != nil {
		t.Fatalf("amount out: %v", err)
	}
	if res.Amount.String() != "999590103" {
		t.Fatalf("amount mismatch: %s", res.Amount)
	}

	price, err := state.SpotPrice(tokW, tokA)
	if err != nil {
		t.Fatalf("spot price: %v", err)
	}
	if math.Abs(price-1) > 1e-3 {
		t.Fatalf("balanced pool should price near 1, got %v", price)
	}
}

func TestStableSwapDrainFails(t *testing.T) {
	balances := [2]*big.Int{big.NewInt(1000), big.NewInt(0)}
	state, err := NewStableSwap("", [2]string{tokA.Address, tokB.Address}, balances, big.NewInt(100), big.NewInt(0))
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	if _, err := state.GetAmountOut(big.NewInt(10), tokA, tokB); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
}
