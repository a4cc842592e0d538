package dex

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type fakeCaller struct {
	responses map[string][]byte
	calls     int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{responses: make(map[string][]byte)}
}

func (f *fakeCaller) set(t *testing.T, target common.Address, parsed abi.ABI, method string, args []interface{}, outputs ...interface{}) {
	t.Helper()
	input, err := parsed.Pack(method, args...)
	if err != nil {
		t.Fatalf("pack %s input: %v", method, err)
	}
	output, err := parsed.Methods[method].Outputs.Pack(outputs...)
	if err != nil {
		t.Fatalf("pack %s output: %v", method, err)
	}
	f.responses[target.Hex()+hex.EncodeToString(input)] = output
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	resp, ok := f.responses[msg.To.Hex()+hex.EncodeToString(msg.Data)]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return resp, nil
}

func TestReadConstantProductState(t *testing.T) {
	pairABI, err := V2PairABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token0 := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	token1 := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	caller := newFakeCaller()
	caller.set(t, pool, pairABI, "token0", nil, token0)
	caller.set(t, pool, pairABI, "token1", nil, token1)
	caller.set(t, pool, pairABI, "getReserves", nil, big.NewInt(5000), big.NewInt(7000), uint32(1700000000))

	tokens, err := ResolveTokens(context.Background(), caller, pool, ProtocolUniswapV2)
	if err != nil {
		t.Fatalf("resolve tokens: %v", err)
	}
	if tokens[0] != token0 || tokens[1] != token1 {
		t.Fatalf("token order mismatch: %v", tokens)
	}

	state, err := ReadState(context.Background(), caller, PoolRef{Address: pool, Protocol: ProtocolUniswapV2, Tokens: tokens, FeeBps: 30}, nil)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	cp, ok := state.(*ConstantProductState)
	if !ok {
		t.Fatalf("state type mismatch: %T", state)
	}
	if cp.Reserve0.Int64() != 5000 || cp.Reserve1.Int64() != 7000 {
		t.Fatalf("reserves mismatch: %s %s", cp.Reserve0, cp.Reserve1)
	}
	if cp.Token0 != token0.Hex() {
		t.Fatalf("token0 mismatch: %s", cp.Token0)
	}
}

func TestReadStableSwapState(t *testing.T) {
	curveABI, err := CurvePoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	pool := common.HexToAddress("0x2222222222222222222222222222222222222222")
	coins := [2]common.Address{
		common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
	}

	caller := newFakeCaller()
	for i, coin := range coins {
		caller.set(t, pool, curveABI, "coins", []interface{}{big.NewInt(int64(i))}, coin)
		caller.set(t, pool, curveABI, "balances", []interface{}{big.NewInt(int64(i))}, big.NewInt(1_000_000_000_000))
	}
	caller.set(t, pool, curveABI, "A", nil, big.NewInt(200))
	caller.set(t, pool, curveABI, "fee", nil, big.NewInt(4_000_000))

	tokens, err := ResolveTokens(context.Background(), caller, pool, ProtocolCurve)
	if err != nil {
		t.Fatalf("resolve tokens: %v", err)
	}
	state, err := ReadState(context.Background(), caller, PoolRef{Address: pool, Protocol: ProtocolCurve, Tokens: tokens}, big.NewInt(100))
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	ss := state.(*StableSwapState)
	if ss.Amp.Int64() != 200 || ss.Fee.Int64() != 4_000_000 {
		t.Fatalf("params mismatch: amp=%s fee=%s", ss.Amp, ss.Fee)
	}
	if ss.Tokens[1] != coins[1].Hex() {
		t.Fatalf("token mismatch: %s", ss.Tokens[1])
	}
}

func TestReadConcentratedStateTickRange(t *testing.T) {
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	pool := common.HexToAddress("0x3333333333333333333333333333333333333333")
	tokens := [2]common.Address{
		common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
	}
	ref := PoolRef{Address: pool, Protocol: ProtocolUniswapV3, Tokens: tokens}

	for _, tc := range []struct {
		name      string
		sqrtPrice *big.Int
		tick      int64
		lower     int64
		upper     int64
	}{
		{name: "at range start", sqrtPrice: new(big.Int).Set(q96), tick: 0, lower: 0, upper: 60},
		{name: "negative tick", sqrtPrice: new(big.Int).Sub(q96, big.NewInt(1000)), tick: -1, lower: -60, upper: 0},
	} {
		caller := newFakeCaller()
		caller.set(t, pool, poolABI, "slot0", nil,
			tc.sqrtPrice, big.NewInt(tc.tick), uint16(0), uint16(1), uint16(1), uint8(0), true)
		caller.set(t, pool, poolABI, "tickSpacing", nil, big.NewInt(60))
		caller.set(t, pool, poolABI, "liquidity", nil, big.NewInt(1_000_000_000_000))
		caller.set(t, pool, poolABI, "fee", nil, big.NewInt(3000))

		state, err := ReadState(context.Background(), caller, ref, nil)
		if err != nil {
			t.Fatalf("%s: read state: %v", tc.name, err)
		}
		cl, ok := state.(*ConcentratedLiquidityState)
		if !ok {
			t.Fatalf("%s: state type mismatch: %T", tc.name, state)
		}

		lower, _ := SqrtRatioAtTick(tc.lower)
		upper, _ := SqrtRatioAtTick(tc.upper)
		if cl.SqrtLowerX96.Cmp(lower) != 0 || cl.SqrtUpperX96.Cmp(upper) != 0 {
			t.Fatalf("%s: bounds mismatch: [%s, %s]", tc.name, cl.SqrtLowerX96, cl.SqrtUpperX96)
		}
		if cl.SqrtPriceX96.Cmp(tc.sqrtPrice) != 0 || cl.Fee != 3000 {
			t.Fatalf("%s: params mismatch: price=%s fee=%d", tc.name, cl.SqrtPriceX96, cl.Fee)
		}
	}
}

func TestReadStateUnsupportedProtocol(t *testing.T) {
	_, err := ReadState(context.Background(), newFakeCaller(), PoolRef{Protocol: "balancer_v2"}, nil)
	if err == nil {
		t.Fatalf("expected unsupported protocol error")
	}
}

func TestTokenCacheFetchesOnce(t *testing.T) {
	stringABI, err := erc20ABIString.get()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	bytes32ABI, err := erc20ABIBytes32.get()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	token := common.HexToAddress("0x3333333333333333333333333333333333333333")

	caller := newFakeCaller()
	caller.set(t, token, stringABI, "decimals", nil, uint8(6))
	caller.set(t, token, stringABI, "symbol", nil, "USDC")
	var name [32]byte
	copy(name[:], "USD Coin")
	caller.set(t, token, bytes32ABI, "name", nil, name)

	cache := NewTokenCache()
	meta, err := cache.Token(context.Background(), caller, token, zap.NewNop())
	if err != nil {
		t.Fatalf("fetch token: %v", err)
	}
	if meta.Decimals != 6 || meta.Symbol != "USDC" || meta.Name != "USD Coin" {
		t.Fatalf("metadata mismatch: %+v", meta)
	}

	calls := caller.calls
	if _, err := cache.Token(context.Background(), caller, token, zap.NewNop()); err != nil {
		t.Fatalf("cached token: %v", err)
	}
	if caller.calls != calls {
		t.Fatalf("expected cached lookup, got %d extra calls", caller.calls-calls)
	}
}
