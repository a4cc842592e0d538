package dex

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/sugawarayuuta/sonnet"

	"liquiditySim/internal/model"
)

// StateDecoder builds a pool state from its JSON record.
type StateDecoder func(protocol string, raw []byte) (model.PoolState, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]StateDecoder)
)

func init() {
	Register(ProtocolUniswapV2, decodeConstantProduct)
	Register("sushiswap_v2", decodeConstantProduct)
	Register("pancakeswap_v2", decodeConstantProduct)
	Register(ProtocolUniswapV3, decodeConcentrated)
	Register("pancakeswap_v3", decodeConcentrated)
	Register(ProtocolCurve, decodeStableSwap)
	Register("vm:curve", decodeStableSwap)
}

// Register binds a protocol name to a decoder, replacing any previous one.
func Register(protocol string, decoder StateDecoder) {
	registryMu.Lock()
	registry[protocol] = decoder
	registryMu.Unlock()
}

// Protocols lists registered protocol names.
func Protocols() []string {
	registryMu.RLock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	registryMu.RUnlock()
	sort.Strings(out)
	return out
}

// DecodeState decodes a state record for the given protocol.
func DecodeState(protocol string, raw []byte) (model.PoolState, error) {
	registryMu.RLock()
	decoder, ok := registry[protocol]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported protocol %q", protocol)
	}
	state, err := decoder(protocol, raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s state: %w", protocol, err)
	}
	return state, nil
}

type constantProductRecord struct {
	Token0   string `json:"token0"`
	Token1   string `json:"token1"`
	Reserve0 string `json:"reserve0"`
	Reserve1 string `json:"reserve1"`
	FeeBps   uint32 `json:"fee_bps"`
}

func (s *ConstantProductState) MarshalJSON() ([]byte, error) {
	return json.Marshal(constantProductRecord{
		Token0:   s.Token0,
		Token1:   s.Token1,
		Reserve0: s.Reserve0.String(),
		Reserve1: s.Reserve1.String(),
		FeeBps:   s.FeeBps,
	})
}

func decodeConstantProduct(protocol string, raw []byte) (model.PoolState, error) {
	var rec constantProductRecord
	if err := sonnet.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	reserve0, err := parseBig("reserve0", rec.Reserve0)
	if err != nil {
		return nil, err
	}
	reserve1, err := parseBig("reserve1", rec.Reserve1)
	if err != nil {
		return nil, err
	}
	if rec.FeeBps >= 10_000 {
		return nil, fmt.Errorf("fee_bps %d out of range", rec.FeeBps)
	}
	return NewConstantProduct(protocol, rec.Token0, rec.Token1, reserve0, reserve1, rec.FeeBps), nil
}

type concentratedRecord struct {
	Token0       string `json:"token0"`
	Token1       string `json:"token1"`
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Liquidity    string `json:"liquidity"`
	Fee          uint32 `json:"fee"`
	SqrtLowerX96 string `json:"sqrt_price_lower_x96,omitempty"`
	SqrtUpperX96 string `json:"sqrt_price_upper_x96,omitempty"`
}

func (s *ConcentratedLiquidityState) MarshalJSON() ([]byte, error) {
	return json.Marshal(concentratedRecord{
		Token0:       s.Token0,
		Token1:       s.Token1,
		SqrtPriceX96: s.SqrtPriceX96.String(),
		Liquidity:    s.Liquidity.String(),
		Fee:          s.Fee,
		SqrtLowerX96: s.SqrtLowerX96.String(),
		SqrtUpperX96: s.SqrtUpperX96.String(),
	})
}

func decodeConcentrated(protocol string, raw []byte) (model.PoolState, error) {
	var rec concentratedRecord
	if err := sonnet.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	sqrtPrice, err := parseBig("sqrt_price_x96", rec.SqrtPriceX96)
	if err != nil {
		return nil, err
	}
	liquidity, err := parseBig("liquidity", rec.Liquidity)
	if err != nil {
		return nil, err
	}
	var lower, upper *big.Int
	if rec.SqrtLowerX96 != "" {
		if lower, err = parseBig("sqrt_price_lower_x96", rec.SqrtLowerX96); err != nil {
			return nil, err
		}
	}
	if rec.SqrtUpperX96 != "" {
		if upper, err = parseBig("sqrt_price_upper_x96", rec.SqrtUpperX96); err != nil {
			return nil, err
		}
	}
	return NewConcentratedLiquidity(protocol, rec.Token0, rec.Token1, sqrtPrice, liquidity, rec.Fee, lower, upper)
}

type stableSwapRecord struct {
	Tokens   [2]string `json:"tokens"`
	Balances [2]string `json:"balances"`
	Amp      string    `json:"amp"`
	Fee      string    `json:"fee"`
}

func (s *StableSwapState) MarshalJSON() ([]byte, error) {
	return json.Marshal(stableSwapRecord{
		Tokens:   s.Tokens,
		Balances: [2]string{s.Balances[0].String(), s.Balances[1].String()},
		Amp:      s.Amp.String(),
		Fee:      s.Fee.String(),
	})
}

func decodeStableSwap(protocol string, raw []byte) (model.PoolState, error) {
	var rec stableSwapRecord
	if err := sonnet.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	var balances [2]*big.Int
	for i, value := range rec.Balances {
		balance, err := parseBig(fmt.Sprintf("balances[%d]", i), value)
		if err != nil {
			return nil, err
		}
		balances[i] = balance
	}
	amp, err := parseBig("amp", rec.Amp)
	if err != nil {
		return nil, err
	}
	fee, err := parseBig("fee", rec.Fee)
	if err != nil {
		return nil, err
	}
	return NewStableSwap(protocol, rec.Tokens, balances, amp, fee)
}
