package simulate

import (
	"fmt"

	"liquiditySim/internal/model"
)

// LimitsRequest asks for the trade bounds of one pool in one direction.
type LimitsRequest struct {
	SellToken   string `json:"sell_token"`
	BuyToken    string `json:"buy_token"`
	PoolAddress string `json:"pool_address"`
}

// LimitsResult holds the bounds as human-readable amounts.
type LimitsResult struct {
	MaxInput  string `json:"max_input"`
	MaxOutput string `json:"max_output"`
}

// Limits reports the largest sell amount a pool accepts and the output it yields.
func (s *Simulator) Limits(req LimitsRequest) (LimitsResult, error) {
	comp, state := s.reader.Lookup(req.PoolAddress)
	if comp == nil {
		return LimitsResult{}, fmt.Errorf("%w: component %s", ErrNotFound, req.PoolAddress)
	}
	if state == nil {
		return LimitsResult{}, fmt.Errorf("%w: pool state %s", ErrNotFound, req.PoolAddress)
	}

	sellToken, buyToken, ok := comp.Counterpart(req.SellToken)
	if !ok || buyToken.Address != req.BuyToken {
		return LimitsResult{}, fmt.Errorf("%w: pair %s/%s not in pool %s", ErrInvalidInput, req.SellToken, req.BuyToken, req.PoolAddress)
	}

	limiter, ok := state.(model.Limiter)
	if !ok {
		return LimitsResult{}, fmt.Errorf("%w: protocol %s does not report limits", ErrSimulation, state.Protocol())
	}
	maxIn, maxOut, err := limiter.GetLimits(sellToken, buyToken)
	if err != nil {
		return LimitsResult{}, fmt.Errorf("%w: pool %s: %v", ErrSimulation, req.PoolAddress, err)
	}

	return LimitsResult{
		MaxInput:  FormatAmount(maxIn, sellToken.Decimals),
		MaxOutput: FormatAmount(maxOut, buyToken.Decimals),
	}, nil
}
