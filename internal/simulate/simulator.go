package simulate

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"liquiditySim/internal/model"
)

// Reader resolves pools by id. *cache.Cache satisfies it.
type Reader interface {
	Lookup(id string) (*model.Component, model.PoolState)
}

// Request routes Amount of SellToken through Pools in order.
type Request struct {
	SellToken string   `json:"sell_token"`
	Pools     []string `json:"pools"`
	Amount    string   `json:"amount"`
}

// Result holds human-readable amounts and the summed gas estimate.
type Result struct {
	InputAmount  string `json:"input_amount"`
	OutputAmount string `json:"output_amount"`
	GasEstimate  string `json:"gas_estimate"`
}

// Simulator quotes multi-hop routes against the cached pool states.
type Simulator struct {
	reader Reader
	logger *zap.Logger
}

func New(reader Reader, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{reader: reader, logger: logger}
}

// Simulate walks the route hop by hop, feeding each output into the next
// pool. Each hop reads the cache independently, so a route can observe
// states from different blocks.
func (s *Simulator) Simulate(ctx context.Context, req Request) (Result, error) {
	whole, frac, err := splitAmount(req.Amount)
	if err != nil {
		return Result{}, err
	}
	if len(req.Pools) == 0 {
		return Result{InputAmount: req.Amount, OutputAmount: req.Amount, GasEstimate: "0"}, nil
	}

	first, err := s.component(req.Pools[0])
	if err != nil {
		return Result{}, err
	}
	sellToken, ok := first.Token(req.SellToken)
	if !ok {
		return Result{}, fmt.Errorf("%w: token %s not in pool %s", ErrInvalidInput, req.SellToken, req.Pools[0])
	}
	amount, err := toUnits(whole, frac, sellToken.Decimals, req.Amount)
	if err != nil {
		return Result{}, err
	}

	current := sellToken.Address
	decimals := sellToken.Decimals
	gas := new(big.Int)

	for hop, id := range req.Pools {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrInternal, err)
		}

		comp, state := s.reader.Lookup(id)
		if comp == nil {
			return Result{}, fmt.Errorf("%w: component %s", ErrNotFound, id)
		}
		if state == nil {
			return Result{}, fmt.Errorf("%w: pool state %s", ErrNotFound, id)
		}

		tokenIn, tokenOut, ok := comp.Counterpart(current)
		if !ok {
			return Result{}, fmt.Errorf("%w: token %s cannot be sold into pool %s", ErrInvalidInput, current, id)
		}

		out, err := state.GetAmountOut(amount, tokenIn, tokenOut)
		if err != nil {
			return Result{}, fmt.Errorf("%w: pool %s: %v", ErrSimulation, id, err)
		}

		s.logger.Debug("hop simulated",
			zap.Int("hop", hop),
			zap.String("pool", id),
			zap.String("token_in", tokenIn.Address),
			zap.String("token_out", tokenOut.Address),
			zap.String("amount_in", amount.String()),
			zap.String("amount_out", out.Amount.String()),
		)

		amount = out.Amount
		gas.Add(gas, out.Gas)
		current = tokenOut.Address
		decimals = tokenOut.Decimals
	}

	return Result{
		InputAmount:  req.Amount,
		OutputAmount: FormatAmount(amount, decimals),
		GasEstimate:  gas.String(),
	}, nil
}

func (s *Simulator) component(id string) (*model.Component, error) {
	comp, _ := s.reader.Lookup(id)
	if comp == nil {
		return nil, fmt.Errorf("%w: component %s", ErrNotFound, id)
	}
	return comp, nil
}
