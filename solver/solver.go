package solver

import (
	"errors"
	"fmt"
	"math"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/defistate/defistate-arb-go/price"
)

var (
	// ErrStalePrice is returned when a leg's reserves are not a matched pair.
	ErrStalePrice = errors.New("solver: stale price")
	// ErrInsufficientInput is returned when a hop would consume more than it was given.
	ErrInsufficientInput = errors.New("solver: hop consumes more than its input")
	// ErrZeroOutput is returned when a hop would produce nothing.
	ErrZeroOutput = errors.New("solver: hop produces no output")
)

// Params tune trade sizing. All ratios are fractions, not percentages.
type Params struct {
	// Slippage discounts every hop output.
	Slippage float64
	// Greed is the share of the theoretical optimum actually risked.
	Greed float64
	// SafetyPercentage caps any trade at this share of the wallet balance.
	SafetyPercentage float64
	// MinimumMoney is the smallest trade worth sizing precisely.
	MinimumMoney uint64
}

func (p Params) Validate() error {
	if p.Greed < 0 || p.Greed > 1 {
		return fmt.Errorf("solver: greed %v outside [0, 1]", p.Greed)
	}
	if p.SafetyPercentage <= 0 || p.SafetyPercentage > 1 {
		return fmt.Errorf("solver: safety percentage %v outside (0, 1]", p.SafetyPercentage)
	}
	if p.Slippage < 0 || p.Slippage >= 1 {
		return fmt.Errorf("solver: slippage %v outside [0, 1)", p.Slippage)
	}
	return nil
}

// MaxInput is the largest trade the wallet balance allows.
func MaxInput(balance uint64, params Params) uint64 {
	return uint64(float64(balance) * params.SafetyPercentage)
}

// OptimalInput sizes a trade along cycle. The legs are folded into a single
// curve out(x) = alpha*x / (beta + gamma*x) whose profit out(x)-x peaks at
// (sqrt(alpha*beta) - beta) / gamma. Leg i is discounted by its fee and by
// (1-slippage)^(i+1). Every curve is treated as constant product here; the
// size is only a trial value and Potential re-prices it exactly.
//
// When the optimum is undefined, below MinimumMoney or above MaxInput the
// result is MaxInput.
func OptimalInput(cycle *engine.Cycle, pools []engine.Pool, cache *price.Cache, balance uint64, params Params) uint64 {
	maxInput := MaxInput(balance, params)

	alpha, beta, gamma := 1.0, 1.0, 0.0
	discount := 1.0
	for _, leg := range cycle.Path {
		pp := cache.Get(leg.Pool)
		a := pp.Amount(leg.Direction)
		b := pp.Amount(1 - leg.Direction)

		discount *= 1 - params.Slippage
		f := pools[leg.Pool].Fees() * discount

		gamma = gamma*a + alpha*f
		alpha = alpha * b * f
		beta = beta * a
	}

	x := (math.Sqrt(alpha*beta) - beta) / gamma
	x = math.Floor(x) * params.Greed
	if math.IsNaN(x) || math.IsInf(x, 0) || x >= math.MaxInt64 || x <= math.MinInt64 {
		return maxInput
	}

	size := int64(x)
	if size < 0 || uint64(size) < params.MinimumMoney || uint64(size) > maxInput {
		return maxInput
	}
	return uint64(size)
}

// Potential simulates amountIn through every leg of cycle and returns the
// base currency that comes back, each hop discounted by slippage. It is zero
// as soon as a leg is not sane.
func Potential(cycle *engine.Cycle, pools []engine.Pool, cache *price.Cache, amountIn uint64, slippage float64) uint64 {
	amount := amountIn
	for _, leg := range cycle.Path {
		pp := cache.Get(leg.Pool)
		if !pp.Sane() {
			return 0
		}
		out, _ := pp.Quote(amount, leg.Direction, &pools[leg.Pool])
		amount = discount(out, slippage)
	}
	return amount
}

// Plan lays out the hops of one execution. Each hop spends what the previous
// one is expected to return. Only the last hop guards the round trip with a
// minimum output of amountIn; the bundle is atomic so the others pass zero.
func Plan(cycle *engine.Cycle, pools []engine.Pool, cache *price.Cache, amountIn uint64, slippage float64) ([]engine.Hop, error) {
	hops := make([]engine.Hop, 0, len(cycle.Path))
	amount := amountIn
	for i, leg := range cycle.Path {
		pp := cache.Get(leg.Pool)
		if !pp.Sane() {
			return nil, fmt.Errorf("%w: pool %d", ErrStalePrice, leg.Pool)
		}

		out, consumed := pp.Quote(amount, leg.Direction, &pools[leg.Pool])
		if consumed > amount {
			return nil, fmt.Errorf("%w: pool %d consumes %d of %d", ErrInsufficientInput, leg.Pool, consumed, amount)
		}
		next := discount(out, slippage)
		if next == 0 {
			return nil, fmt.Errorf("%w: pool %d", ErrZeroOutput, leg.Pool)
		}

		var minimumOut uint64
		if i == len(cycle.Path)-1 {
			minimumOut = amountIn
		}
		hops = append(hops, engine.Hop{
			Pool:             leg.Pool,
			Direction:        leg.Direction,
			AmountIn:         amount,
			MinimumAmountOut: minimumOut,
		})
		amount = next
	}
	return hops, nil
}

// Evaluate sizes cycle and prices the result.
func Evaluate(cycle *engine.Cycle, pools []engine.Pool, cache *price.Cache, balance uint64, params Params) (size, gain uint64) {
	size = OptimalInput(cycle, pools, cache, balance, params)
	return size, Potential(cycle, pools, cache, size, params.Slippage)
}

func discount(amount uint64, slippage float64) uint64 {
	return uint64(float64(amount) * (1 - slippage))
}
