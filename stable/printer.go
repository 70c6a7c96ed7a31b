// Package stable implements the stable-hop printer: it holds whichever
// currency the wallet has most of and swaps it through a single pool
// whenever the output, valued in the held currency's units, beats the input
// by the configured ratio.
package stable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/defistate/defistate-arb-go/price"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// StableCycle marks execution requests that carry a single stable hop
// rather than a cycle from the cycle list.
const StableCycle = -1

const defaultSettle = time.Second

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Feed delivers reserve updates. A value on Err, or a closed Updates channel,
// is fatal.
type Feed interface {
	Updates() <-chan engine.ReserveUpdate
	Err() <-chan error
}

// Processor executes one request synchronously.
type Processor interface {
	Process(ctx context.Context, req engine.ExecutionRequest) engine.ExecutionResult
}

// Config holds the knobs and dependencies of a Printer.
type Config struct {
	Slippage         float64
	SafetyPercentage float64
	// MinimumGainP is the output/input ratio a hop must exceed. Values
	// below 1 are raised to 1.
	MinimumGainP float64
	// Settle is how long to wait after a swap before re-reading balances.
	Settle time.Duration

	Registry prometheus.Registerer
	Logger   Logger
}

func (c *Config) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.Slippage < 0 || c.Slippage >= 1 {
		return fmt.Errorf("config: Slippage must be in [0, 1), got %v", c.Slippage)
	}
	if c.SafetyPercentage <= 0 || c.SafetyPercentage > 1 {
		return fmt.Errorf("config: SafetyPercentage must be in (0, 1], got %v", c.SafetyPercentage)
	}
	if c.Settle < 0 {
		return errors.New("config: Settle cannot be negative")
	}
	return nil
}

// Choice is the best hop found by one evaluation.
type Choice struct {
	Pool      int
	Direction int
	AmountIn  uint64
	// AmountOut is in native units of the output currency.
	AmountOut uint64
	// Value is AmountOut expressed in native units of the input currency.
	Value uint64
}

// Printer owns its price cache; all methods must be called from one
// goroutine.
type Printer struct {
	cfg        Config
	pools      []engine.Pool
	currencies []engine.Currency
	cache      *price.Cache
	balances   price.BalanceFetcher
	exec       Processor
	logger     Logger
	metrics    *Metrics

	current int
	money   uint64
}

// New creates a printer holding nothing until the first balance read.
func New(
	cfg *Config,
	pools []engine.Pool,
	currencies []engine.Currency,
	cache *price.Cache,
	balances price.BalanceFetcher,
	exec Processor,
) (*Printer, error) {
	if cfg == nil {
		return nil, errors.New("stable config cannot be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid stable config: %w", err)
	}
	if cache == nil || balances == nil || exec == nil {
		return nil, errors.New("stable: cache, balances and executor are required")
	}
	if cache.Len() != len(pools) {
		return nil, fmt.Errorf("stable: price cache holds %d pools, registry %d", cache.Len(), len(pools))
	}

	c := *cfg
	if c.MinimumGainP < 1 {
		c.MinimumGainP = 1
	}
	if c.Settle == 0 {
		c.Settle = defaultSettle
	}
	return &Printer{
		cfg:        c,
		pools:      pools,
		currencies: currencies,
		cache:      cache,
		balances:   balances,
		exec:       exec,
		logger:     c.Logger,
		metrics:    NewMetrics(c.Registry),
		current:    -1,
	}, nil
}

// Holding returns the held currency and its wallet balance. The currency is
// -1 while the wallet holds nothing.
func (p *Printer) Holding() (currency int, amount uint64) {
	return p.current, p.money
}

// RecomputeBalance re-reads every wallet account and holds the largest one.
// Ties keep the lowest currency id.
func (p *Printer) RecomputeBalance(ctx context.Context) error {
	current, money := -1, uint64(0)
	for i := range p.currencies {
		c := &p.currencies[i]
		if c.Account.IsZero() {
			continue
		}
		amount, _, err := p.balances.TokenBalance(ctx, c.Account)
		if err != nil {
			return fmt.Errorf("balance of %s: %w", c.Name, err)
		}
		if amount > money {
			current, money = i, amount
		}
	}
	if current != p.current && current >= 0 {
		p.logger.Info("Holding currency", "currency", p.currencies[current].Name, "amount", money)
	}
	p.current, p.money = current, money
	if current >= 0 {
		p.metrics.holding.Reset()
		p.metrics.holding.WithLabelValues(p.currencies[current].Name).Set(float64(money))
	}
	return nil
}

// Choose evaluates every sane hop out of the held currency. It returns the
// hop with the highest value and whether that value clears
// input * MinimumGainP.
func (p *Printer) Choose() (Choice, bool) {
	p.metrics.steps.Inc()
	if p.current < 0 {
		return Choice{}, false
	}
	amountIn := uint64(float64(p.money) * p.cfg.SafetyPercentage)
	if amountIn == 0 {
		return Choice{}, false
	}
	decimalsIn := p.currencies[p.current].Decimals
	p.logger.Debug("Balance", "amount", amountIn, "currency", p.currencies[p.current].Name)

	var best Choice
	found := false
	for i := range p.pools {
		pool := &p.pools[i]
		for d := 0; d < 2; d++ {
			if pool.Currency(d) != p.current || !p.cache.Sane(i) {
				continue
			}
			out, _ := p.cache.Get(i).Quote(amountIn, d, pool)
			out = uint64(float64(out) * (1 - p.cfg.Slippage))
			decimalsOut := p.currencies[pool.Currency(1-d)].Decimals
			value := rescale(out, decimalsOut, decimalsIn)
			p.logger.Debug("Hop", "pool", pool.Name, "out", out, "currency", p.currencies[pool.Currency(1-d)].Name)

			if value > best.Value {
				best = Choice{Pool: i, Direction: d, AmountIn: amountIn, AmountOut: out, Value: value}
				found = true
			}
		}
	}
	if !found {
		return Choice{}, false
	}
	return best, float64(best.Value) > float64(amountIn)*p.cfg.MinimumGainP
}

// Step refreshes the balance and executes the best hop if it clears the
// threshold, then waits Settle for the swap to land.
func (p *Printer) Step(ctx context.Context) error {
	if err := p.RecomputeBalance(ctx); err != nil {
		return err
	}
	choice, ok := p.Choose()
	if !ok {
		return nil
	}

	pool := &p.pools[choice.Pool]
	p.logger.Info("Executing stable swap",
		"pool", pool.Name,
		"to", p.currencies[pool.Currency(1-choice.Direction)].Name,
		"in", choice.AmountIn,
		"out", choice.AmountOut)

	result := p.exec.Process(ctx, engine.ExecutionRequest{
		ID:            uuid.NewString(),
		Cycle:         StableCycle,
		Size:          choice.AmountIn,
		PredictedGain: choice.Value,
		Hops: []engine.Hop{{
			Pool:             choice.Pool,
			Direction:        choice.Direction,
			AmountIn:         choice.AmountIn,
			MinimumAmountOut: choice.AmountOut,
		}},
		NeedsApproval: pool.NeedsApprove,
		CreatedAt:     time.Now(),
	})
	p.metrics.swaps.WithLabelValues(string(result.Status)).Inc()

	select {
	case <-time.After(p.cfg.Settle):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run applies feed events and steps until ctx ends or the feed is lost.
func (p *Printer) Run(ctx context.Context, feed Feed) error {
	p.logger.Info("Initiating stable print sequence", "pools", len(p.pools))
	for {
		if err := p.drain(feed); err != nil {
			return p.lost(ctx, err)
		}
		if err := p.Step(ctx); err != nil {
			return err
		}

		p.logger.Debug("Waiting for updates")
		select {
		case update, ok := <-feed.Updates():
			if !ok {
				return p.lost(ctx, closedCause(feed))
			}
			p.apply(update)
		case err, ok := <-feed.Err():
			if !ok {
				err = errors.New("error stream closed")
			}
			return p.lost(ctx, err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Printer) drain(feed Feed) error {
	for {
		select {
		case update, ok := <-feed.Updates():
			if !ok {
				return closedCause(feed)
			}
			p.apply(update)
		default:
			return nil
		}
	}
}

func (p *Printer) apply(update engine.ReserveUpdate) {
	if _, err := p.cache.Apply(update); err != nil {
		p.logger.Warn("Discarding malformed reserve update", "pool", update.Pool, "leg", update.Leg, "error", err)
	}
}

// closedCause prefers the error a failing feed delivered before closing
// Updates.
func closedCause(feed Feed) error {
	select {
	case err, ok := <-feed.Err():
		if ok && err != nil {
			return err
		}
	default:
	}
	return errors.New("update stream closed")
}

func (p *Printer) lost(ctx context.Context, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.logger.Error("Balance feed lost", "error", cause)
	return fmt.Errorf("stable: balance feed lost: %w", cause)
}

// rescale converts amount between decimal spaces, saturating at MaxUint64.
func rescale(amount uint64, from, to uint8) uint64 {
	if from == to {
		return amount
	}
	v := uint256.NewInt(amount)
	if to > from {
		v.Mul(v, new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(to-from))))
	} else {
		v.Div(v, new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(from-to))))
	}
	if !v.IsUint64() {
		return ^uint64(0)
	}
	return v.Uint64()
}
