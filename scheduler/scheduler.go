package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/defistate/defistate-arb-go/bitset"
	"github.com/defistate/defistate-arb-go/engine"
	"github.com/defistate/defistate-arb-go/graph"
	"github.com/defistate/defistate-arb-go/price"
	"github.com/defistate/defistate-arb-go/solver"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrFeedLost is returned by Run when the balance feed stops. Operating
	// on frozen reserves is never safe, so callers treat it as fatal.
	ErrFeedLost = errors.New("scheduler: balance feed lost")
	// ErrUnknownCycle is returned for a cycle id outside the cycle list.
	ErrUnknownCycle = errors.New("scheduler: unknown cycle")
	// ErrInsufficientBalance is returned by Force when the sized input is
	// below the configured minimum.
	ErrInsufficientBalance = errors.New("scheduler: insufficient balance")
)

const (
	triggerRecompute = "recompute"
	triggerCooldown  = "cooldown"
	triggerForced    = "forced"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Feed delivers reserve updates in per-account order. A value on Err, or a
// closed Updates channel, means the feed is gone for good.
type Feed interface {
	Updates() <-chan engine.ReserveUpdate
	Err() <-chan error
}

// Sink accepts execution requests without blocking. It reports false when
// the request was dropped.
type Sink interface {
	Execute(req engine.ExecutionRequest) bool
}

// Config holds the strategy knobs and dependencies of a Scheduler.
type Config struct {
	Params solver.Params
	// MinimumGain is the profit, in native base units, a cycle must clear.
	MinimumGain uint64
	// Cooldown is the number of quiet passes a cycle keeps re-checking its
	// cached result after a recomputation.
	Cooldown uint64
	// MinimumDisplay enables debug listing of cycles whose gain exceeds
	// size/MinimumDisplay. Zero disables it.
	MinimumDisplay float64

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
	if c.MinimumDisplay < 0 {
		return errors.New("config: MinimumDisplay cannot be negative")
	}
	return c.Params.Validate()
}

// cycleState is the cached evaluation of one cycle.
type cycleState struct {
	size     uint64
	gain     uint64
	cooldown uint64
}

// CycleStatus is a read-only view of one cycle for inspection tooling.
type CycleStatus struct {
	ID            int          `json:"id"`
	Route         string       `json:"route"`
	Path          []engine.Leg `json:"path"`
	Size          uint64       `json:"size"`
	Gain          uint64       `json:"gain"`
	Profit        int64        `json:"profit"`
	Cooldown      uint64       `json:"cooldown"`
	NeedsApproval bool         `json:"needsApproval"`
}

// Record is the most profitable evaluation seen so far.
type Record struct {
	Cycle  int       `json:"cycle"`
	Route  string    `json:"route"`
	Size   uint64    `json:"size"`
	Gain   uint64    `json:"gain"`
	Profit int64     `json:"profit"`
	At     time.Time `json:"at"`
}

// Scheduler owns the price cache and the per-cycle state. Everything except
// Listing and Best must be called from one goroutine.
type Scheduler struct {
	cfg        Config
	pools      []engine.Pool
	currencies []engine.Currency
	cycles     []engine.Cycle
	routes     []string
	cache      *price.Cache
	balance    uint64
	sink       Sink
	logger     Logger
	metrics    *Metrics

	deps        []bitset.BitSet // pool id -> cycles containing it
	needsUpdate bitset.BitSet
	states      []cycleState

	listing atomic.Pointer[[]CycleStatus]
	best    atomic.Pointer[Record]
}

// New builds a scheduler over a fixed cycle list. Every cycle starts flagged
// for recomputation with no cooldown.
func New(
	cfg *Config,
	pools []engine.Pool,
	currencies []engine.Currency,
	cycles []engine.Cycle,
	cache *price.Cache,
	balance uint64,
	sink Sink,
) (*Scheduler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, errors.New("scheduler: sink is required")
	}
	if cache.Len() != len(pools) {
		return nil, fmt.Errorf("scheduler: price cache holds %d pools, registry %d", cache.Len(), len(pools))
	}

	routes := make([]string, len(cycles))
	for i := range cycles {
		routes[i] = graph.Describe(cycles[i], pools, currencies)
	}

	needsUpdate := bitset.NewBitSet(uint64(len(cycles)))
	needsUpdate.Fill(uint64(len(cycles)))

	s := &Scheduler{
		cfg:         *cfg,
		pools:       pools,
		currencies:  currencies,
		cycles:      cycles,
		routes:      routes,
		cache:       cache,
		balance:     balance,
		sink:        sink,
		logger:      cfg.Logger,
		metrics:     NewMetrics(cfg.Registry),
		deps:        graph.PoolDependencies(cycles, len(pools)),
		needsUpdate: needsUpdate,
		states:      make([]cycleState, len(cycles)),
	}
	s.publish()
	return s, nil
}

// Apply stores one feed event and flags every cycle through its pool.
// Malformed events leave all state untouched.
func (s *Scheduler) Apply(update engine.ReserveUpdate) {
	reserve, err := s.cache.Apply(update)
	if err != nil {
		s.metrics.eventsApplied.WithLabelValues("rejected").Inc()
		s.logger.Warn("Discarding malformed reserve update", "pool", update.Pool, "leg", update.Leg, "error", err)
		return
	}
	if reserve {
		s.metrics.eventsApplied.WithLabelValues("reserve").Inc()
	} else {
		s.metrics.eventsApplied.WithLabelValues("auxiliary").Inc()
	}
	s.needsUpdate.Or(s.deps[update.Pool])
}

// Pass evaluates every cycle once.
//
// A cycle that is not flagged and has no cooldown left is skipped. One that
// is not flagged but still cooling down spends a round and re-checks its
// cached size and gain. A flagged cycle is re-sized; when the size is
// unchanged, or too small to trade, nothing else happens. Otherwise it is
// re-priced and, if the gain moved, the cooldown restarts and the new values
// are checked. A check passes when gain > size + MinimumGain.
func (s *Scheduler) Pass() {
	timer := prometheus.NewTimer(s.metrics.passDuration.WithLabelValues())
	defer timer.ObserveDuration()
	s.metrics.passes.Inc()
	s.metrics.cyclesNeedingWork.Set(float64(s.needsUpdate.Count()))

	changed := false
	for i := range s.cycles {
		st := &s.states[i]
		if !s.needsUpdate.IsSet(uint64(i)) {
			if st.cooldown == 0 {
				continue
			}
			st.cooldown--
			changed = true
			if st.size >= s.cfg.Params.MinimumMoney && s.profitable(st.size, st.gain) {
				s.request(i, st.size, st.gain, triggerCooldown)
			}
			continue
		}

		s.needsUpdate.Unset(uint64(i))
		s.metrics.recomputations.Inc()

		size := solver.OptimalInput(&s.cycles[i], s.pools, s.cache, s.balance, s.cfg.Params)
		if size == st.size {
			continue
		}
		st.size = size
		changed = true
		if size < s.cfg.Params.MinimumMoney {
			continue
		}

		gain := solver.Potential(&s.cycles[i], s.pools, s.cache, size, s.cfg.Params.Slippage)
		if gain == 0 {
			s.metrics.staleEvaluations.Inc()
		}
		if gain == st.gain {
			continue
		}
		st.gain = gain
		st.cooldown = s.cfg.Cooldown
		s.track(i, size, gain)
		if s.profitable(size, gain) {
			s.request(i, size, gain, triggerRecompute)
		}
	}

	if changed {
		s.publish()
		s.display()
	}
}

func (s *Scheduler) profitable(size, gain uint64) bool {
	return gain > size+s.cfg.MinimumGain
}

// request plans the hops of cycle i and hands them to the sink. A plan that
// cannot be built abandons the request for this round only.
func (s *Scheduler) request(i int, size, gain uint64, trigger string) bool {
	hops, err := solver.Plan(&s.cycles[i], s.pools, s.cache, size, s.cfg.Params.Slippage)
	if err != nil {
		s.metrics.abandoned.Inc()
		s.logger.Warn("Abandoning execution request", "cycle", i, "route", s.routes[i], "size", size, "error", err)
		return false
	}

	req := engine.ExecutionRequest{
		ID:            uuid.NewString(),
		Cycle:         i,
		Size:          size,
		PredictedGain: gain,
		Hops:          hops,
		NeedsApproval: s.cycles[i].NeedsApproval,
		CreatedAt:     time.Now(),
	}
	s.metrics.requests.WithLabelValues(trigger).Inc()
	s.logger.Info("Issuing execution request",
		"request", req.ID,
		"cycle", i,
		"route", s.routes[i],
		"size", size,
		"gain", gain,
		"trigger", trigger,
	)
	return s.sink.Execute(req)
}

// track updates the all-time-high record.
func (s *Scheduler) track(i int, size, gain uint64) {
	profit := int64(gain) - int64(size)
	if best := s.best.Load(); best != nil && best.Profit >= profit {
		return
	}
	s.best.Store(&Record{
		Cycle:  i,
		Route:  s.routes[i],
		Size:   size,
		Gain:   gain,
		Profit: profit,
		At:     time.Now(),
	})
	s.metrics.bestProfit.Set(float64(profit))
}

func (s *Scheduler) display() {
	if s.cfg.MinimumDisplay <= 0 {
		return
	}
	for i := range s.states {
		st := &s.states[i]
		if st.gain <= uint64(float64(st.size)/s.cfg.MinimumDisplay) {
			continue
		}
		s.logger.Debug("Cycle yield",
			"cycle", i,
			"route", s.routes[i],
			"size", st.size,
			"gain", st.gain,
			"profit", int64(st.gain)-int64(st.size),
			"cooldown", st.cooldown,
		)
	}
	if best := s.best.Load(); best != nil {
		s.logger.Debug("Highest yield observed so far",
			"cycle", best.Cycle,
			"route", best.Route,
			"profit", best.Profit,
			"at", best.At.Unix(),
		)
	}
}

func (s *Scheduler) publish() {
	listing := make([]CycleStatus, len(s.cycles))
	for i := range s.cycles {
		st := s.states[i]
		listing[i] = CycleStatus{
			ID:            i,
			Route:         s.routes[i],
			Path:          s.cycles[i].Path,
			Size:          st.size,
			Gain:          st.gain,
			Profit:        int64(st.gain) - int64(st.size),
			Cooldown:      st.cooldown,
			NeedsApproval: s.cycles[i].NeedsApproval,
		}
	}
	s.listing.Store(&listing)
}

// Listing returns the state of every cycle as of the last pass. It is safe
// to call from any goroutine; the result must not be modified.
func (s *Scheduler) Listing() []CycleStatus {
	return *s.listing.Load()
}

// Best returns the most profitable evaluation seen so far, or nil. It is
// safe to call from any goroutine.
func (s *Scheduler) Best() *Record {
	return s.best.Load()
}

// Cycles returns the fixed cycle list.
func (s *Scheduler) Cycles() []engine.Cycle {
	return s.cycles
}

// EvaluateOnce sizes and prices one cycle against the current cache without
// touching any cached state.
func (s *Scheduler) EvaluateOnce(cycle int) (size, gain uint64, err error) {
	if cycle < 0 || cycle >= len(s.cycles) {
		return 0, 0, fmt.Errorf("%w: %d", ErrUnknownCycle, cycle)
	}
	size, gain = solver.Evaluate(&s.cycles[cycle], s.pools, s.cache, s.balance, s.cfg.Params)
	return size, gain, nil
}

// Force issues one execution request for cycle regardless of profitability.
// The size must still reach MinimumMoney.
func (s *Scheduler) Force(cycle int) error {
	size, gain, err := s.EvaluateOnce(cycle)
	if err != nil {
		return err
	}
	if size < s.cfg.Params.MinimumMoney {
		return fmt.Errorf("%w: cycle %d sized %d, minimum %d", ErrInsufficientBalance, cycle, size, s.cfg.Params.MinimumMoney)
	}
	if !s.request(cycle, size, gain, triggerForced) {
		return fmt.Errorf("scheduler: cycle %d was not accepted for execution", cycle)
	}
	return nil
}

// Run applies feed events and evaluates cycles until ctx ends or the feed is
// lost. Pending events are drained before every pass so a pass always sees
// the latest batch; when nothing is pending it blocks on the feed.
func (s *Scheduler) Run(ctx context.Context, feed Feed) error {
	s.logger.Info("Initiating evaluation loop", "cycles", len(s.cycles), "pools", len(s.pools))
	for {
		if err := s.drain(ctx, feed); err != nil {
			return err
		}
		s.Pass()

		select {
		case update, ok := <-feed.Updates():
			if !ok {
				return s.feedLost(ctx, closedCause(feed))
			}
			s.Apply(update)
		case err, ok := <-feed.Err():
			if !ok {
				err = errors.New("error stream closed")
			}
			return s.feedLost(ctx, err)
		case <-ctx.Done():
			s.logger.Info("Evaluation loop stopped", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

func (s *Scheduler) drain(ctx context.Context, feed Feed) error {
	for {
		select {
		case update, ok := <-feed.Updates():
			if !ok {
				return s.feedLost(ctx, closedCause(feed))
			}
			s.Apply(update)
		default:
			return nil
		}
	}
}

// closedCause explains a closed update channel. A feed that fails delivers
// its error before closing Updates, so a pending error is the real cause.
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

func (s *Scheduler) feedLost(ctx context.Context, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.logger.Error("Balance feed lost", "error", cause)
	return fmt.Errorf("%w: %v", ErrFeedLost, cause)
}
