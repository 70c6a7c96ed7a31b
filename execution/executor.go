package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultQueueSize     = 16
	defaultSubmitTimeout = 30 * time.Second
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Submitter signs and lands one transaction. The first signer pays fees.
type Submitter interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	Submit(ctx context.Context, instructions []solana.Instruction, signers []solana.PrivateKey, blockhash solana.Hash) (solana.Signature, error)
}

// Journal persists execution results.
type Journal interface {
	Record(ctx context.Context, result engine.ExecutionResult) error
}

// Config holds the dependencies of an Executor.
type Config struct {
	// Wallet owns the currency accounts and pays fees.
	Wallet       solana.PrivateKey
	TokenProgram solana.PublicKey
	// ExtraBudget is the compute unit price in micro-lamports. Zero skips the
	// compute budget instruction.
	ExtraBudget   uint64
	QueueSize     int
	SubmitTimeout time.Duration

	Adapters  []SwapAdapter
	Submitter Submitter
	// Journal is optional.
	Journal Journal

	Registry prometheus.Registerer
	Logger   Logger
}

func (c *Config) validate() error {
	if len(c.Wallet) == 0 {
		return errors.New("config: Wallet cannot be empty")
	}
	if c.TokenProgram.IsZero() {
		return errors.New("config: TokenProgram cannot be zero")
	}
	if len(c.Adapters) == 0 {
		return errors.New("config: Adapters cannot be empty")
	}
	if c.Submitter == nil {
		return errors.New("config: Submitter cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.QueueSize < 0 {
		return errors.New("config: QueueSize cannot be negative")
	}
	return nil
}

// Executor turns execution requests into signed bundles. Execute never
// blocks: requests queue for a single worker started by Run, and a full
// queue drops the request.
type Executor struct {
	cfg        Config
	pools      []engine.Pool
	currencies []engine.Currency
	queue      chan engine.ExecutionRequest
	metrics    *Metrics
	logger     Logger

	newSigner func() (solana.PrivateKey, error)
}

// New creates an Executor over the static pool and currency lists.
func New(cfg *Config, pools []engine.Pool, currencies []engine.Currency) (*Executor, error) {
	if cfg == nil {
		return nil, errors.New("executor config cannot be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid executor config: %w", err)
	}
	c := *cfg
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.SubmitTimeout == 0 {
		c.SubmitTimeout = defaultSubmitTimeout
	}
	return &Executor{
		cfg:        c,
		pools:      pools,
		currencies: currencies,
		queue:      make(chan engine.ExecutionRequest, c.QueueSize),
		metrics:    NewMetrics(c.Registry),
		logger:     c.Logger,
		newSigner:  solana.NewRandomPrivateKey,
	}, nil
}

// Execute enqueues req. It reports false when the queue is full.
func (e *Executor) Execute(req engine.ExecutionRequest) bool {
	select {
	case e.queue <- req:
		e.metrics.queueDepth.Set(float64(len(e.queue)))
		return true
	default:
		e.metrics.results.WithLabelValues(string(engine.StatusDropped)).Inc()
		e.logger.Warn("execution queue full, dropping request", "request", req.ID, "cycle", req.Cycle)
		return false
	}
}

// Run processes queued requests until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-e.queue:
			e.metrics.queueDepth.Set(float64(len(e.queue)))
			e.Process(ctx, req)
		}
	}
}

// Process builds, submits and journals one request synchronously.
func (e *Executor) Process(ctx context.Context, req engine.ExecutionRequest) engine.ExecutionResult {
	timer := prometheus.NewTimer(e.metrics.submitDuration.WithLabelValues())
	defer timer.ObserveDuration()

	result := engine.ExecutionResult{
		RequestID:     req.ID,
		Cycle:         req.Cycle,
		Size:          req.Size,
		PredictedGain: req.PredictedGain,
		Status:        engine.StatusSubmitted,
	}

	sig, err := e.submit(ctx, req)
	result.At = time.Now()
	if err != nil {
		result.Status = engine.StatusFailed
		result.Error = err.Error()
		e.logger.Error("execution failed", "request", req.ID, "cycle", req.Cycle, "error", err)
	} else {
		result.Signature = sig.String()
		e.logger.Info("bundle submitted", "request", req.ID, "cycle", req.Cycle, "signature", result.Signature)
	}
	e.metrics.results.WithLabelValues(string(result.Status)).Inc()

	if e.cfg.Journal != nil {
		if err := e.cfg.Journal.Record(ctx, result); err != nil {
			e.logger.Warn("failed to journal execution", "request", req.ID, "error", err)
		}
	}
	return result
}

func (e *Executor) submit(ctx context.Context, req engine.ExecutionRequest) (solana.Signature, error) {
	instructions, signers, err := e.Build(req)
	if err != nil {
		return solana.Signature{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.SubmitTimeout)
	defer cancel()

	blockhash, err := e.cfg.Submitter.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("latest blockhash: %w", err)
	}
	sig, err := e.cfg.Submitter.Submit(ctx, instructions, signers, blockhash)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("submit: %w", err)
	}
	return sig, nil
}

// Build encodes the request as one atomic bundle and returns its signers,
// wallet first. Pools that need an approval get an Approve of the hop input
// to a fresh one-shot delegate, which then signs the swap and the bundle.
func (e *Executor) Build(req engine.ExecutionRequest) ([]solana.Instruction, []solana.PrivateKey, error) {
	if len(req.Hops) == 0 {
		return nil, nil, errors.New("execution request has no hops")
	}
	payer := e.cfg.Wallet.PublicKey()
	signers := []solana.PrivateKey{e.cfg.Wallet}

	var instructions []solana.Instruction
	if e.cfg.ExtraBudget > 0 {
		ix, err := computebudget.NewSetComputeUnitPriceInstruction(e.cfg.ExtraBudget).ValidateAndBuild()
		if err != nil {
			return nil, nil, fmt.Errorf("compute budget: %w", err)
		}
		instructions = append(instructions, ix)
	}

	var delegate solana.PrivateKey
	for i, hop := range req.Hops {
		if hop.Pool < 0 || hop.Pool >= len(e.pools) {
			return nil, nil, fmt.Errorf("hop %d: unknown pool %d", i, hop.Pool)
		}
		pool := &e.pools[hop.Pool]
		if err := CheckDirection(hop.Direction); err != nil {
			return nil, nil, fmt.Errorf("hop %d: %w", i, err)
		}
		source, err := e.walletAccount(pool.Currency(hop.Direction))
		if err != nil {
			return nil, nil, fmt.Errorf("hop %d: %w", i, err)
		}
		destination, err := e.walletAccount(pool.Currency(1 - hop.Direction))
		if err != nil {
			return nil, nil, fmt.Errorf("hop %d: %w", i, err)
		}

		authority := payer
		if pool.NeedsApprove {
			if delegate == nil {
				if delegate, err = e.newSigner(); err != nil {
					return nil, nil, fmt.Errorf("one-shot signer: %w", err)
				}
				signers = append(signers, delegate)
			}
			approve, err := token.NewApproveInstruction(hop.AmountIn, source, delegate.PublicKey(), payer, nil).ValidateAndBuild()
			if err != nil {
				return nil, nil, fmt.Errorf("hop %d approve: %w", i, err)
			}
			instructions = append(instructions, approve)
			authority = delegate.PublicKey()
		}

		adapter, err := e.adapterFor(pool.Venue)
		if err != nil {
			return nil, nil, fmt.Errorf("hop %d: %w", i, err)
		}
		swap, err := adapter.BuildSwap(SwapParams{
			Pool:             pool,
			Direction:        hop.Direction,
			AmountIn:         hop.AmountIn,
			MinimumAmountOut: hop.MinimumAmountOut,
			Payer:            payer,
			Authority:        authority,
			UserSource:       source,
			UserDestination:  destination,
			TokenProgram:     e.cfg.TokenProgram,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("hop %d on pool %s: %w", i, pool.Name, err)
		}
		instructions = append(instructions, swap...)
	}
	return instructions, signers, nil
}

func (e *Executor) walletAccount(currency int) (solana.PublicKey, error) {
	if currency < 0 || currency >= len(e.currencies) {
		return solana.PublicKey{}, fmt.Errorf("unknown currency %d", currency)
	}
	account := e.currencies[currency].Account
	if account.IsZero() {
		return solana.PublicKey{}, fmt.Errorf("%w: wallet account for %s", ErrMissingAccount, e.currencies[currency].Name)
	}
	return account, nil
}

func (e *Executor) adapterFor(venue engine.Venue) (SwapAdapter, error) {
	for _, a := range e.cfg.Adapters {
		if a.Supports(venue) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedVenue, venue)
}
