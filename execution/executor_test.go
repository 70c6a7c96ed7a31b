package execution

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

// stubAdapter emits one marker instruction per hop and records its params.
type stubAdapter struct {
	venue  engine.Venue
	params []SwapParams
	err    error
}

func (a *stubAdapter) Supports(venue engine.Venue) bool { return venue == a.venue }

func (a *stubAdapter) BuildSwap(p SwapParams) ([]solana.Instruction, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.params = append(a.params, p)
	data, err := EncodeSwap(1, p.AmountIn, p.MinimumAmountOut)
	if err != nil {
		return nil, err
	}
	return []solana.Instruction{solana.NewInstruction(p.Pool.TokenSwap.Program, solana.AccountMetaSlice{
		solana.NewAccountMeta(p.Authority, false, true),
	}, data)}, nil
}

type stubSubmitter struct {
	mu        sync.Mutex
	submitted [][]solana.Instruction
	signers   [][]solana.PrivateKey
	err       error
}

func (s *stubSubmitter) LatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{1}, nil
}

func (s *stubSubmitter) Submit(_ context.Context, ixs []solana.Instruction, signers []solana.PrivateKey, _ solana.Hash) (solana.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return solana.Signature{}, s.err
	}
	s.submitted = append(s.submitted, ixs)
	s.signers = append(s.signers, signers)
	return solana.Signature{7}, nil
}

func (s *stubSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submitted)
}

type memoryJournal struct {
	mu      sync.Mutex
	results []engine.ExecutionResult
}

func (j *memoryJournal) Record(_ context.Context, r engine.ExecutionResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results = append(j.results, r)
	return nil
}

func (j *memoryJournal) all() []engine.ExecutionResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]engine.ExecutionResult(nil), j.results...)
}

type fixture struct {
	wallet     solana.PrivateKey
	delegate   solana.PrivateKey
	pools      []engine.Pool
	currencies []engine.Currency
	adapter    *stubAdapter
	submitter  *stubSubmitter
	journal    *memoryJournal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	wallet, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	delegate, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	swapPool := func(id, c0, c1 int, approve bool) engine.Pool {
		return engine.Pool{
			ID:           id,
			Name:         "pool",
			Venue:        engine.VenueOrca,
			Tokens:       [2]engine.Token{{Currency: c0, Account: key()}, {Currency: c1, Account: key()}},
			NeedsApprove: approve,
			TokenSwap:    &engine.TokenSwapAccounts{Program: key()},
		}
	}
	return &fixture{
		wallet:   wallet,
		delegate: delegate,
		pools: []engine.Pool{
			swapPool(0, 0, 1, false),
			swapPool(1, 1, 0, true),
		},
		currencies: []engine.Currency{
			{ID: 0, Name: "SOL", Account: key()},
			{ID: 1, Name: "USDC", Account: key()},
		},
		adapter:   &stubAdapter{venue: engine.VenueOrca},
		submitter: &stubSubmitter{},
		journal:   &memoryJournal{},
	}
}

func (f *fixture) config() *Config {
	return &Config{
		Wallet:       f.wallet,
		TokenProgram: solana.TokenProgramID,
		Adapters:     []SwapAdapter{f.adapter},
		Submitter:    f.submitter,
		Journal:      f.journal,
		Registry:     prometheus.NewRegistry(),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (f *fixture) executor(t *testing.T, cfg *Config) *Executor {
	t.Helper()
	e, err := New(cfg, f.pools, f.currencies)
	require.NoError(t, err)
	e.newSigner = func() (solana.PrivateKey, error) { return f.delegate, nil }
	return e
}

func request(hops ...engine.Hop) engine.ExecutionRequest {
	return engine.ExecutionRequest{ID: "req-1", Cycle: 3, Size: 1000, PredictedGain: 1010, Hops: hops}
}

func TestNew_ConfigValidation(t *testing.T) {
	f := newFixture(t)
	testCases := []struct {
		name     string
		mutate   func(c *Config)
		errMatch string
	}{
		{name: "no wallet", mutate: func(c *Config) { c.Wallet = nil }, errMatch: "Wallet"},
		{name: "no token program", mutate: func(c *Config) { c.TokenProgram = solana.PublicKey{} }, errMatch: "TokenProgram"},
		{name: "no adapters", mutate: func(c *Config) { c.Adapters = nil }, errMatch: "Adapters"},
		{name: "no submitter", mutate: func(c *Config) { c.Submitter = nil }, errMatch: "Submitter"},
		{name: "no registry", mutate: func(c *Config) { c.Registry = nil }, errMatch: "Registry"},
		{name: "no logger", mutate: func(c *Config) { c.Logger = nil }, errMatch: "Logger"},
		{name: "negative queue", mutate: func(c *Config) { c.QueueSize = -1 }, errMatch: "QueueSize"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := f.config()
			tc.mutate(cfg)
			_, err := New(cfg, f.pools, f.currencies)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMatch)
		})
	}

	_, err := New(nil, f.pools, f.currencies)
	assert.Error(t, err)
}

func TestBuild_PlainBundle(t *testing.T) {
	f := newFixture(t)
	e := f.executor(t, f.config())

	ixs, signers, err := e.Build(request(
		engine.Hop{Pool: 0, Direction: 0, AmountIn: 1000},
	))
	require.NoError(t, err)
	require.Len(t, ixs, 1)
	assert.Equal(t, []solana.PrivateKey{f.wallet}, signers)

	require.Len(t, f.adapter.params, 1)
	p := f.adapter.params[0]
	assert.Equal(t, f.wallet.PublicKey(), p.Payer)
	assert.Equal(t, f.wallet.PublicKey(), p.Authority)
	assert.Equal(t, f.currencies[0].Account, p.UserSource)
	assert.Equal(t, f.currencies[1].Account, p.UserDestination)
	assert.Equal(t, solana.TokenProgramID, p.TokenProgram)
}

func TestBuild_ApprovalAndComputeBudget(t *testing.T) {
	f := newFixture(t)
	cfg := f.config()
	cfg.ExtraBudget = 5_000
	e := f.executor(t, cfg)

	ixs, signers, err := e.Build(request(
		engine.Hop{Pool: 0, Direction: 0, AmountIn: 1000},
		engine.Hop{Pool: 1, Direction: 0, AmountIn: 2500, MinimumAmountOut: 1000},
	))
	require.NoError(t, err)
	require.Len(t, ixs, 4, "budget, swap, approve, swap")
	assert.Equal(t, []solana.PrivateKey{f.wallet, f.delegate}, signers)

	budget := ixs[0]
	assert.Equal(t, computebudget.ProgramID, budget.ProgramID())
	data, err := budget.Data()
	require.NoError(t, err)
	require.Len(t, data, 9)
	assert.Equal(t, uint64(5_000), binary.LittleEndian.Uint64(data[1:]))

	approve := ixs[2]
	assert.Equal(t, solana.TokenProgramID, approve.ProgramID())
	data, err = approve.Data()
	require.NoError(t, err)
	require.Len(t, data, 9)
	assert.Equal(t, byte(4), data[0])
	assert.Equal(t, uint64(2500), binary.LittleEndian.Uint64(data[1:]))
	accounts := approve.Accounts()
	require.Len(t, accounts, 3)
	assert.Equal(t, f.currencies[1].Account, accounts[0].PublicKey)
	assert.Equal(t, f.delegate.PublicKey(), accounts[1].PublicKey)
	assert.Equal(t, f.wallet.PublicKey(), accounts[2].PublicKey)
	assert.True(t, accounts[2].IsSigner)

	require.Len(t, f.adapter.params, 2)
	assert.Equal(t, f.wallet.PublicKey(), f.adapter.params[0].Authority)
	assert.Equal(t, f.delegate.PublicKey(), f.adapter.params[1].Authority)
	assert.Equal(t, uint64(1000), f.adapter.params[1].MinimumAmountOut)
}

func TestBuild_Errors(t *testing.T) {
	testCases := []struct {
		name        string
		mutate      func(f *fixture)
		hops        []engine.Hop
		expectedErr error
		errMatch    string
	}{
		{
			name:     "no hops",
			errMatch: "no hops",
		},
		{
			name:     "unknown pool",
			hops:     []engine.Hop{{Pool: 9}},
			errMatch: "unknown pool",
		},
		{
			name:        "bad direction",
			hops:        []engine.Hop{{Pool: 0, Direction: 3}},
			expectedErr: ErrUnsupportedDirection,
		},
		{
			name:        "no adapter for venue",
			mutate:      func(f *fixture) { f.pools[0].Venue = engine.VenueRaydium },
			hops:        []engine.Hop{{Pool: 0}},
			expectedErr: ErrUnsupportedVenue,
		},
		{
			name:        "missing wallet account",
			mutate:      func(f *fixture) { f.currencies[1].Account = solana.PublicKey{} },
			hops:        []engine.Hop{{Pool: 0}},
			expectedErr: ErrMissingAccount,
		},
		{
			name:        "adapter failure",
			mutate:      func(f *fixture) { f.adapter.err = ErrMissingAccount },
			hops:        []engine.Hop{{Pool: 0}},
			expectedErr: ErrMissingAccount,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.mutate != nil {
				tc.mutate(f)
			}
			e := f.executor(t, f.config())
			_, _, err := e.Build(request(tc.hops...))
			require.Error(t, err)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
			}
			if tc.errMatch != "" {
				assert.Contains(t, err.Error(), tc.errMatch)
			}
		})
	}
}

func TestProcess_JournalsOutcome(t *testing.T) {
	t.Run("submitted", func(t *testing.T) {
		f := newFixture(t)
		e := f.executor(t, f.config())

		result := e.Process(context.Background(), request(engine.Hop{Pool: 0, AmountIn: 1000}))
		assert.Equal(t, engine.StatusSubmitted, result.Status)
		assert.Equal(t, solana.Signature{7}.String(), result.Signature)
		assert.Empty(t, result.Error)
		assert.Equal(t, 1, f.submitter.count())

		journaled := f.journal.all()
		require.Len(t, journaled, 1)
		assert.Equal(t, "req-1", journaled[0].RequestID)
		assert.Equal(t, 3, journaled[0].Cycle)
	})

	t.Run("submit failure", func(t *testing.T) {
		f := newFixture(t)
		f.submitter.err = errors.New("node unhealthy")
		e := f.executor(t, f.config())

		result := e.Process(context.Background(), request(engine.Hop{Pool: 0, AmountIn: 1000}))
		assert.Equal(t, engine.StatusFailed, result.Status)
		assert.Contains(t, result.Error, "node unhealthy")
		require.Len(t, f.journal.all(), 1)
	})

	t.Run("build failure never submits", func(t *testing.T) {
		f := newFixture(t)
		e := f.executor(t, f.config())

		result := e.Process(context.Background(), request())
		assert.Equal(t, engine.StatusFailed, result.Status)
		assert.Equal(t, 0, f.submitter.count())
	})
}

func TestExecute_DropsWhenFull(t *testing.T) {
	f := newFixture(t)
	cfg := f.config()
	cfg.QueueSize = 1
	e := f.executor(t, cfg)

	assert.True(t, e.Execute(request(engine.Hop{Pool: 0, AmountIn: 1})))
	assert.False(t, e.Execute(request(engine.Hop{Pool: 0, AmountIn: 2})))
}

func TestRun_DrainsQueue(t *testing.T) {
	f := newFixture(t)
	e := f.executor(t, f.config())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		require.True(t, e.Execute(request(engine.Hop{Pool: 0, AmountIn: uint64(i + 1)})))
	}
	require.Eventually(t, func() bool { return f.submitter.count() == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
