package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/defistate/defistate-arb-go/chains"
	solanachain "github.com/defistate/defistate-arb-go/chains/solana"
	"github.com/defistate/defistate-arb-go/cmd/arb/config"
	"github.com/defistate/defistate-arb-go/engine"
	"github.com/defistate/defistate-arb-go/execution"
	"github.com/defistate/defistate-arb-go/graph"
	"github.com/defistate/defistate-arb-go/inspect"
	"github.com/defistate/defistate-arb-go/journal"
	"github.com/defistate/defistate-arb-go/price"
	"github.com/defistate/defistate-arb-go/protocols/poolregistry"
	poolregistryindexer "github.com/defistate/defistate-arb-go/protocols/poolregistry/indexer"
	"github.com/defistate/defistate-arb-go/protocols/raydium"
	"github.com/defistate/defistate-arb-go/protocols/tokenregistry"
	tokenregistryindexer "github.com/defistate/defistate-arb-go/protocols/tokenregistry/indexer"
	"github.com/defistate/defistate-arb-go/protocols/tokenswap"
	"github.com/defistate/defistate-arb-go/scheduler"
	"github.com/defistate/defistate-arb-go/stable"
	relayclient "github.com/defistate/defistate-arb-go/streams/jsonrpc/client"
	"github.com/defistate/defistate-arb-go/streams/solanaws"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// app holds everything the commands share: configuration, registries, the
// wallet and the cluster client.
type app struct {
	cfg      *config.ArbConfig
	logger   *slog.Logger
	registry prometheus.Registerer
	gatherer prometheus.Gatherer

	currencies []engine.Currency
	tokens     *tokenregistryindexer.IndexableTokenSystem
	pools      []engine.Pool
	index      *poolregistryindexer.IndexablePoolRegistry
	programs   poolregistry.Programs

	wallet solana.PrivateKey
	chain  *solanachain.Client
}

func newApp(cfg *config.ArbConfig, logger *slog.Logger, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*app, error) {
	programs, err := cfg.ProgramIDs()
	if err != nil {
		return nil, err
	}
	currencies, err := tokenregistry.Load(cfg.CurrenciesPath)
	if err != nil {
		return nil, fmt.Errorf("currencies: %w", err)
	}
	if cfg.Strategy.StartCurrency >= len(currencies) {
		return nil, fmt.Errorf("start currency %d outside the %d configured currencies", cfg.Strategy.StartCurrency, len(currencies))
	}
	pools, err := poolregistry.Load(cfg.PoolsPath, programs, currencies)
	if err != nil {
		return nil, fmt.Errorf("pools: %w", err)
	}
	wallet, err := solanachain.LoadWallet(cfg.WalletPath)
	if err != nil {
		return nil, err
	}
	chain, err := solanachain.Dial(
		cfg.ClusterURL,
		logger.With("component", "solana-client"),
		reg,
		solanachain.WithSendEndpoint(cfg.ClusterURLSend),
		solanachain.WithSimulation(cfg.Execution.Simulate),
		solanachain.WithCommitment(rpc.CommitmentType(cfg.Commitment)),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("Configuration loaded",
		"currencies", len(currencies),
		"pools", len(pools),
		"wallet", wallet.PublicKey(),
		"simulate", cfg.Execution.Simulate)

	return &app{
		cfg:        cfg,
		logger:     logger,
		registry:   reg,
		gatherer:   gatherer,
		currencies: currencies,
		tokens:     tokenregistryindexer.NewIndexableTokenSystem(currencies),
		pools:      pools,
		index:      poolregistryindexer.NewIndexablePoolRegistry(pools),
		programs:   programs,
		wallet:     wallet,
		chain:      chain,
	}, nil
}

func (a *app) baseCurrency() engine.Currency {
	c, _ := a.tokens.GetByID(a.cfg.Strategy.StartCurrency)
	return c
}

func (a *app) cycles() []engine.Cycle {
	cycles := graph.ConstructCycles(a.cfg.Strategy.StartCurrency, a.pools, a.cfg.Strategy.MaxCycleLength)
	a.logger.Info("Cycles constructed", "count", len(cycles), "start", a.baseCurrency().Name)
	return cycles
}

func (a *app) balance(ctx context.Context) (uint64, error) {
	base := a.baseCurrency()
	amount, _, err := a.chain.TokenBalance(ctx, base.Account)
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", base.Name, err)
	}
	return amount, nil
}

func (a *app) scheduler(ctx context.Context, sink scheduler.Sink) (*scheduler.Scheduler, error) {
	cache, err := price.NewCache(ctx, a.chain, a.pools)
	if err != nil {
		return nil, fmt.Errorf("initial prices: %w", err)
	}
	balance, err := a.balance(ctx)
	if err != nil {
		return nil, err
	}
	return scheduler.New(&scheduler.Config{
		Params:         a.cfg.SolverParams(),
		MinimumGain:    a.cfg.Strategy.MinimumGain,
		Cooldown:       a.cfg.Strategy.Cooldown,
		MinimumDisplay: a.cfg.Strategy.MinimumDisplay,
		Registry:       a.registry,
		Logger:         a.logger.With("component", "scheduler"),
	}, a.pools, a.currencies, a.cycles(), cache, balance, sink)
}

func (a *app) executor(store journal.Store) (*execution.Executor, error) {
	cfg := &execution.Config{
		Wallet:        a.wallet,
		TokenProgram:  a.programs.Token,
		ExtraBudget:   a.cfg.Execution.ExtraBudget,
		QueueSize:     a.cfg.Execution.QueueSize,
		SubmitTimeout: a.cfg.Execution.SubmitTimeout,
		Adapters:      []execution.SwapAdapter{tokenswap.Adapter{}, raydium.Adapter{}},
		Submitter:     a.chain,
		Registry:      a.registry,
		Logger:        a.logger.With("component", "executor"),
	}
	if store != nil {
		cfg.Journal = store
	}
	return execution.New(cfg, a.pools, a.currencies)
}

func (a *app) journal(ctx context.Context) (journal.Store, func(), error) {
	store, err := journal.Open(ctx, a.cfg.JournalConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("journal: %w", err)
	}
	if store == nil {
		return nil, func() {}, nil
	}
	return store, func() {
		if err := store.Close(); err != nil {
			a.logger.Warn("Failed to close journal", "error", err)
		}
	}, nil
}

// feed subscribes to every watched account through the configured source.
func (a *app) feed(ctx context.Context) (*solanachain.Feed, error) {
	var (
		stream chains.AccountStream
		err    error
	)
	switch a.cfg.Feed.Source {
	case config.FeedSourceRelay:
		stream, err = relayclient.NewClient(ctx, relayclient.Config{
			URL:        a.cfg.Feed.RelayURL,
			Logger:     a.logger.With("component", "jsonrpc-client"),
			BufferSize: a.cfg.Feed.BufferSize,
		})
	default:
		stream, err = solanaws.Dial(ctx, solanaws.Config{
			URL:        a.cfg.WSURL,
			Accounts:   a.index.Accounts(),
			Commitment: rpc.CommitmentType(a.cfg.Commitment),
			BufferSize: a.cfg.Feed.BufferSize,
			Logger:     a.logger.With("component", "solana-ws"),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", a.cfg.Feed.Source, err)
	}
	return solanachain.NewFeed(ctx, stream, a.index, a.logger.With("component", "feed"), a.registry, int(a.cfg.Feed.BufferSize))
}

// discardSink refuses every request; list never executes.
type discardSink struct{}

func (discardSink) Execute(engine.ExecutionRequest) bool { return false }

// syncSink executes a request immediately and keeps its result.
type syncSink struct {
	ctx    context.Context
	exec   *execution.Executor
	result *engine.ExecutionResult
}

func (s *syncSink) Execute(req engine.ExecutionRequest) bool {
	result := s.exec.Process(s.ctx, req)
	s.result = &result
	return true
}

func (a *app) list(ctx context.Context, poolName string) error {
	if poolName != "" {
		return a.listPool(ctx, poolName)
	}

	sched, err := a.scheduler(ctx, discardSink{})
	if err != nil {
		return err
	}
	decimals := -int32(a.baseCurrency().Decimals)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROUTE\tSIZE\tGAIN\tYIELD")
	for i, c := range sched.Listing() {
		size, gain, err := sched.EvaluateOnce(i)
		if err != nil {
			return err
		}
		yield := decimal.Zero
		if size > 0 {
			yield = decimal.NewFromUint64(gain).Div(decimal.NewFromUint64(size))
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i, c.Route,
			decimal.NewFromUint64(size).Shift(decimals).String(),
			decimal.NewFromUint64(gain).Shift(decimals).String(),
			yield.StringFixed(6))
	}
	return w.Flush()
}

func (a *app) listPool(ctx context.Context, name string) error {
	pool, ok := a.index.GetByName(name)
	if !ok {
		return fmt.Errorf("unknown pool %q", name)
	}
	pp, err := price.Init(ctx, a.chain, &pool)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "POOL\t%s (%s)\n", pool.Name, pool.Venue)
	for leg := 0; leg < 2; leg++ {
		currency, _ := a.tokens.GetByID(pool.Currency(leg))
		reserve := pp.Reserve(leg)
		fmt.Fprintf(w, "%s\t%s\t%s\n", currency.Name, pool.Tokens[leg].Account,
			decimal.NewFromUint64(reserve.Amount).Shift(-int32(reserve.Decimals)).String())
	}
	return w.Flush()
}

func (a *app) run(ctx context.Context) error {
	store, closeJournal, err := a.journal(ctx)
	if err != nil {
		return err
	}
	defer closeJournal()

	exec, err := a.executor(store)
	if err != nil {
		return err
	}
	go exec.Run(ctx)

	sched, err := a.scheduler(ctx, exec)
	if err != nil {
		return err
	}

	if err := a.serveInspect(ctx, sched, store); err != nil {
		return err
	}

	feed, err := a.feed(ctx)
	if err != nil {
		return err
	}
	return sched.Run(ctx, feed)
}

func (a *app) serveInspect(ctx context.Context, sched *scheduler.Scheduler, store journal.Store) error {
	icfg := &inspect.Config{
		Addr:         a.cfg.Inspect.Addr,
		Source:       sched,
		BaseDecimals: a.baseCurrency().Decimals,
		Gatherer:     a.gatherer,
		Logger:       a.logger.With("component", "inspect"),
	}
	if store != nil {
		icfg.Executions = store
	}
	server, err := inspect.New(icfg)
	if err != nil {
		return err
	}
	go func() {
		if err := server.Serve(ctx); err != nil {
			a.logger.Error("Inspect server failed", "error", err)
		}
	}()

	if a.cfg.Inspect.RedisMirrorInterval <= 0 {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Journal.RedisAddr,
		Password: a.cfg.Journal.RedisPassword,
		DB:       a.cfg.Journal.RedisDB,
	})
	mirror, err := inspect.NewMirror(rdb, sched, a.cfg.Inspect.RedisMirrorPrefix, a.cfg.Inspect.RedisMirrorInterval, a.logger.With("component", "redis-mirror"))
	if err != nil {
		_ = rdb.Close()
		return err
	}
	go func() {
		defer rdb.Close()
		mirror.Run(ctx)
	}()
	return nil
}

func (a *app) execute(ctx context.Context, cycle int) error {
	store, closeJournal, err := a.journal(ctx)
	if err != nil {
		return err
	}
	defer closeJournal()

	exec, err := a.executor(store)
	if err != nil {
		return err
	}
	sink := &syncSink{ctx: ctx, exec: exec}
	sched, err := a.scheduler(ctx, sink)
	if err != nil {
		return err
	}
	if err := sched.Force(cycle); err != nil {
		return err
	}
	if sink.result == nil {
		return errors.New("no execution result")
	}
	a.logger.Info("Forced execution finished",
		"cycle", cycle,
		"status", sink.result.Status,
		"signature", sink.result.Signature,
		"error", sink.result.Error)
	if sink.result.Status != engine.StatusSubmitted {
		return fmt.Errorf("cycle %d: %s", cycle, sink.result.Error)
	}
	return nil
}

func (a *app) stable(ctx context.Context) error {
	store, closeJournal, err := a.journal(ctx)
	if err != nil {
		return err
	}
	defer closeJournal()

	exec, err := a.executor(store)
	if err != nil {
		return err
	}
	cache, err := price.NewCache(ctx, a.chain, a.pools)
	if err != nil {
		return fmt.Errorf("initial prices: %w", err)
	}
	printer, err := stable.New(&stable.Config{
		Slippage:         a.cfg.Strategy.Slippage,
		SafetyPercentage: a.cfg.Strategy.SafetyPercentage,
		MinimumGainP:     a.cfg.Strategy.MinimumGainP,
		Registry:         a.registry,
		Logger:           a.logger.With("component", "stable"),
	}, a.pools, a.currencies, cache, a.chain, exec)
	if err != nil {
		return err
	}
	feed, err := a.feed(ctx)
	if err != nil {
		return err
	}
	return printer.Run(ctx, feed)
}
