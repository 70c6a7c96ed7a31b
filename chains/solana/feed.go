package solana

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/defistate/defistate-arb-go/chains"
	"github.com/defistate/defistate-arb-go/engine"
	poolregistryindexer "github.com/defistate/defistate-arb-go/protocols/poolregistry/indexer"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrStreamClosed is reported when the account stream ends without an error.
var ErrStreamClosed = errors.New("account stream closed")

// Feed resolves raw account balances into per-leg reserve updates.
// Its lifecycle is bound to the context passed to NewFeed.
type Feed struct {
	stream  chains.AccountStream
	index   poolregistryindexer.IndexedPoolRegistry
	logger  chains.Logger
	metrics *FeedMetrics

	updates chan engine.ReserveUpdate
	errCh   chan error

	ctx context.Context
	wg  sync.WaitGroup
}

// NewFeed starts resolving balances from stream against index.
func NewFeed(
	ctx context.Context,
	stream chains.AccountStream,
	index poolregistryindexer.IndexedPoolRegistry,
	logger chains.Logger,
	prometheusRegistry prometheus.Registerer,
	bufferSize int,
) (*Feed, error) {
	if stream == nil {
		return nil, errors.New("feed: stream cannot be nil")
	}
	if index == nil {
		return nil, errors.New("feed: index cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("feed: logger cannot be nil")
	}
	if prometheusRegistry == nil {
		return nil, errors.New("feed: registry cannot be nil")
	}
	if bufferSize < 1 {
		return nil, fmt.Errorf("feed: buffer size must be positive, got %d", bufferSize)
	}

	f := &Feed{
		stream:  stream,
		index:   index,
		logger:  logger,
		metrics: NewFeedMetrics(prometheusRegistry),
		updates: make(chan engine.ReserveUpdate, bufferSize),
		errCh:   make(chan error, 1),
		ctx:     ctx,
	}
	f.wg.Add(1)
	go f.loop()

	f.logger.Info("Feed started", "accounts", len(index.Accounts()))
	return f, nil
}

// Updates carries every resolved reserve update in arrival order. Updates
// are never dropped; a slow consumer stalls the stream instead.
func (f *Feed) Updates() <-chan engine.ReserveUpdate {
	return f.updates
}

// Err carries the fatal error that ended the feed. The error is buffered
// before Updates closes, so a consumer that sees Updates closed can still
// read the cause here.
func (f *Feed) Err() <-chan error {
	return f.errCh
}

// Wait blocks until the loop has stopped.
func (f *Feed) Wait() {
	f.wg.Wait()
}

func (f *Feed) loop() {
	defer f.wg.Done()
	defer func() {
		close(f.updates)
		close(f.errCh)
		f.logger.Info("Feed stopped")
	}()

	for {
		select {
		case <-f.ctx.Done():
			return

		case err, ok := <-f.stream.Err():
			if !ok {
				err = ErrStreamClosed
			}
			f.fail(err)
			return

		case balance, ok := <-f.stream.Balances():
			if !ok {
				f.fail(ErrStreamClosed)
				return
			}
			if !f.resolve(balance) {
				return
			}
		}
	}
}

func (f *Feed) fail(err error) {
	f.logger.Error("Fatal stream error", "err", err)
	select {
	case f.errCh <- err:
	case <-f.ctx.Done():
	}
}

// resolve fans one balance out to every leg watching its account. It
// reports false when the context ended mid-send.
func (f *Feed) resolve(balance engine.AccountBalance) bool {
	refs := f.index.LegsByAccount(balance.Account)
	if len(refs) == 0 {
		f.metrics.balances.WithLabelValues("unwatched").Inc()
		f.logger.Warn("Balance for unwatched account", "account", balance.Account)
		return true
	}
	f.metrics.balances.WithLabelValues("resolved").Inc()

	for _, ref := range refs {
		update := engine.ReserveUpdate{
			Pool:   ref.Pool,
			Leg:    ref.Leg,
			Amount: balance.Amount,
			Slot:   balance.Slot,
		}
		select {
		case f.updates <- update:
			f.metrics.updates.Inc()
		case <-f.ctx.Done():
			return false
		}
	}
	return true
}
