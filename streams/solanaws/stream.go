// Package solanaws streams SPL token balances for watched accounts over a
// Solana websocket endpoint, one accountSubscribe per account.
package solanaws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/defistate/defistate-arb-go/engine"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
)

// ErrEmptyAccountData is returned for a notification without account data.
var ErrEmptyAccountData = errors.New("empty account data")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the stream.
type Config struct {
	URL        string
	Accounts   []solana.PublicKey
	Commitment rpc.CommitmentType
	BufferSize uint
	Logger     Logger
}

func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if len(c.Accounts) == 0 {
		return errors.New("config: Accounts cannot be empty")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Stream is one websocket connection with a subscription per account. Any
// subscription failure is fatal for the whole stream.
type Stream struct {
	conn     *ws.Client
	balances chan engine.AccountBalance
	errCh    chan error
	logger   Logger

	failOnce sync.Once
}

// Dial connects, subscribes to every account and starts one reader per
// subscription. The stream lives until ctx is cancelled or a fatal error.
func Dial(ctx context.Context, cfg Config) (*Stream, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}

	conn, err := ws.Connect(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.URL, err)
	}

	s := &Stream{
		conn:     conn,
		balances: make(chan engine.AccountBalance, cfg.BufferSize),
		errCh:    make(chan error, 1),
		logger:   cfg.Logger,
	}

	subs := make([]*ws.AccountSubscription, 0, len(cfg.Accounts))
	for _, account := range cfg.Accounts {
		sub, err := conn.AccountSubscribeWithOpts(account, cfg.Commitment, solana.EncodingBase64)
		if err != nil {
			for _, prev := range subs {
				prev.Unsubscribe()
			}
			conn.Close()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", account, err)
		}
		subs = append(subs, sub)
	}

	for i, sub := range subs {
		go s.watch(ctx, cfg.Accounts[i], sub)
	}
	go func() {
		<-ctx.Done()
		for _, sub := range subs {
			sub.Unsubscribe()
		}
		conn.Close()
	}()

	s.logger.Info("Subscribed to accounts", "url", cfg.URL, "accounts", len(subs))
	return s, nil
}

// Balances carries every decoded balance.
func (s *Stream) Balances() <-chan engine.AccountBalance {
	return s.balances
}

// Err carries the first fatal error.
func (s *Stream) Err() <-chan error {
	return s.errCh
}

func (s *Stream) watch(ctx context.Context, account solana.PublicKey, sub *ws.AccountSubscription) {
	for {
		res, err := sub.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.fail(fmt.Errorf("subscription to %s: %w", account, err))
			return
		}
		if res == nil || res.Value.Data == nil {
			s.logger.Warn("Notification without account data", "account", account)
			continue
		}

		amount, err := DecodeTokenAmount(res.Value.Data.GetBinary())
		if err != nil {
			s.logger.Warn("Failed to decode token account", "account", account, "err", err)
			continue
		}

		select {
		case s.balances <- engine.AccountBalance{Account: account, Amount: amount, Slot: res.Context.Slot}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Stream) fail(err error) {
	s.failOnce.Do(func() {
		s.logger.Error("Account stream failed", "err", err)
		s.errCh <- err
	})
}

// DecodeTokenAmount extracts the amount from an SPL token account.
func DecodeTokenAmount(data []byte) (uint64, error) {
	if len(data) == 0 {
		return 0, ErrEmptyAccountData
	}
	var acc token.Account
	if err := bin.NewBinDecoder(data).Decode(&acc); err != nil {
		return 0, fmt.Errorf("decode token account: %w", err)
	}
	return acc.Amount, nil
}
