package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/ethereum/go-ethereum/rpc"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	// RpcNamespace is the namespace under which the relay is registered.
	RpcNamespace                    = "arb"
	ReserveStreamSubscriptionMethod = "subscribeReserveStream"

	EventSnapshot = "snapshot"
	EventUpdate   = "update"
)

// ErrSubscriptionLost is reported once an established subscription ends.
// Updates missed while disconnected would break reserve pairing, so the
// client does not resubscribe.
var ErrSubscriptionLost = errors.New("reserve subscription lost")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the client.
type Config struct {
	URL        string
	Logger     Logger
	BufferSize uint
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// SubscriptionEvent is the wrapper object received from the server.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// -----------------------------------------------------------------------------
// StreamProcessor
// -----------------------------------------------------------------------------

// StreamProcessor parses relay events into account balances.
// It is decoupled from the networking layer.
type StreamProcessor struct {
	snapshotSlot uint64
	haveSnapshot bool
	balancesCh   chan engine.AccountBalance
	logger       Logger
}

// NewStreamProcessor creates a pure logic processor without networking.
func NewStreamProcessor(logger Logger, bufferSize uint) *StreamProcessor {
	return &StreamProcessor{
		logger:     logger,
		balancesCh: make(chan engine.AccountBalance, bufferSize),
	}
}

// Balances returns a read-only channel of decoded balances.
func (sp *StreamProcessor) Balances() <-chan engine.AccountBalance {
	return sp.balancesCh
}

// ProcessMessage accepts a raw JSON event and emits the balances it carries.
// It returns ctx.Err() when ctx ends while the balance buffer is full.
func (sp *StreamProcessor) ProcessMessage(ctx context.Context, rawData json.RawMessage) error {
	processingStart := time.Now()
	var event SubscriptionEvent

	if err := json.Unmarshal(rawData, &event); err != nil {
		return fmt.Errorf("failed to unmarshal subscription event: %w", err)
	}

	switch event.Type {
	case EventSnapshot:
		return sp.handleSnapshot(ctx, event, processingStart)
	case EventUpdate:
		return sp.handleUpdate(ctx, event, processingStart)
	default:
		return fmt.Errorf("received unknown event type: %s", event.Type)
	}
}

func (sp *StreamProcessor) handleSnapshot(ctx context.Context, event SubscriptionEvent, start time.Time) error {
	var snapshot reserveSnapshot
	if err := json.Unmarshal(event.Payload, &snapshot); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot payload: %w", err)
	}
	if sp.haveSnapshot && snapshot.Slot < sp.snapshotSlot {
		sp.logger.Warn("Received stale snapshot. Discarding.",
			"last_snapshot_slot", sp.snapshotSlot,
			"snapshot_slot", snapshot.Slot,
		)
		return nil
	}

	sp.snapshotSlot = snapshot.Slot
	sp.haveSnapshot = true
	for _, b := range snapshot.Balances {
		if err := sp.emit(ctx, engine.AccountBalance{Account: b.Account, Amount: b.Amount, Slot: snapshot.Slot}); err != nil {
			return err
		}
	}

	sp.logLatency(snapshot.Slot, len(snapshot.Balances), time.Since(start), event.SentAt, EventSnapshot)
	return nil
}

func (sp *StreamProcessor) handleUpdate(ctx context.Context, event SubscriptionEvent, start time.Time) error {
	var update reserveUpdate
	if err := json.Unmarshal(event.Payload, &update); err != nil {
		return fmt.Errorf("failed to unmarshal update payload: %w", err)
	}
	if !sp.haveSnapshot {
		return fmt.Errorf("received update before snapshot; slot: %d, account: %s", update.Slot, update.Account)
	}
	if update.Slot < sp.snapshotSlot {
		sp.logger.Warn(
			"Received update older than the snapshot. Discarding.",
			"snapshot_slot", sp.snapshotSlot,
			"update_slot", update.Slot,
			"account", update.Account,
		)
		return nil // Non-fatal, just ignored
	}

	if err := sp.emit(ctx, engine.AccountBalance{Account: update.Account, Amount: update.Amount, Slot: update.Slot}); err != nil {
		return err
	}
	sp.logLatency(update.Slot, 1, time.Since(start), event.SentAt, EventUpdate)
	return nil
}

func (sp *StreamProcessor) emit(ctx context.Context, balance engine.AccountBalance) error {
	select {
	case sp.balancesCh <- balance:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (sp *StreamProcessor) logLatency(slot uint64, balances int, processingDur time.Duration, sentAt int64, eventType string) {
	args := []any{
		"slot", slot,
		"type", eventType,
		"balances", balances,
		"latency_proc_ms", processingDur.Milliseconds(),
	}
	if sentAt > 0 {
		clientStartTime := time.Now().Add(-processingDur)
		args = append(args, "latency_transport_ms", clientStartTime.Sub(time.Unix(0, sentAt)).Milliseconds())
	}
	sp.logger.Debug("Reserve event processed", args...)
}

// -----------------------------------------------------------------------------
// Client (Networking Wrapper)
// -----------------------------------------------------------------------------

// Client manages the connection and uses StreamProcessor for logic.
type Client struct {
	processor *StreamProcessor
	errCh     chan error
	logger    Logger
}

// NewClient creates a new client with networking enabled. It keeps dialing
// with backoff until the first subscription succeeds.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := &Client{
		processor: NewStreamProcessor(cfg.Logger, cfg.BufferSize),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}

	go client.run(ctx, cfg.URL)
	return client, nil
}

// Balances delegates to the processor's balance channel.
func (c *Client) Balances() <-chan engine.AccountBalance {
	return c.processor.Balances()
}

// Err returns a read-only channel for receiving fatal (unrecoverable) errors.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// run handles the networking lifecycle and feeds data to the processor.
func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			c.logger.Info("Client context canceled, shutting down.")
			return
		}

		c.logger.Info("Attempting to connect to RPC server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err == nil {
			var sub *rpc.ClientSubscription
			rawCh := make(chan json.RawMessage)
			sub, err = rpcClient.Subscribe(ctx, RpcNamespace, rawCh, ReserveStreamSubscriptionMethod)
			if err == nil {
				c.logger.Info("Successfully subscribed. Waiting for data...")
				err = c.process(ctx, sub, rawCh)
				rpcClient.Close()
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					c.logger.Info("Context canceled, shutting down.")
					return
				}
				c.logger.Error("Subscription lost", "error", err)
				select {
				case c.errCh <- fmt.Errorf("%w: %v", ErrSubscriptionLost, err):
				case <-ctx.Done():
				}
				return
			}
			rpcClient.Close()
		}

		c.logger.Error("Failed to subscribe, will retry...", "error", err, "delay", reconnectDelay)
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			c.logger.Info("Client context canceled, shutting down.")
			return
		}
		reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
	}
}

func (c *Client) process(ctx context.Context, sub *rpc.ClientSubscription, rawCh <-chan json.RawMessage) error {
	defer sub.Unsubscribe()
	for {
		select {
		case rawData := <-rawCh:
			// Delegate logic to the processor
			if err := c.processor.ProcessMessage(ctx, rawData); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error("Error processing message", "error", err)
			}
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed by server")
			}
			return err
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}
