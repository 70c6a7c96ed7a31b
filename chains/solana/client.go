// Package solana talks to a Solana cluster: token balances, blockhashes and
// transaction submission over RPC, plus the feed that turns raw account
// balances into reserve updates.
package solana

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/defistate/defistate-arb-go/chains"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrSimulationFailed is returned when a simulated bundle reports an error.
var ErrSimulationFailed = errors.New("simulation failed")

// Client wraps the read and send endpoints of a cluster.
type Client struct {
	rpc        *rpc.Client
	send       *rpc.Client
	sendURL    string
	commitment rpc.CommitmentType
	simulate   bool

	logger  chains.Logger
	metrics *RPCMetrics
}

// Option configures the Client.
// The interface method is unexported to prevent external modification after Dial.
type Option interface {
	apply(*Client)
}

type funcOption func(*Client)

func (f funcOption) apply(c *Client) {
	f(c)
}

func newOption(f func(*Client)) Option {
	return funcOption(f)
}

// Dial creates a client for the cluster at url. No request is made until the
// first call.
func Dial(
	url string,
	logger chains.Logger,
	prometheusRegistry prometheus.Registerer,
	opts ...Option,
) (*Client, error) {
	if url == "" {
		return nil, errors.New("client: url is required")
	}
	if logger == nil {
		return nil, errors.New("client: logger is required")
	}
	if prometheusRegistry == nil {
		return nil, errors.New("client: registry is required")
	}

	c := &Client{
		rpc:        rpc.New(url),
		commitment: rpc.CommitmentConfirmed,
		logger:     logger,
		metrics:    NewRPCMetrics(prometheusRegistry),
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	if c.sendURL != "" {
		c.send = rpc.New(c.sendURL)
	} else {
		c.send = c.rpc
	}

	c.logger.Info("Solana client ready", "url", url, "simulate", c.simulate, "commitment", c.commitment)
	return c, nil
}

// TokenBalance returns the raw amount and decimals of an SPL token account.
func (c *Client) TokenBalance(ctx context.Context, account solanago.PublicKey) (uint64, uint8, error) {
	done := c.metrics.track("getTokenAccountBalance")
	res, err := c.rpc.GetTokenAccountBalance(ctx, account, c.commitment)
	done(err)
	if err != nil {
		return 0, 0, fmt.Errorf("get token account balance %s: %w", account, err)
	}
	if res == nil || res.Value == nil {
		return 0, 0, fmt.Errorf("get token account balance %s: empty result", account)
	}
	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse balance of %s: %w", account, err)
	}
	return amount, res.Value.Decimals, nil
}

// LatestBlockhash returns the most recent blockhash at the configured
// commitment.
func (c *Client) LatestBlockhash(ctx context.Context) (solanago.Hash, error) {
	done := c.metrics.track("getLatestBlockhash")
	res, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	done(err)
	if err != nil {
		return solanago.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	if res == nil || res.Value == nil {
		return solanago.Hash{}, errors.New("get latest blockhash: empty result")
	}
	return res.Value.Blockhash, nil
}

// Submit signs the instructions as one transaction paid by the first signer.
// In simulation mode it runs simulateTransaction and logs the program logs
// instead of sending; otherwise it sends with preflight skipped.
func (c *Client) Submit(
	ctx context.Context,
	instructions []solanago.Instruction,
	signers []solanago.PrivateKey,
	blockhash solanago.Hash,
) (solanago.Signature, error) {
	tx, err := c.sign(instructions, signers, blockhash)
	if err != nil {
		return solanago.Signature{}, err
	}

	if c.simulate {
		return c.simulateTx(ctx, tx)
	}

	done := c.metrics.track("sendTransaction")
	sig, err := c.send.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: c.commitment,
	})
	done(err)
	if err != nil {
		return solanago.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

func (c *Client) sign(
	instructions []solanago.Instruction,
	signers []solanago.PrivateKey,
	blockhash solanago.Hash,
) (*solanago.Transaction, error) {
	if len(signers) == 0 {
		return nil, errors.New("transaction needs at least one signer")
	}
	tx, err := solanago.NewTransaction(instructions, blockhash, solanago.TransactionPayer(signers[0].PublicKey()))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	_, err = tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		for i := range signers {
			if signers[i].PublicKey().Equals(key) {
				return &signers[i]
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

func (c *Client) simulateTx(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error) {
	done := c.metrics.track("simulateTransaction")
	res, err := c.rpc.SimulateTransaction(ctx, tx)
	done(err)
	if err != nil {
		return solanago.Signature{}, fmt.Errorf("simulate transaction: %w", err)
	}
	if res == nil || res.Value == nil {
		return solanago.Signature{}, errors.New("simulate transaction: empty result")
	}
	for _, line := range res.Value.Logs {
		c.logger.Debug("simulation log", "line", line)
	}
	if res.Value.Err != nil {
		return solanago.Signature{}, fmt.Errorf("%w: %v", ErrSimulationFailed, res.Value.Err)
	}
	return tx.Signatures[0], nil
}

// Options Constructors for the Client

// WithSendEndpoint routes submissions to a separate cluster url.
func WithSendEndpoint(url string) Option {
	return newOption(func(c *Client) {
		c.sendURL = url
	})
}

// WithSimulation makes Submit simulate instead of send.
func WithSimulation(simulate bool) Option {
	return newOption(func(c *Client) {
		c.simulate = simulate
	})
}

// WithCommitment overrides the default confirmed commitment.
func WithCommitment(commitment rpc.CommitmentType) Option {
	return newOption(func(c *Client) {
		c.commitment = commitment
	})
}

// LoadWallet reads a solana-keygen JSON keypair file.
func LoadWallet(path string) (solanago.PrivateKey, error) {
	key, err := solanago.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load wallet %s: %w", path, err)
	}
	return key, nil
}
