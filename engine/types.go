package engine

import (
	"time"

	"github.com/defistate/defistate-arb-go/protocols/curve"
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
)

// Venue names the on-chain program family a pool belongs to.
type Venue string

const (
	VenueOrca    Venue = "orca"
	VenueOrcaV2  Venue = "orcaV2"
	VenueSwap    Venue = "swap"
	VenueStep    Venue = "step"
	VenueRaydium Venue = "raydium"
)

// IsTokenSwap reports whether the venue speaks the token-swap instruction set.
func (v Venue) IsTokenSwap() bool {
	switch v {
	case VenueOrca, VenueOrcaV2, VenueSwap, VenueStep:
		return true
	}
	return false
}

// Currency is immutable after load and addressed by ID, its index in the
// currency list.
type Currency struct {
	ID       int              `json:"id"`
	Name     string           `json:"name"`
	Mint     solana.PublicKey `json:"mint"`
	Decimals uint8            `json:"decimals"`
	// Account is the wallet's token account for this currency.
	Account solana.PublicKey `json:"account"`
}

// Token binds one side of a pool to a currency.
type Token struct {
	Currency int              `json:"currency"`
	Account  solana.PublicKey `json:"account"`
	// ExtraAccount is the serum vault for order-book backed pools.
	ExtraAccount *solana.PublicKey `json:"extraAccount,omitempty"`
}

// TokenSwapAccounts are the program accounts of a token-swap pool.
type TokenSwapAccounts struct {
	Program    solana.PublicKey `json:"program"`
	Swap       solana.PublicKey `json:"swap"`
	Authority  solana.PublicKey `json:"authority"`
	PoolMint   solana.PublicKey `json:"poolMint"`
	FeeAccount solana.PublicKey `json:"feeAccount"`
}

// RaydiumAccounts are the AMM and serum market accounts of a raydium pool.
type RaydiumAccounts struct {
	Program      solana.PublicKey `json:"program"`
	Amm          solana.PublicKey `json:"amm"`
	Authority    solana.PublicKey `json:"authority"`
	OpenOrders   solana.PublicKey `json:"openOrders"`
	TargetOrders solana.PublicKey `json:"targetOrders"`
	SerumProgram solana.PublicKey `json:"serumProgram"`
	SerumMarket  solana.PublicKey `json:"serumMarket"`
	SerumBids    solana.PublicKey `json:"serumBids"`
	SerumAsks    solana.PublicKey `json:"serumAsks"`
	SerumEvents  solana.PublicKey `json:"serumEvents"`
	SerumSigner  solana.PublicKey `json:"serumSigner"`
}

// Pool is immutable after load. Tokens[d] is the input side when the pool is
// traded in direction d.
type Pool struct {
	ID           int         `json:"id"`
	Name         string      `json:"name"`
	Venue        Venue       `json:"venue"`
	Curve        curve.Curve `json:"-"`
	Tokens       [2]Token    `json:"tokens"`
	NeedsApprove bool        `json:"needsApprove"`

	TokenSwap *TokenSwapAccounts `json:"tokenSwap,omitempty"`
	Raydium   *RaydiumAccounts   `json:"raydium,omitempty"`
}

// Currency returns the currency id entering the pool in direction d.
func (p *Pool) Currency(d int) int {
	return p.Tokens[d].Currency
}

// Fees is the approximate fraction of the input that survives fees.
func (p *Pool) Fees() float64 {
	return p.Curve.Fees.Approximate()
}

// PredictSwap prices amountIn against the given reserves with the pool's curve.
func (p *Pool) PredictSwap(amountIn, reserveIn, reserveOut *uint256.Int) (out, consumed *uint256.Int) {
	return p.Curve.Swap(amountIn, reserveIn, reserveOut)
}

// AuxiliaryAccounts are accounts besides the two reserves whose changes move
// the pool's price. Feeds report them as legs 2 and up.
func (p *Pool) AuxiliaryAccounts() []solana.PublicKey {
	if p.Raydium == nil {
		return nil
	}
	return []solana.PublicKey{p.Raydium.OpenOrders, p.Raydium.SerumMarket}
}

// WatchedAccounts lists every account a feed must subscribe to for this pool,
// indexed by leg.
func (p *Pool) WatchedAccounts() []solana.PublicKey {
	accounts := []solana.PublicKey{p.Tokens[0].Account, p.Tokens[1].Account}
	return append(accounts, p.AuxiliaryAccounts()...)
}

// Leg is one pool traded in one direction.
type Leg struct {
	Pool      int `json:"pool"`
	Direction int `json:"direction"`
}

// Cycle is a closed walk from the base currency back to itself. It is
// identified by its index in the cycle list.
type Cycle struct {
	Path          []Leg `json:"path"`
	NeedsApproval bool  `json:"needsApproval"`
}

// Contains reports whether the pool appears anywhere on the path.
func (c *Cycle) Contains(pool int) bool {
	for _, leg := range c.Path {
		if leg.Pool == pool {
			return true
		}
	}
	return false
}

// ReserveUpdate is one balance notification for one watched account.
type ReserveUpdate struct {
	Pool   int
	Leg    int
	Amount uint64
	Slot   uint64
}

// Hop is one swap of an execution bundle.
type Hop struct {
	Pool             int    `json:"pool"`
	Direction        int    `json:"direction"`
	AmountIn         uint64 `json:"amountIn"`
	MinimumAmountOut uint64 `json:"minimumAmountOut"`
}

// ExecutionRequest asks the execution sink to run one cycle as a single
// atomic bundle.
type ExecutionRequest struct {
	ID            string    `json:"id"`
	Cycle         int       `json:"cycle"`
	Size          uint64    `json:"size"`
	PredictedGain uint64    `json:"predictedGain"`
	Hops          []Hop     `json:"hops"`
	NeedsApproval bool      `json:"needsApproval"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ExecutionStatus is the terminal state of one execution request.
type ExecutionStatus string

const (
	StatusSubmitted ExecutionStatus = "submitted"
	StatusFailed    ExecutionStatus = "failed"
	StatusDropped   ExecutionStatus = "dropped"
)

// ExecutionResult is what the executor journals for every request it takes.
type ExecutionResult struct {
	RequestID     string          `json:"requestId"`
	Cycle         int             `json:"cycle"`
	Size          uint64          `json:"size"`
	PredictedGain uint64          `json:"predictedGain"`
	Status        ExecutionStatus `json:"status"`
	Signature     string          `json:"signature,omitempty"`
	Error         string          `json:"error,omitempty"`
	At            time.Time       `json:"at"`
}

// AccountBalance is a raw token balance observed for one watched account,
// before it is resolved to pool legs.
type AccountBalance struct {
	Account solana.PublicKey `json:"account"`
	Amount  uint64           `json:"amount"`
	Slot    uint64           `json:"slot"`
}
