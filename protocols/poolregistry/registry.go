package poolregistry

import (
	"errors"
	"fmt"
	"os"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/defistate/defistate-arb-go/protocols/curve"
	"github.com/gagliardetto/solana-go"
	"github.com/sugawarayuuta/sonnet"
)

var (
	// ErrUnknownVenue is returned for a pool entry whose venue is not supported.
	ErrUnknownVenue = errors.New("unknown venue")
	// ErrInvalidPool is returned when a pool definition breaks a structural rule.
	ErrInvalidPool = errors.New("invalid pool")
	// ErrMissingProgram is returned when a pool needs a program id that is not configured.
	ErrMissingProgram = errors.New("program id not configured")
)

// Programs holds the on-chain program ids pools are resolved against.
type Programs struct {
	Token      solana.PublicKey
	Swap       solana.PublicKey
	StepSwap   solana.PublicKey
	OrcaSwap   solana.PublicKey
	OrcaSwapV2 solana.PublicKey
	RaydiumV2  solana.PublicKey
	RaydiumV3  solana.PublicKey
	RaydiumV4  solana.PublicKey
	SerumV2    solana.PublicKey
	SerumV3    solana.PublicKey
}

// TokenEntry is one side of a pool as written in the registry file.
type TokenEntry struct {
	Currency     int    `json:"currency"`
	Account      string `json:"account"`
	ExtraAccount string `json:"extraAccount,omitempty"`
}

// Entry is one pool as written in the registry file. Token-swap venues use
// the swap fields, raydium uses the amm and serum fields.
type Entry struct {
	Venue        string        `json:"venue"`
	Name         string        `json:"name"`
	Tokens       [2]TokenEntry `json:"tokens"`
	NeedsApprove bool          `json:"needsApprove,omitempty"`

	Account       string      `json:"account"`
	Authority     string      `json:"authority"`
	PoolTokenMint string      `json:"poolTokenMint,omitempty"`
	FeeAccount    string      `json:"feeAccount,omitempty"`
	Curve         string      `json:"curve,omitempty"`
	CurveParam    uint64      `json:"curveParam,omitempty"`
	Fees          *curve.Fees `json:"fees,omitempty"`

	PoolVersion  uint64 `json:"poolVersion,omitempty"`
	OpenOrders   string `json:"openOrders,omitempty"`
	TargetOrders string `json:"targetOrders,omitempty"`
	SerumVersion uint64 `json:"serumVersion,omitempty"`
	SerumMarket  string `json:"serumMarket,omitempty"`
	SerumBids    string `json:"serumBids,omitempty"`
	SerumAsks    string `json:"serumAsks,omitempty"`
	SerumEvents  string `json:"serumEvents,omitempty"`
	SerumSigner  string `json:"serumSigner,omitempty"`
}

// File is the on-disk pool registry. The position of a pool in the list is
// its id.
type File struct {
	Pools []Entry `json:"pools"`
}

// Load reads, decodes and validates the registry at path.
func Load(path string, programs Programs, currencies []engine.Currency) ([]engine.Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pool registry: %w", err)
	}
	return Decode(data, programs, currencies)
}

// Decode parses a registry document into pools and validates them against
// the currency list.
func Decode(data []byte, programs Programs, currencies []engine.Currency) ([]engine.Pool, error) {
	var file File
	if err := sonnet.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pool registry: %w", err)
	}

	pools := make([]engine.Pool, 0, len(file.Pools))
	for i, e := range file.Pools {
		pool, err := e.resolve(i, programs)
		if err != nil {
			return nil, fmt.Errorf("pool %d (%s): %w", i, e.Name, err)
		}
		pools = append(pools, pool)
	}

	if err := Validate(pools, len(currencies)); err != nil {
		return nil, err
	}
	return pools, nil
}

// Validate checks the structural rules every pool must satisfy before cycles
// can be built from it.
func Validate(pools []engine.Pool, numCurrencies int) error {
	for i := range pools {
		p := &pools[i]
		if p.ID != i {
			return fmt.Errorf("%w: pool %s has id %d at position %d", ErrInvalidPool, p.Name, p.ID, i)
		}
		for d := 0; d < 2; d++ {
			c := p.Currency(d)
			if c < 0 || c >= numCurrencies {
				return fmt.Errorf("%w: pool %s token %d references unknown currency %d", ErrInvalidPool, p.Name, d, c)
			}
		}
		if p.Currency(0) == p.Currency(1) {
			return fmt.Errorf("%w: pool %s trades currency %d against itself", ErrInvalidPool, p.Name, p.Currency(0))
		}
		if err := curve.Validate(p.Curve); err != nil {
			return fmt.Errorf("%w: pool %s: %w", ErrInvalidPool, p.Name, err)
		}
		if p.Venue.IsTokenSwap() && p.TokenSwap == nil {
			return fmt.Errorf("%w: pool %s has no token-swap accounts", ErrInvalidPool, p.Name)
		}
		if p.Venue == engine.VenueRaydium && p.Raydium == nil {
			return fmt.Errorf("%w: pool %s has no raydium accounts", ErrInvalidPool, p.Name)
		}
	}
	return nil
}

func (e Entry) resolve(id int, programs Programs) (engine.Pool, error) {
	pool := engine.Pool{
		ID:           id,
		Name:         e.Name,
		Venue:        engine.Venue(e.Venue),
		NeedsApprove: e.NeedsApprove,
	}

	for d := 0; d < 2; d++ {
		token, err := e.Tokens[d].resolve()
		if err != nil {
			return engine.Pool{}, fmt.Errorf("token %d: %w", d, err)
		}
		pool.Tokens[d] = token
	}

	var err error
	switch pool.Venue {
	case engine.VenueOrca, engine.VenueOrcaV2, engine.VenueSwap, engine.VenueStep:
		err = e.resolveTokenSwap(&pool, programs)
	case engine.VenueRaydium:
		err = e.resolveRaydium(&pool, programs)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownVenue, e.Venue)
	}
	if err != nil {
		return engine.Pool{}, err
	}
	return pool, nil
}

func (e Entry) resolveTokenSwap(pool *engine.Pool, programs Programs) error {
	kind, err := curve.ParseKind(e.Curve)
	if err != nil {
		return err
	}

	var program solana.PublicKey
	fees := curve.SwapFees
	switch pool.Venue {
	case engine.VenueOrca:
		program, fees = programs.OrcaSwap, curve.OrcaFees
	case engine.VenueOrcaV2:
		program, fees = programs.OrcaSwapV2, curve.OrcaFees
	case engine.VenueStep:
		program, fees = programs.StepSwap, curve.OrcaFees
	case engine.VenueSwap:
		program = programs.Swap
	}
	if kind == curve.Stable {
		fees = curve.OrcaStableFees
	}
	if e.Fees != nil {
		fees = *e.Fees
	}
	if program.IsZero() {
		return fmt.Errorf("%w: %s swap program", ErrMissingProgram, pool.Venue)
	}

	keys, err := parseKeys(
		field{"account", e.Account},
		field{"authority", e.Authority},
		field{"poolTokenMint", e.PoolTokenMint},
		field{"feeAccount", e.FeeAccount},
	)
	if err != nil {
		return err
	}

	pool.Curve = curve.Curve{Kind: kind, Amp: e.CurveParam, Fees: fees}
	pool.TokenSwap = &engine.TokenSwapAccounts{
		Program:    program,
		Swap:       keys[0],
		Authority:  keys[1],
		PoolMint:   keys[2],
		FeeAccount: keys[3],
	}
	return nil
}

func (e Entry) resolveRaydium(pool *engine.Pool, programs Programs) error {
	var program solana.PublicKey
	switch e.PoolVersion {
	case 4:
		program = programs.RaydiumV4
	case 3:
		program = programs.RaydiumV3
	default:
		program = programs.RaydiumV2
	}
	serum := programs.SerumV2
	if e.SerumVersion == 3 {
		serum = programs.SerumV3
	}
	if program.IsZero() {
		return fmt.Errorf("%w: raydium v%d", ErrMissingProgram, e.PoolVersion)
	}
	if serum.IsZero() {
		return fmt.Errorf("%w: serum v%d", ErrMissingProgram, e.SerumVersion)
	}

	keys, err := parseKeys(
		field{"account", e.Account},
		field{"authority", e.Authority},
		field{"openOrders", e.OpenOrders},
		field{"targetOrders", e.TargetOrders},
		field{"serumMarket", e.SerumMarket},
		field{"serumBids", e.SerumBids},
		field{"serumAsks", e.SerumAsks},
		field{"serumEvents", e.SerumEvents},
		field{"serumSigner", e.SerumSigner},
	)
	if err != nil {
		return err
	}

	fees := curve.RaydiumFees
	if e.Fees != nil {
		fees = *e.Fees
	}
	pool.Curve = curve.Curve{Kind: curve.ExternalOrderBook, Fees: fees}
	pool.Raydium = &engine.RaydiumAccounts{
		Program:      program,
		Amm:          keys[0],
		Authority:    keys[1],
		OpenOrders:   keys[2],
		TargetOrders: keys[3],
		SerumProgram: serum,
		SerumMarket:  keys[4],
		SerumBids:    keys[5],
		SerumAsks:    keys[6],
		SerumEvents:  keys[7],
		SerumSigner:  keys[8],
	}
	return nil
}

func (t TokenEntry) resolve() (engine.Token, error) {
	account, err := solana.PublicKeyFromBase58(t.Account)
	if err != nil {
		return engine.Token{}, fmt.Errorf("invalid account: %w", err)
	}
	token := engine.Token{Currency: t.Currency, Account: account}
	if t.ExtraAccount != "" {
		extra, err := solana.PublicKeyFromBase58(t.ExtraAccount)
		if err != nil {
			return engine.Token{}, fmt.Errorf("invalid extra account: %w", err)
		}
		token.ExtraAccount = &extra
	}
	return token, nil
}

type field struct {
	name  string
	value string
}

func parseKeys(fields ...field) ([]solana.PublicKey, error) {
	keys := make([]solana.PublicKey, len(fields))
	for i, f := range fields {
		key, err := solana.PublicKeyFromBase58(f.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", f.name, err)
		}
		keys[i] = key
	}
	return keys, nil
}
