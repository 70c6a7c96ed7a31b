// Package tokenswap encodes swaps for the token-swap program family
// (orca, orcaV2, swap and step).
package tokenswap

import (
	"fmt"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/defistate/defistate-arb-go/execution"
	"github.com/gagliardetto/solana-go"
)

// instructionSwap is the token-swap instruction tag for Swap.
const instructionSwap uint8 = 1

// Adapter implements execution.SwapAdapter for token-swap pools.
type Adapter struct{}

var _ execution.SwapAdapter = Adapter{}

// Supports reports whether the venue speaks the token-swap instruction set.
func (Adapter) Supports(venue engine.Venue) bool {
	return venue.IsTokenSwap()
}

// BuildSwap encodes a single Swap instruction. Step pools take the payer as
// an extra writable account just before the token program.
func (Adapter) BuildSwap(p execution.SwapParams) ([]solana.Instruction, error) {
	if err := execution.CheckDirection(p.Direction); err != nil {
		return nil, err
	}
	if p.Pool == nil || p.Pool.TokenSwap == nil {
		return nil, fmt.Errorf("%w: token-swap accounts", execution.ErrMissingAccount)
	}
	ts := p.Pool.TokenSwap
	in := p.Pool.Tokens[p.Direction].Account
	out := p.Pool.Tokens[1-p.Direction].Account

	for name, account := range map[string]solana.PublicKey{
		"program":     ts.Program,
		"swap":        ts.Swap,
		"authority":   ts.Authority,
		"pool mint":   ts.PoolMint,
		"fee account": ts.FeeAccount,
		"reserve in":  in,
		"reserve out": out,
	} {
		if account.IsZero() {
			return nil, fmt.Errorf("%w: %s of pool %s", execution.ErrMissingAccount, name, p.Pool.Name)
		}
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(ts.Swap, false, false),
		solana.NewAccountMeta(ts.Authority, false, false),
		solana.NewAccountMeta(p.Authority, false, true),
		solana.NewAccountMeta(p.UserSource, true, false),
		solana.NewAccountMeta(in, true, false),
		solana.NewAccountMeta(out, true, false),
		solana.NewAccountMeta(p.UserDestination, true, false),
		solana.NewAccountMeta(ts.PoolMint, true, false),
		solana.NewAccountMeta(ts.FeeAccount, true, false),
	}
	if p.Pool.Venue == engine.VenueStep {
		accounts = append(accounts, solana.NewAccountMeta(p.Payer, true, false))
	}
	accounts = append(accounts, solana.NewAccountMeta(p.TokenProgram, false, false))

	data, err := execution.EncodeSwap(instructionSwap, p.AmountIn, p.MinimumAmountOut)
	if err != nil {
		return nil, err
	}
	return []solana.Instruction{solana.NewInstruction(ts.Program, accounts, data)}, nil
}
