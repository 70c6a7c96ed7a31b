// Package raydium encodes SwapBaseIn for raydium AMM v4 pools backed by a
// serum market.
package raydium

import (
	"fmt"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/defistate/defistate-arb-go/execution"
	"github.com/gagliardetto/solana-go"
)

// instructionSwapBaseIn is the AMM instruction tag for SwapBaseIn.
const instructionSwapBaseIn uint8 = 9

// Adapter implements execution.SwapAdapter for raydium pools. Tokens[0] is
// the coin side and Tokens[1] the pc side; their ExtraAccount fields hold the
// serum coin and pc vaults.
type Adapter struct{}

var _ execution.SwapAdapter = Adapter{}

func (Adapter) Supports(venue engine.Venue) bool {
	return venue == engine.VenueRaydium
}

// BuildSwap encodes SwapBaseIn. The swap is signed by Authority as the owner
// of UserSource.
func (Adapter) BuildSwap(p execution.SwapParams) ([]solana.Instruction, error) {
	if err := execution.CheckDirection(p.Direction); err != nil {
		return nil, err
	}
	if p.Pool == nil || p.Pool.Raydium == nil {
		return nil, fmt.Errorf("%w: raydium accounts", execution.ErrMissingAccount)
	}
	coinVault := p.Pool.Tokens[0].ExtraAccount
	pcVault := p.Pool.Tokens[1].ExtraAccount
	if coinVault == nil || pcVault == nil {
		return nil, fmt.Errorf("%w: serum vault of pool %s", execution.ErrMissingAccount, p.Pool.Name)
	}
	r := p.Pool.Raydium
	if r.Program.IsZero() || r.SerumProgram.IsZero() {
		return nil, fmt.Errorf("%w: program of pool %s", execution.ErrMissingAccount, p.Pool.Name)
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(p.TokenProgram, false, false),
		solana.NewAccountMeta(r.Amm, true, false),
		solana.NewAccountMeta(r.Authority, false, false),
		solana.NewAccountMeta(r.OpenOrders, true, false),
		solana.NewAccountMeta(r.TargetOrders, true, false),
		solana.NewAccountMeta(p.Pool.Tokens[0].Account, true, false),
		solana.NewAccountMeta(p.Pool.Tokens[1].Account, true, false),
		solana.NewAccountMeta(r.SerumProgram, false, false),
		solana.NewAccountMeta(r.SerumMarket, true, false),
		solana.NewAccountMeta(r.SerumBids, true, false),
		solana.NewAccountMeta(r.SerumAsks, true, false),
		solana.NewAccountMeta(r.SerumEvents, true, false),
		solana.NewAccountMeta(*coinVault, true, false),
		solana.NewAccountMeta(*pcVault, true, false),
		solana.NewAccountMeta(r.SerumSigner, false, false),
		solana.NewAccountMeta(p.UserSource, true, false),
		solana.NewAccountMeta(p.UserDestination, true, false),
		solana.NewAccountMeta(p.Authority, false, true),
	}

	data, err := execution.EncodeSwap(instructionSwapBaseIn, p.AmountIn, p.MinimumAmountOut)
	if err != nil {
		return nil, err
	}
	return []solana.Instruction{solana.NewInstruction(r.Program, accounts, data)}, nil
}
