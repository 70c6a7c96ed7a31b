package tokenswap

import (
	"encoding/binary"
	"testing"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/defistate/defistate-arb-go/execution"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

func testPool(venue engine.Venue) *engine.Pool {
	return &engine.Pool{
		ID:    0,
		Name:  "SOL-USDC",
		Venue: venue,
		Tokens: [2]engine.Token{
			{Currency: 0, Account: key()},
			{Currency: 1, Account: key()},
		},
		TokenSwap: &engine.TokenSwapAccounts{
			Program:    key(),
			Swap:       key(),
			Authority:  key(),
			PoolMint:   key(),
			FeeAccount: key(),
		},
	}
}

func testParams(pool *engine.Pool, direction int) execution.SwapParams {
	return execution.SwapParams{
		Pool:             pool,
		Direction:        direction,
		AmountIn:         1_000_000,
		MinimumAmountOut: 990_000,
		Payer:            key(),
		Authority:        key(),
		UserSource:       key(),
		UserDestination:  key(),
		TokenProgram:     solana.TokenProgramID,
	}
}

type meta struct {
	key      solana.PublicKey
	writable bool
	signer   bool
}

func metas(accounts []*solana.AccountMeta) []meta {
	out := make([]meta, len(accounts))
	for i, a := range accounts {
		out[i] = meta{a.PublicKey, a.IsWritable, a.IsSigner}
	}
	return out
}

func TestBuildSwap(t *testing.T) {
	testCases := []struct {
		name      string
		venue     engine.Venue
		direction int
	}{
		{name: "orca forward", venue: engine.VenueOrca, direction: 0},
		{name: "orcaV2 reverse", venue: engine.VenueOrcaV2, direction: 1},
		{name: "swap forward", venue: engine.VenueSwap, direction: 0},
		{name: "step forward", venue: engine.VenueStep, direction: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pool := testPool(tc.venue)
			p := testParams(pool, tc.direction)

			instructions, err := Adapter{}.BuildSwap(p)
			require.NoError(t, err)
			require.Len(t, instructions, 1)
			ix := instructions[0]

			assert.Equal(t, pool.TokenSwap.Program, ix.ProgramID())

			data, err := ix.Data()
			require.NoError(t, err)
			require.Len(t, data, 17)
			assert.Equal(t, byte(1), data[0])
			assert.Equal(t, p.AmountIn, binary.LittleEndian.Uint64(data[1:9]))
			assert.Equal(t, p.MinimumAmountOut, binary.LittleEndian.Uint64(data[9:17]))

			ts := pool.TokenSwap
			expected := []meta{
				{ts.Swap, false, false},
				{ts.Authority, false, false},
				{p.Authority, false, true},
				{p.UserSource, true, false},
				{pool.Tokens[tc.direction].Account, true, false},
				{pool.Tokens[1-tc.direction].Account, true, false},
				{p.UserDestination, true, false},
				{ts.PoolMint, true, false},
				{ts.FeeAccount, true, false},
			}
			if tc.venue == engine.VenueStep {
				expected = append(expected, meta{p.Payer, true, false})
			}
			expected = append(expected, meta{solana.TokenProgramID, false, false})
			assert.Equal(t, expected, metas(ix.Accounts()))
		})
	}
}

func TestBuildSwap_Errors(t *testing.T) {
	testCases := []struct {
		name        string
		params      func() execution.SwapParams
		expectedErr error
	}{
		{
			name: "bad direction",
			params: func() execution.SwapParams {
				return testParams(testPool(engine.VenueOrca), 2)
			},
			expectedErr: execution.ErrUnsupportedDirection,
		},
		{
			name: "no token-swap accounts",
			params: func() execution.SwapParams {
				pool := testPool(engine.VenueOrca)
				pool.TokenSwap = nil
				return testParams(pool, 0)
			},
			expectedErr: execution.ErrMissingAccount,
		},
		{
			name: "zero fee account",
			params: func() execution.SwapParams {
				pool := testPool(engine.VenueSwap)
				pool.TokenSwap.FeeAccount = solana.PublicKey{}
				return testParams(pool, 0)
			},
			expectedErr: execution.ErrMissingAccount,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Adapter{}.BuildSwap(tc.params())
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func TestSupports(t *testing.T) {
	a := Adapter{}
	assert.True(t, a.Supports(engine.VenueOrca))
	assert.True(t, a.Supports(engine.VenueStep))
	assert.False(t, a.Supports(engine.VenueRaydium))
}
