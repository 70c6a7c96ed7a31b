package poolregistry

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/defistate/defistate-arb-go/protocols/curve"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key() string {
	return solana.NewWallet().PublicKey().String()
}

func testPrograms() Programs {
	return Programs{
		Token:      solana.TokenProgramID,
		Swap:       solana.MustPublicKeyFromBase58("SwaPpA9LAaLfeLi3a68M4DjnLqgtticKg6CnyNwgAC8"),
		OrcaSwap:   solana.MustPublicKeyFromBase58("DjVE6JNiYqPL2QXyCUUh8rNjHrbz9hXHNYt99MQ59qw1"),
		OrcaSwapV2: solana.MustPublicKeyFromBase58("9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP"),
		RaydiumV4:  solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"),
		SerumV3:    solana.MustPublicKeyFromBase58("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"),
	}
}

func testCurrencies() []engine.Currency {
	return []engine.Currency{{ID: 0, Name: "SOL", Decimals: 9}, {ID: 1, Name: "USDC", Decimals: 6}, {ID: 2, Name: "USDT", Decimals: 6}}
}

func swapEntry(venue, curveName string, c0, c1 int) string {
	return fmt.Sprintf(`{
		"venue": %q, "name": "%s-%d-%d", "curve": %q, "curveParam": 100,
		"account": %q, "authority": %q, "poolTokenMint": %q, "feeAccount": %q,
		"tokens": [{"currency": %d, "account": %q}, {"currency": %d, "account": %q}]
	}`, venue, venue, c0, c1, curveName, key(), key(), key(), key(), c0, key(), c1, key())
}

func raydiumEntry(c0, c1 int) string {
	return fmt.Sprintf(`{
		"venue": "raydium", "name": "ray-%d-%d", "poolVersion": 4, "serumVersion": 3,
		"account": %q, "authority": %q, "openOrders": %q, "targetOrders": %q,
		"serumMarket": %q, "serumBids": %q, "serumAsks": %q, "serumEvents": %q, "serumSigner": %q,
		"tokens": [{"currency": %d, "account": %q, "extraAccount": %q}, {"currency": %d, "account": %q}]
	}`, c0, c1, key(), key(), key(), key(), key(), key(), key(), key(), key(), c0, key(), key(), c1, key())
}

func TestDecode(t *testing.T) {
	doc := fmt.Sprintf(`{"pools": [%s, %s, %s, %s]}`,
		swapEntry("orca", "", 0, 1),
		swapEntry("swap", "", 1, 2),
		swapEntry("orcaV2", "stable", 1, 2),
		raydiumEntry(0, 1),
	)

	pools, err := Decode([]byte(doc), testPrograms(), testCurrencies())
	require.NoError(t, err)
	require.Len(t, pools, 4)

	orca := pools[0]
	assert.Equal(t, 0, orca.ID)
	assert.Equal(t, engine.VenueOrca, orca.Venue)
	assert.Equal(t, curve.ConstantProduct, orca.Curve.Kind)
	assert.Equal(t, curve.OrcaFees, orca.Curve.Fees)
	require.NotNil(t, orca.TokenSwap)
	assert.Equal(t, testPrograms().OrcaSwap, orca.TokenSwap.Program)

	assert.Equal(t, curve.SwapFees, pools[1].Curve.Fees)
	assert.Equal(t, testPrograms().Swap, pools[1].TokenSwap.Program)

	stable := pools[2]
	assert.Equal(t, curve.Stable, stable.Curve.Kind)
	assert.Equal(t, uint64(100), stable.Curve.Amp)
	assert.Equal(t, curve.OrcaStableFees, stable.Curve.Fees)

	ray := pools[3]
	assert.Equal(t, curve.ExternalOrderBook, ray.Curve.Kind)
	assert.Equal(t, curve.RaydiumFees, ray.Curve.Fees)
	require.NotNil(t, ray.Raydium)
	assert.Equal(t, testPrograms().RaydiumV4, ray.Raydium.Program)
	assert.Equal(t, testPrograms().SerumV3, ray.Raydium.SerumProgram)
	assert.NotNil(t, ray.Tokens[0].ExtraAccount)
	assert.Nil(t, ray.Tokens[1].ExtraAccount)
}

func TestDecode_Errors(t *testing.T) {
	testCases := []struct {
		name        string
		document    string
		expectedErr error
		errMatch    string
	}{
		{
			name:        "unknown venue",
			document:    fmt.Sprintf(`{"pools": [%s]}`, swapEntry("uniswap", "", 0, 1)),
			expectedErr: ErrUnknownVenue,
		},
		{
			name:        "same currency on both sides",
			document:    fmt.Sprintf(`{"pools": [%s]}`, swapEntry("orca", "", 1, 1)),
			expectedErr: ErrInvalidPool,
		},
		{
			name:        "currency out of range",
			document:    fmt.Sprintf(`{"pools": [%s]}`, swapEntry("orca", "", 0, 7)),
			expectedErr: ErrInvalidPool,
		},
		{
			name:        "step program not configured",
			document:    fmt.Sprintf(`{"pools": [%s]}`, swapEntry("step", "", 0, 1)),
			expectedErr: ErrMissingProgram,
		},
		{
			name:        "unknown curve",
			document:    fmt.Sprintf(`{"pools": [%s]}`, swapEntry("orca", "weighted", 0, 1)),
			expectedErr: curve.ErrUnknownKind,
		},
		{
			name:     "unresolvable account",
			document: `{"pools": [{"venue": "orca", "name": "bad", "tokens": [{"currency": 0, "account": "xyz"}, {"currency": 1, "account": "xyz"}]}]}`,
			errMatch: "invalid account",
		},
		{
			name:     "malformed json",
			document: `{"pools": [`,
			errMatch: "unmarshal",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.document), testPrograms(), testCurrencies())
			require.Error(t, err)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
			}
			if tc.errMatch != "" {
				assert.Contains(t, err.Error(), tc.errMatch)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pools.json")
	doc := fmt.Sprintf(`{"pools": [%s]}`, swapEntry("orca", "", 0, 1))
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	pools, err := Load(path, testPrograms(), testCurrencies())
	require.NoError(t, err)
	assert.Len(t, pools, 1)
}
