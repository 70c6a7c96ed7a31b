package curve

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var zeroFees = Fees{}

func TestSwap_ConstantProduct(t *testing.T) {
	testCases := []struct {
		name             string
		curve            Curve
		amountIn         uint64
		reserveIn        uint64
		reserveOut       uint64
		expectedOut      uint64
		expectedConsumed uint64
	}{
		{
			name:             "zero fee rounds destination up",
			curve:            Curve{Kind: ConstantProduct, Fees: zeroFees},
			amountIn:         100,
			reserveIn:        1000,
			reserveOut:       1000,
			expectedOut:      90,
			expectedConsumed: 99,
		},
		{
			name:             "one percent trade fee charged on input",
			curve:            Curve{Kind: ConstantProduct, Fees: Fees{TradeFeeNumerator: 1, TradeFeeDenominator: 100}},
			amountIn:         100,
			reserveIn:        1000,
			reserveOut:       1000,
			expectedOut:      90,
			expectedConsumed: 100,
		},
		{
			name:             "order book pools price like constant product",
			curve:            Curve{Kind: ExternalOrderBook, Fees: zeroFees},
			amountIn:         100,
			reserveIn:        1000,
			reserveOut:       1000,
			expectedOut:      90,
			expectedConsumed: 99,
		},
		{
			name:             "zero reserve is degenerate",
			curve:            Curve{Kind: ConstantProduct, Fees: OrcaFees},
			amountIn:         100,
			reserveIn:        0,
			reserveOut:       1000,
			expectedOut:      0,
			expectedConsumed: 0,
		},
		{
			name:             "zero input is degenerate",
			curve:            Curve{Kind: ConstantProduct, Fees: OrcaFees},
			amountIn:         0,
			reserveIn:        1000,
			reserveOut:       1000,
			expectedOut:      0,
			expectedConsumed: 0,
		},
		{
			name:             "dust trade that rounds to nothing",
			curve:            Curve{Kind: ConstantProduct, Fees: zeroFees},
			amountIn:         1,
			reserveIn:        1_000_000,
			reserveOut:       10,
			expectedOut:      0,
			expectedConsumed: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, consumed := tc.curve.SwapUint64(tc.amountIn, tc.reserveIn, tc.reserveOut)
			assert.Equal(t, tc.expectedOut, out)
			assert.Equal(t, tc.expectedConsumed, consumed)
		})
	}
}

func TestSwap_ConstantProductPreservesInvariant(t *testing.T) {
	c := Curve{Kind: ConstantProduct, Fees: zeroFees}
	reserveIn, reserveOut := uint64(1_000_000), uint64(1_000_000)

	for _, amountIn := range []uint64{1_000, 12_345, 250_000, 999_999} {
		out, consumed := c.SwapUint64(amountIn, reserveIn, reserveOut)
		require.NotZero(t, out)
		require.LessOrEqual(t, consumed, amountIn)

		before := float64(reserveIn) * float64(reserveOut)
		after := float64(reserveIn+consumed) * float64(reserveOut-out)
		assert.InEpsilon(t, before, after, 1e-5, "amountIn=%d", amountIn)
		assert.GreaterOrEqual(t, after, before, "pool must never lose value to rounding")
	}
}

func TestSwap_FeesReduceOutput(t *testing.T) {
	noFee := Curve{Kind: ConstantProduct, Fees: zeroFees}
	orca := Curve{Kind: ConstantProduct, Fees: OrcaFees}

	outNoFee, _ := noFee.SwapUint64(1_000_000, 1_000_000_000, 1_000_000_000)
	outOrca, consumed := orca.SwapUint64(1_000_000, 1_000_000_000, 1_000_000_000)

	assert.Less(t, outOrca, outNoFee)
	assert.LessOrEqual(t, consumed, uint64(1_000_000))
	// 0.251% + 0.05% in fees on a trade that is 0.1% of the pool.
	assert.InDelta(t, float64(outNoFee)*(1-0.00301), float64(outOrca), 50)
}

func TestSwap_Stable(t *testing.T) {
	stable := Curve{Kind: Stable, Amp: 100, Fees: zeroFees}
	product := Curve{Kind: ConstantProduct, Fees: zeroFees}

	stableOut, stableConsumed := stable.SwapUint64(100_000, 1_000_000, 1_000_000)
	productOut, _ := product.SwapUint64(100_000, 1_000_000, 1_000_000)

	assert.Equal(t, uint64(100_000), stableConsumed)
	assert.Greater(t, stableOut, uint64(99_000))
	assert.LessOrEqual(t, stableOut, uint64(100_000))
	assert.Greater(t, stableOut, productOut, "amplified curve must have less price impact")
}

func TestSwap_StableWithFees(t *testing.T) {
	stable := Curve{Kind: Stable, Amp: 100, Fees: OrcaStableFees}

	out, consumed := stable.SwapUint64(100_000, 1_000_000, 1_000_000)
	assert.Equal(t, uint64(100_000), consumed)
	assert.Greater(t, out, uint64(99_000))
}

func TestSwap_LargeReservesDoNotOverflow(t *testing.T) {
	c := Curve{Kind: ConstantProduct, Fees: RaydiumFees}
	reserve := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(24))

	out, consumed := c.Swap(uint256.NewInt(1_000_000_000), reserve, reserve)
	assert.False(t, out.IsZero())
	assert.False(t, consumed.IsZero())
}

func TestFees_Approximate(t *testing.T) {
	assert.InDelta(t, 1-0.00251-0.0005, OrcaFees.Approximate(), 1e-12)
	assert.InDelta(t, 1-0.00221-0.0003, RaydiumFees.Approximate(), 1e-12)
	assert.Equal(t, 1.0, zeroFees.Approximate())
}

func TestFees_MinimumOneUnit(t *testing.T) {
	fee, ok := OrcaFees.TradingFee(uint256.NewInt(10))
	require.True(t, ok)
	assert.Equal(t, uint64(1), fee.Uint64())

	fee, ok = zeroFees.TradingFee(uint256.NewInt(10))
	require.True(t, ok)
	assert.True(t, fee.IsZero())

	_, ok = Fees{TradeFeeNumerator: 1}.TradingFee(uint256.NewInt(10))
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name        string
		curve       Curve
		expectedErr error
	}{
		{name: "constant product", curve: Curve{Kind: ConstantProduct, Fees: OrcaFees}},
		{name: "stable", curve: Curve{Kind: Stable, Amp: 100, Fees: OrcaStableFees}},
		{name: "stable without amp", curve: Curve{Kind: Stable}, expectedErr: ErrZeroAmplification},
		{name: "unknown kind", curve: Curve{Kind: Kind(9)}, expectedErr: ErrUnknownKind},
		{name: "bad owner fee", curve: Curve{Fees: Fees{OwnerTradeFeeNumerator: 3}}, expectedErr: ErrZeroDenominator},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.curve)
			if tc.expectedErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, ConstantProduct, k)

	k, err = ParseKind("stable")
	require.NoError(t, err)
	assert.Equal(t, Stable, k)

	_, err = ParseKind("concentrated")
	assert.ErrorIs(t, err, ErrUnknownKind)
}
