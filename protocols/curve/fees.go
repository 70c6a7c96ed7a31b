package curve

import "github.com/holiman/uint256"

// Fees is the fee schedule of a token-swap style pool. Both fees are charged
// on the input amount before the invariant is solved.
type Fees struct {
	TradeFeeNumerator        uint64 `json:"tradeFeeNumerator"`
	TradeFeeDenominator      uint64 `json:"tradeFeeDenominator"`
	OwnerTradeFeeNumerator   uint64 `json:"ownerTradeFeeNumerator"`
	OwnerTradeFeeDenominator uint64 `json:"ownerTradeFeeDenominator"`
}

// Default schedules of the supported venues.
var (
	OrcaFees = Fees{
		TradeFeeNumerator:        251,
		TradeFeeDenominator:      100000,
		OwnerTradeFeeNumerator:   5,
		OwnerTradeFeeDenominator: 10000,
	}
	SwapFees = Fees{
		TradeFeeNumerator:        271,
		TradeFeeDenominator:      100000,
		OwnerTradeFeeNumerator:   5,
		OwnerTradeFeeDenominator: 10000,
	}
	OrcaStableFees = Fees{
		TradeFeeNumerator:        70,
		TradeFeeDenominator:      100000,
		OwnerTradeFeeNumerator:   5,
		OwnerTradeFeeDenominator: 10000,
	}
	RaydiumFees = Fees{
		TradeFeeNumerator:        221,
		TradeFeeDenominator:      100000,
		OwnerTradeFeeNumerator:   3,
		OwnerTradeFeeDenominator: 10000,
	}
)

// TradingFee returns the LP fee charged on amount, or false when the schedule
// cannot be evaluated.
func (f Fees) TradingFee(amount *uint256.Int) (*uint256.Int, bool) {
	return calculateFee(amount, f.TradeFeeNumerator, f.TradeFeeDenominator)
}

// OwnerTradingFee returns the protocol fee charged on amount.
func (f Fees) OwnerTradingFee(amount *uint256.Int) (*uint256.Int, bool) {
	return calculateFee(amount, f.OwnerTradeFeeNumerator, f.OwnerTradeFeeDenominator)
}

// Approximate returns 1 - (trade + owner) as a fraction. It does not round the
// way the on-chain program does and is only suitable for sizing estimates.
func (f Fees) Approximate() float64 {
	return 1 - (ratio(f.TradeFeeNumerator, f.TradeFeeDenominator) + ratio(f.OwnerTradeFeeNumerator, f.OwnerTradeFeeDenominator))
}

func ratio(num, den uint64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// calculateFee charges at least one unit whenever the fee is non-zero.
func calculateFee(amount *uint256.Int, num, den uint64) (*uint256.Int, bool) {
	if num == 0 || amount.IsZero() {
		return new(uint256.Int), true
	}
	if den == 0 {
		return nil, false
	}
	fee, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(num))
	if overflow {
		return nil, false
	}
	fee.Div(fee, uint256.NewInt(den))
	if fee.IsZero() {
		fee.SetOne()
	}
	return fee, true
}
