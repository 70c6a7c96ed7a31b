package curve

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
)

// Kind discriminates the pricing formula of a pool.
type Kind uint8

const (
	// ConstantProduct is the x*y=k invariant.
	ConstantProduct Kind = iota
	// Stable is the amplified stable-swap invariant.
	Stable
	// ExternalOrderBook pools are AMMs backed by an order book. Their reserve
	// accounts are priced with the constant-product formula.
	ExternalOrderBook
)

var (
	// ErrUnknownKind is returned for an unsupported curve kind.
	ErrUnknownKind = errors.New("unknown curve kind")
	// ErrZeroAmplification is returned for a stable curve without an amplification coefficient.
	ErrZeroAmplification = errors.New("stable curve requires a non-zero amplification")
	// ErrZeroDenominator is returned when a fee has a numerator but no denominator.
	ErrZeroDenominator = errors.New("fee denominator is zero")
)

func (k Kind) String() string {
	switch k {
	case ConstantProduct:
		return "constant-product"
	case Stable:
		return "stable"
	case ExternalOrderBook:
		return "orderbook"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind maps the registry spelling of a curve to a Kind. An empty string
// is a constant-product curve.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "constant-product":
		return ConstantProduct, nil
	case "stable":
		return Stable, nil
	case "orderbook":
		return ExternalOrderBook, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Curve is a tagged union over the supported formulas. Amp is only read by
// the Stable arm.
type Curve struct {
	Kind Kind
	Amp  uint64
	Fees Fees
}

// Validate reports configuration errors that would make every swap degenerate.
func Validate(c Curve) error {
	switch c.Kind {
	case ConstantProduct, ExternalOrderBook:
	case Stable:
		if c.Amp == 0 {
			return ErrZeroAmplification
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownKind, c.Kind)
	}
	if c.Fees.TradeFeeNumerator != 0 && c.Fees.TradeFeeDenominator == 0 {
		return fmt.Errorf("%w: trade fee", ErrZeroDenominator)
	}
	if c.Fees.OwnerTradeFeeNumerator != 0 && c.Fees.OwnerTradeFeeDenominator == 0 {
		return fmt.Errorf("%w: owner trade fee", ErrZeroDenominator)
	}
	return nil
}

// calculator holds scratch integers for one swap. Instances are not safe
// for concurrent use and are handed out by calculatorPool.
type calculator struct {
	a, b, c, d, e *uint256.Int
}

var calculatorPool = sync.Pool{
	New: func() any {
		return &calculator{
			a: new(uint256.Int),
			b: new(uint256.Int),
			c: new(uint256.Int),
			d: new(uint256.Int),
			e: new(uint256.Int),
		}
	},
}

// Swap predicts the output of trading amountIn against the given reserves.
// It returns the destination amount and the source amount actually consumed,
// fees included. Degenerate inputs yield (0, 0), which callers treat as
// "do not trade".
func (c Curve) Swap(amountIn, reserveIn, reserveOut *uint256.Int) (out, consumed *uint256.Int) {
	out, consumed = new(uint256.Int), new(uint256.Int)
	if amountIn.IsZero() || reserveIn.IsZero() || reserveOut.IsZero() {
		return out, consumed
	}

	tradeFee, ok := c.Fees.TradingFee(amountIn)
	if !ok {
		return out, consumed
	}
	ownerFee, ok := c.Fees.OwnerTradingFee(amountIn)
	if !ok {
		return out, consumed
	}
	totalFees := new(uint256.Int).Add(tradeFee, ownerFee)
	if totalFees.Cmp(amountIn) >= 0 {
		return out, consumed
	}
	lessFees := new(uint256.Int).Sub(amountIn, totalFees)

	calc := calculatorPool.Get().(*calculator)
	defer calculatorPool.Put(calc)

	var swapped, received *uint256.Int
	switch c.Kind {
	case ConstantProduct, ExternalOrderBook:
		swapped, received, ok = calc.constantProduct(lessFees, reserveIn, reserveOut)
	case Stable:
		swapped, received, ok = calc.stable(c.Amp, lessFees, reserveIn, reserveOut)
	default:
		ok = false
	}
	if !ok || received.IsZero() || swapped.IsZero() {
		return out, consumed
	}

	out.Set(received)
	consumed.Add(swapped, totalFees)
	return out, consumed
}

// SwapUint64 is Swap for amounts that fit in native token units.
func (c Curve) SwapUint64(amountIn, reserveIn, reserveOut uint64) (out, consumed uint64) {
	o, s := c.Swap(uint256.NewInt(amountIn), uint256.NewInt(reserveIn), uint256.NewInt(reserveOut))
	if !o.IsUint64() || !s.IsUint64() {
		return 0, 0
	}
	return o.Uint64(), s.Uint64()
}

// ceilDiv returns (ceil(n/d), n/ceil(n/d) rounded up). It refuses to divide
// a small number by a larger one.
func ceilDiv(n, d *uint256.Int) (quotient, divisor *uint256.Int, ok bool) {
	if d.IsZero() {
		return nil, nil, false
	}
	quotient = new(uint256.Int).Div(n, d)
	if quotient.IsZero() {
		return nil, nil, false
	}
	divisor = new(uint256.Int).Set(d)
	if !new(uint256.Int).Mod(n, d).IsZero() {
		quotient.AddUint64(quotient, 1)
		divisor.Div(n, quotient)
		if !new(uint256.Int).Mod(n, quotient).IsZero() {
			divisor.AddUint64(divisor, 1)
		}
	}
	return quotient, divisor, true
}
