package curve

import "github.com/holiman/uint256"

const (
	stableCoins      = 2
	stableIterations = 32
)

// stable prices a two-coin stable-swap pool with leverage amp*n. The whole
// input is consumed.
func (c *calculator) stable(amp uint64, amountIn, reserveIn, reserveOut *uint256.Int) (swapped, received *uint256.Int, ok bool) {
	leverage, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(amp), uint256.NewInt(stableCoins))
	if overflow || leverage.IsZero() {
		return nil, nil, false
	}

	newSource, overflow := new(uint256.Int).AddOverflow(reserveIn, amountIn)
	if overflow {
		return nil, nil, false
	}

	d, ok := c.computeD(leverage, reserveIn, reserveOut)
	if !ok {
		return nil, nil, false
	}
	newDestination, ok := computeNewDestination(leverage, newSource, d)
	if !ok || newDestination.Gt(reserveOut) {
		return nil, nil, false
	}

	received = new(uint256.Int).Sub(reserveOut, newDestination)
	return new(uint256.Int).Set(amountIn), received, true
}

// computeD runs Newton's method on the stable-swap invariant.
func (c *calculator) computeD(leverage, amountA, amountB *uint256.Int) (*uint256.Int, bool) {
	sumX := new(uint256.Int).Add(amountA, amountB)
	if sumX.IsZero() {
		return sumX, true
	}
	aTimesCoins := c.a.Mul(amountA, uint256.NewInt(stableCoins))
	bTimesCoins := c.b.Mul(amountB, uint256.NewInt(stableCoins))

	d := new(uint256.Int).Set(sumX)
	for i := 0; i < stableIterations; i++ {
		dProduct := c.c.Set(d)
		if _, overflow := dProduct.MulOverflow(dProduct, d); overflow {
			return nil, false
		}
		dProduct.Div(dProduct, aTimesCoins)
		if _, overflow := dProduct.MulOverflow(dProduct, d); overflow {
			return nil, false
		}
		dProduct.Div(dProduct, bTimesCoins)

		previous := c.d.Set(d)
		next, ok := calculateStep(d, leverage, sumX, dProduct)
		if !ok {
			return nil, false
		}
		d.Set(next)
		if d.Eq(previous) {
			break
		}
	}
	return d, true
}

// calculateStep returns (leverage*S + n*dP) * d / ((leverage-1)*d + (n+1)*dP).
func calculateStep(d, leverage, sumX, dProduct *uint256.Int) (*uint256.Int, bool) {
	leverageMul, o1 := new(uint256.Int).MulOverflow(leverage, sumX)
	dpMul, o2 := new(uint256.Int).MulOverflow(dProduct, uint256.NewInt(stableCoins))
	lVal, o3 := new(uint256.Int).AddOverflow(leverageMul, dpMul)
	if o1 || o2 || o3 {
		return nil, false
	}
	if _, overflow := lVal.MulOverflow(lVal, d); overflow {
		return nil, false
	}

	leverageSub, o4 := new(uint256.Int).MulOverflow(d, new(uint256.Int).SubUint64(leverage, 1))
	coinsSum, o5 := new(uint256.Int).MulOverflow(dProduct, uint256.NewInt(stableCoins+1))
	rVal, o6 := new(uint256.Int).AddOverflow(leverageSub, coinsSum)
	if o4 || o5 || o6 || rVal.IsZero() {
		return nil, false
	}
	return lVal.Div(lVal, rVal), true
}

// computeNewDestination solves y^2 + b*y = c for the destination reserve
// that keeps D constant after the source reserve grows to newSource.
func computeNewDestination(leverage, newSource, d *uint256.Int) (*uint256.Int, bool) {
	// c = D^3 / (n^2 * x * leverage)
	c, overflow := new(uint256.Int).MulOverflow(d, d)
	if overflow {
		return nil, false
	}
	if _, overflow = c.MulOverflow(c, d); overflow {
		return nil, false
	}
	denominator, overflow := new(uint256.Int).MulOverflow(newSource, uint256.NewInt(stableCoins*stableCoins))
	if overflow {
		return nil, false
	}
	if _, overflow = denominator.MulOverflow(denominator, leverage); overflow || denominator.IsZero() {
		return nil, false
	}
	c.Div(c, denominator)

	// b = x + D / leverage
	b := new(uint256.Int).Div(d, leverage)
	b.Add(b, newSource)

	y := new(uint256.Int).Set(d)
	for i := 0; i < stableIterations; i++ {
		numerator, overflow := new(uint256.Int).MulOverflow(y, y)
		if overflow {
			return nil, false
		}
		numerator.Add(numerator, c)

		divisor := new(uint256.Int).Mul(y, uint256.NewInt(2))
		divisor.Add(divisor, b)
		if divisor.Cmp(d) <= 0 {
			return nil, false
		}
		divisor.Sub(divisor, d)

		next, _, ok := ceilDiv(numerator, divisor)
		if !ok {
			return nil, false
		}
		if next.Eq(y) {
			break
		}
		y = next
	}
	return y, true
}
