package curve

import "github.com/holiman/uint256"

// constantProduct solves x*y=k for an input already net of fees. The new
// destination reserve is rounded up and the source reserve re-derived from
// it, so the pool never loses value to rounding.
func (c *calculator) constantProduct(amountIn, reserveIn, reserveOut *uint256.Int) (swapped, received *uint256.Int, ok bool) {
	invariant, overflow := c.a.MulOverflow(reserveIn, reserveOut)
	if overflow {
		return nil, nil, false
	}
	newSource, overflow := c.b.AddOverflow(reserveIn, amountIn)
	if overflow {
		return nil, nil, false
	}

	newDestination, newSource, ok := ceilDiv(invariant, newSource)
	if !ok {
		return nil, nil, false
	}
	if newSource.Lt(reserveIn) || newDestination.Gt(reserveOut) {
		return nil, nil, false
	}

	swapped = new(uint256.Int).Sub(newSource, reserveIn)
	received = new(uint256.Int).Sub(reserveOut, newDestination)
	return swapped, received, true
}
