package bitset

import (
	"fmt"
	"math/bits"
)

// NewBitSet returns a zeroed BitSet able to hold len bits.
func NewBitSet(len uint64) BitSet {
	words := (len + 63) / 64
	bits := make([]uint64, words)
	return bits
}

// BitSet is a fixed-size set of small non-negative integers.
// It is not safe for concurrent mutation.
type BitSet []uint64

func (b BitSet) IsSet(index uint64) bool {
	wordPosition := index / 64
	bitPosition := index % 64
	mask := uint64(1) << bitPosition

	return (b[wordPosition] & mask) != 0
}

func (b BitSet) Set(index uint64) {
	wordPosition := index / 64
	bitPosition := index % 64
	mask := uint64(1) << bitPosition

	b[wordPosition] |= mask
}

func (b BitSet) Unset(index uint64) {
	wordPosition := index / 64
	bitPosition := index % 64
	mask := uint64(1) << bitPosition

	b[wordPosition] = b[wordPosition] &^ mask
}

func (b BitSet) Clear() {
	for i := range b {
		b[i] = 0
	}
}

// Fill sets the first n bits and leaves the tail of the last word zero, so
// Count and ForEach never report indices past n.
func (b BitSet) Fill(n uint64) {
	b.Clear()
	full := n / 64
	for i := uint64(0); i < full; i++ {
		b[i] = ^uint64(0)
	}
	if rem := n % 64; rem != 0 {
		b[full] = (uint64(1) << rem) - 1
	}
}

func (b BitSet) SetFrom(o BitSet) {
	mustMatch(b, o)
	copy(b, o)
}

// Or merges o into b.
func (b BitSet) Or(o BitSet) {
	mustMatch(b, o)
	for i, w := range o {
		b[i] |= w
	}
}

// Any reports whether at least one bit is set.
func (b BitSet) Any() bool {
	for _, w := range b {
		if w != 0 {
			return true
		}
	}
	return false
}

// Count returns the number of set bits.
func (b BitSet) Count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}

// ForEach calls fn for every set bit in ascending order.
func (b BitSet) ForEach(fn func(index uint64)) {
	for i, w := range b {
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			fn(uint64(i)*64 + uint64(tz))
			w &= w - 1
		}
	}
}

func mustMatch(b, o BitSet) {
	if len(b) != len(o) {
		panic(fmt.Sprintf("bitsets must be same size: got %d vs %d", len(b), len(o)))
	}
}
