package indexer

import (
	"strconv"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/gagliardetto/solana-go"
)

// IndexableTokenSystem provides fast, indexed access to currency data.
type IndexableTokenSystem struct {
	byID   map[int]engine.Currency
	byMint map[solana.PublicKey]engine.Currency
	byName map[string]engine.Currency
	all    []engine.Currency
}

// NewIndexableTokenSystem creates a new indexed currency system from a raw slice.
func NewIndexableTokenSystem(currencies []engine.Currency) *IndexableTokenSystem {
	byID := make(map[int]engine.Currency, len(currencies))
	byMint := make(map[solana.PublicKey]engine.Currency, len(currencies))
	byName := make(map[string]engine.Currency, len(currencies))

	for _, c := range currencies {
		byID[c.ID] = c
		byMint[c.Mint] = c
		byName[c.Name] = c
	}

	return &IndexableTokenSystem{
		byID:   byID,
		byMint: byMint,
		byName: byName,
		all:    currencies,
	}
}

// GetByID retrieves a currency by its id.
func (its *IndexableTokenSystem) GetByID(id int) (engine.Currency, bool) {
	c, ok := its.byID[id]
	return c, ok
}

// GetByMint retrieves a currency by its mint.
func (its *IndexableTokenSystem) GetByMint(mint solana.PublicKey) (engine.Currency, bool) {
	c, ok := its.byMint[mint]
	return c, ok
}

// Resolve accepts a currency name or a decimal id.
func (its *IndexableTokenSystem) Resolve(ref string) (engine.Currency, bool) {
	if c, ok := its.byName[ref]; ok {
		return c, true
	}
	id, err := strconv.Atoi(ref)
	if err != nil {
		return engine.Currency{}, false
	}
	return its.GetByID(id)
}

// All returns a copy of the slice of all currencies in the system.
func (its *IndexableTokenSystem) All() []engine.Currency {
	allCopy := make([]engine.Currency, len(its.all))
	copy(allCopy, its.all)
	return allCopy
}
