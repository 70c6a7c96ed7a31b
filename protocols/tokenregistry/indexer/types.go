package indexer

import (
	"github.com/defistate/defistate-arb-go/engine"
	"github.com/gagliardetto/solana-go"
)

// IndexedTokenSystem defines the methods for accessing indexed currency data.
type IndexedTokenSystem interface {
	GetByID(id int) (engine.Currency, bool)
	GetByMint(mint solana.PublicKey) (engine.Currency, bool)
	Resolve(ref string) (engine.Currency, bool)
	All() []engine.Currency
}

var _ IndexedTokenSystem = (*IndexableTokenSystem)(nil)
