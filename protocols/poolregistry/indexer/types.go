package indexer

import (
	"github.com/defistate/defistate-arb-go/engine"
	"github.com/gagliardetto/solana-go"
)

// IndexedPoolRegistry defines the methods for accessing indexed pool registry data.
type IndexedPoolRegistry interface {
	GetByID(id int) (engine.Pool, bool)
	GetByName(name string) (engine.Pool, bool)
	LegsByAccount(account solana.PublicKey) []LegRef
	Accounts() []solana.PublicKey
	All() []engine.Pool
}

var _ IndexedPoolRegistry = (*IndexablePoolRegistry)(nil)
