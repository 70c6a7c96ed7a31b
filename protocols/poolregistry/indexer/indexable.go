package indexer

import (
	"github.com/defistate/defistate-arb-go/engine"
	"github.com/gagliardetto/solana-go"
)

// LegRef locates a watched account inside the pool list.
type LegRef struct {
	Pool int
	Leg  int
}

// IndexablePoolRegistry provides fast, indexed access to pool registry data.
type IndexablePoolRegistry struct {
	byID      map[int]engine.Pool
	byName    map[string]engine.Pool
	byAccount map[solana.PublicKey][]LegRef
	all       []engine.Pool
}

// NewIndexablePoolRegistry indexes pools by id, name and every watched account.
func NewIndexablePoolRegistry(pools []engine.Pool) *IndexablePoolRegistry {
	byID := make(map[int]engine.Pool, len(pools))
	byName := make(map[string]engine.Pool, len(pools))
	byAccount := make(map[solana.PublicKey][]LegRef, len(pools)*2)

	for _, p := range pools {
		byID[p.ID] = p
		byName[p.Name] = p
		for leg, account := range p.WatchedAccounts() {
			byAccount[account] = append(byAccount[account], LegRef{Pool: p.ID, Leg: leg})
		}
	}

	return &IndexablePoolRegistry{
		byID:      byID,
		byName:    byName,
		byAccount: byAccount,
		all:       pools,
	}
}

// GetByID retrieves a pool by its id.
func (ipr *IndexablePoolRegistry) GetByID(id int) (engine.Pool, bool) {
	p, ok := ipr.byID[id]
	return p, ok
}

// GetByName retrieves a pool by its configured name.
func (ipr *IndexablePoolRegistry) GetByName(name string) (engine.Pool, bool) {
	p, ok := ipr.byName[name]
	return p, ok
}

// LegsByAccount returns every (pool, leg) that watches account. An account
// shared by two pools yields two refs.
func (ipr *IndexablePoolRegistry) LegsByAccount(account solana.PublicKey) []LegRef {
	return ipr.byAccount[account]
}

// Accounts returns every distinct watched account.
func (ipr *IndexablePoolRegistry) Accounts() []solana.PublicKey {
	accounts := make([]solana.PublicKey, 0, len(ipr.byAccount))
	seen := make(map[solana.PublicKey]struct{}, len(ipr.byAccount))
	for _, p := range ipr.all {
		for _, account := range p.WatchedAccounts() {
			if _, ok := seen[account]; ok {
				continue
			}
			seen[account] = struct{}{}
			accounts = append(accounts, account)
		}
	}
	return accounts
}

// All returns a copy of the slice of all pools in the system.
func (ipr *IndexablePoolRegistry) All() []engine.Pool {
	allCopy := make([]engine.Pool, len(ipr.all))
	copy(allCopy, ipr.all)
	return allCopy
}
