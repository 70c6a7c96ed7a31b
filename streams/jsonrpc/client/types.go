package client

import (
	"github.com/gagliardetto/solana-go"
)

// reserveSnapshot is the payload of a "snapshot" event: the balance of every
// watched account at one slot.
type reserveSnapshot struct {
	Slot     uint64         `json:"slot"`
	Balances []balanceEntry `json:"balances"`
}

type balanceEntry struct {
	Account solana.PublicKey `json:"account"`
	Amount  uint64           `json:"amount"`
}

// reserveUpdate is the payload of an "update" event: one account changed.
type reserveUpdate struct {
	Slot    uint64           `json:"slot"`
	Account solana.PublicKey `json:"account"`
	Amount  uint64           `json:"amount"`
}
