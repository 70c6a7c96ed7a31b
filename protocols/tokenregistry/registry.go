package tokenregistry

import (
	"errors"
	"fmt"
	"os"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/gagliardetto/solana-go"
	"github.com/sugawarayuuta/sonnet"
)

// ErrEmptyRegistry is returned when a registry file lists no currencies.
var ErrEmptyRegistry = errors.New("currency registry is empty")

// Entry is one currency as written in the registry file.
type Entry struct {
	Name     string `json:"name"`
	Mint     string `json:"mint"`
	Decimals uint8  `json:"decimals"`
	Account  string `json:"account"`
}

// File is the on-disk currency registry. The position of a currency in the
// list is its id.
type File struct {
	Currencies []Entry `json:"currencies"`
}

// Load reads and decodes the registry at path.
func Load(path string) ([]engine.Currency, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read currency registry: %w", err)
	}
	return Decode(data)
}

// Decode parses a registry document and resolves every account identifier.
func Decode(data []byte) ([]engine.Currency, error) {
	var file File
	if err := sonnet.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal currency registry: %w", err)
	}
	if len(file.Currencies) == 0 {
		return nil, ErrEmptyRegistry
	}

	currencies := make([]engine.Currency, len(file.Currencies))
	names := make(map[string]int, len(file.Currencies))
	for i, e := range file.Currencies {
		if e.Name == "" {
			return nil, fmt.Errorf("currency %d: name is required", i)
		}
		if prev, ok := names[e.Name]; ok {
			return nil, fmt.Errorf("currency %d: name %q already used by currency %d", i, e.Name, prev)
		}
		names[e.Name] = i

		mint, err := solana.PublicKeyFromBase58(e.Mint)
		if err != nil {
			return nil, fmt.Errorf("currency %s: invalid mint: %w", e.Name, err)
		}
		account, err := solana.PublicKeyFromBase58(e.Account)
		if err != nil {
			return nil, fmt.Errorf("currency %s: invalid account: %w", e.Name, err)
		}

		currencies[i] = engine.Currency{
			ID:       i,
			Name:     e.Name,
			Mint:     mint,
			Decimals: e.Decimals,
			Account:  account,
		}
	}
	return currencies, nil
}
