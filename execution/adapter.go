package execution

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/defistate/defistate-arb-go/engine"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	// ErrUnsupportedDirection is returned for a direction other than 0 or 1.
	ErrUnsupportedDirection = errors.New("adapter: unsupported direction")
	// ErrMissingAccount is returned when a pool lacks an account its venue needs.
	ErrMissingAccount = errors.New("adapter: missing account")
	// ErrUnsupportedVenue is returned when no adapter handles a pool's venue.
	ErrUnsupportedVenue = errors.New("execution: no adapter for venue")
)

// SwapParams describe one hop to encode.
type SwapParams struct {
	Pool      *engine.Pool
	Direction int
	AmountIn  uint64
	// MinimumAmountOut is zero for every hop but the last of a bundle.
	MinimumAmountOut uint64

	// Payer owns the wallet token accounts and pays fees.
	Payer solana.PublicKey
	// Authority signs the token transfer out of UserSource. It is the payer,
	// or a one-shot delegate when the pool requires an approval.
	Authority       solana.PublicKey
	UserSource      solana.PublicKey
	UserDestination solana.PublicKey
	TokenProgram    solana.PublicKey
}

// SwapAdapter encodes swaps for the venues it supports.
type SwapAdapter interface {
	Supports(venue engine.Venue) bool
	BuildSwap(params SwapParams) ([]solana.Instruction, error)
}

// CheckDirection validates a hop direction.
func CheckDirection(direction int) error {
	if direction != 0 && direction != 1 {
		return ErrUnsupportedDirection
	}
	return nil
}

// EncodeSwap lays out an instruction tag followed by the input amount and the
// minimum output, both little-endian u64. Token-swap and raydium share it.
func EncodeSwap(tag uint8, amountIn, minimumOut uint64) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.WriteUint8(tag); err != nil {
		return nil, fmt.Errorf("encode swap: %w", err)
	}
	if err := enc.WriteUint64(amountIn, binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("encode swap: %w", err)
	}
	if err := enc.WriteUint64(minimumOut, binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("encode swap: %w", err)
	}
	return buf.Bytes(), nil
}
