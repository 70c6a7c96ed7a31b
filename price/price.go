package price

import (
	"context"
	"errors"
	"fmt"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
)

var (
	ErrUnknownPool = errors.New("price: unknown pool")
	ErrUnknownLeg  = errors.New("price: unknown leg")
)

// BalanceFetcher reads the current balance of a token account.
type BalanceFetcher interface {
	TokenBalance(ctx context.Context, account solana.PublicKey) (amount uint64, decimals uint8, err error)
}

// Reserve is one cached pool leg in native units of its currency.
type Reserve struct {
	Amount   uint64 `json:"amount"`
	Decimals uint8  `json:"decimals"`
}

// PoolPrice caches both reserves of one pool. The two reserve accounts change
// together on chain but their notifications arrive independently, so a price
// is only sane once a matched pair of updates has been seen.
type PoolPrice struct {
	reserves [2]Reserve
	updated  [2]bool
	sanity   bool
	applied  [2]appliedEvent
}

// appliedEvent is the last feed event stored for one leg.
type appliedEvent struct {
	amount uint64
	slot   uint64
	seen   bool
}

// NewPoolPrice returns a sane price from already known reserves.
func NewPoolPrice(r0, r1 Reserve) PoolPrice {
	return PoolPrice{reserves: [2]Reserve{r0, r1}, sanity: true}
}

// Init fetches both legs of pool.
func Init(ctx context.Context, fetcher BalanceFetcher, pool *engine.Pool) (PoolPrice, error) {
	var reserves [2]Reserve
	for leg := 0; leg < 2; leg++ {
		amount, decimals, err := fetcher.TokenBalance(ctx, pool.Tokens[leg].Account)
		if err != nil {
			return PoolPrice{}, fmt.Errorf("pool %s leg %d: %w", pool.Name, leg, err)
		}
		reserves[leg] = Reserve{Amount: amount, Decimals: decimals}
	}
	return NewPoolPrice(reserves[0], reserves[1]), nil
}

// Update overwrites the reserve of leg. If the other leg is waiting for its
// counterpart the pair is complete and the price becomes sane again,
// otherwise this leg starts waiting. An event equal to the last one applied
// to leg, same amount at the same slot, is a redelivery and changes nothing.
func (p *PoolPrice) Update(leg int, amount, slot uint64) {
	last := p.applied[leg]
	if last.seen && last.amount == amount && last.slot == slot {
		return
	}
	p.applied[leg] = appliedEvent{amount: amount, slot: slot, seen: true}
	p.reserves[leg].Amount = amount
	if p.updated[1-leg] {
		p.updated[0] = false
		p.updated[1] = false
		p.sanity = true
		return
	}
	p.updated[leg] = true
	p.sanity = false
}

func (p *PoolPrice) Sane() bool {
	return p.sanity
}

// Pending reports whether leg was updated without its counterpart.
func (p *PoolPrice) Pending(leg int) bool {
	return p.updated[leg]
}

func (p *PoolPrice) Reserve(leg int) Reserve {
	return p.reserves[leg]
}

// Amount returns the native reserve entering the pool in direction d.
func (p *PoolPrice) Amount(direction int) float64 {
	return float64(p.reserves[direction].Amount)
}

// Quote prices amountIn, in native units of the input currency, through
// pool. Both reserves and the input are brought to the larger of the two
// decimal counts before the curve runs; out and consumed come back in native
// units of their own currencies. A price that is not sane quotes zero.
func (p *PoolPrice) Quote(amountIn uint64, direction int, pool *engine.Pool) (out, consumed uint64) {
	if !p.sanity || amountIn == 0 {
		return 0, 0
	}

	in := p.reserves[direction]
	dst := p.reserves[1-direction]
	decimals := max(in.Decimals, dst.Decimals)
	scaleIn := pow10(decimals - in.Decimals)
	scaleOut := pow10(decimals - dst.Decimals)

	reserveIn := new(uint256.Int).Mul(uint256.NewInt(in.Amount), scaleIn)
	reserveOut := new(uint256.Int).Mul(uint256.NewInt(dst.Amount), scaleOut)
	amount := new(uint256.Int).Mul(uint256.NewInt(amountIn), scaleIn)

	scaledOut, scaledConsumed := pool.PredictSwap(amount, reserveIn, reserveOut)
	scaledOut.Div(scaledOut, scaleOut)
	scaledConsumed.Div(scaledConsumed, scaleIn)
	if !scaledOut.IsUint64() || !scaledConsumed.IsUint64() {
		return 0, 0
	}
	return scaledOut.Uint64(), scaledConsumed.Uint64()
}

func pow10(n uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
}

// Cache holds one PoolPrice per pool, indexed by pool id. It is owned by a
// single goroutine.
type Cache struct {
	prices []PoolPrice
}

// NewCache fetches the initial reserves of every pool.
func NewCache(ctx context.Context, fetcher BalanceFetcher, pools []engine.Pool) (*Cache, error) {
	prices := make([]PoolPrice, len(pools))
	for i := range pools {
		p, err := Init(ctx, fetcher, &pools[i])
		if err != nil {
			return nil, err
		}
		prices[i] = p
	}
	return &Cache{prices: prices}, nil
}

// NewCacheFromPrices wraps already built prices.
func NewCacheFromPrices(prices []PoolPrice) *Cache {
	return &Cache{prices: prices}
}

// Apply stores one feed event. Legs 0 and 1 are reserves and report true;
// higher legs are auxiliary accounts that move the price without carrying a
// reserve, and report false.
func (c *Cache) Apply(update engine.ReserveUpdate) (bool, error) {
	if update.Pool < 0 || update.Pool >= len(c.prices) {
		return false, fmt.Errorf("%w: %d", ErrUnknownPool, update.Pool)
	}
	if update.Leg < 0 {
		return false, fmt.Errorf("%w: %d", ErrUnknownLeg, update.Leg)
	}
	if update.Leg >= 2 {
		return false, nil
	}
	c.prices[update.Pool].Update(update.Leg, update.Amount, update.Slot)
	return true, nil
}

// Get returns the price of pool. The pointer stays owned by the cache.
func (c *Cache) Get(pool int) *PoolPrice {
	return &c.prices[pool]
}

func (c *Cache) Sane(pool int) bool {
	return c.prices[pool].sanity
}

func (c *Cache) Len() int {
	return len(c.prices)
}
