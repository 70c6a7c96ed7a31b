package tokenpoolregistry

import "github.com/defistate/defistate-arb-go/engine"

// TokenPoolRegistryView is a deep-copied snapshot of the currency graph.
// Adjacency[i] lists the legs whose input currency is Currencies[i].
type TokenPoolRegistryView struct {
	Currencies []int          `json:"currencies"`
	Adjacency  [][]engine.Leg `json:"adjacency"`
}

// TokenPoolRegistry indexes the pool set by input currency. Legs of one
// currency keep pool order, then direction order, so traversals over it
// visit legs exactly as a scan over the pool list would.
type TokenPoolRegistry struct {
	currencyToIndex map[int]int
	currencies      []int
	adjacency       [][]engine.Leg
}

// NewTokenPoolRegistry builds the adjacency from a static pool list.
func NewTokenPoolRegistry(pools []engine.Pool) *TokenPoolRegistry {
	r := &TokenPoolRegistry{
		currencyToIndex: make(map[int]int),
		currencies:      make([]int, 0),
		adjacency:       make([][]engine.Leg, 0),
	}
	for i := range pools {
		for d := 0; d < 2; d++ {
			r.addLeg(pools[i].Currency(d), engine.Leg{Pool: pools[i].ID, Direction: d})
		}
	}
	return r
}

func (r *TokenPoolRegistry) addLeg(currency int, leg engine.Leg) {
	index, exists := r.currencyToIndex[currency]
	if !exists {
		index = len(r.currencies)
		r.currencies = append(r.currencies, currency)
		r.currencyToIndex[currency] = index
		r.adjacency = append(r.adjacency, nil)
	}
	r.adjacency[index] = append(r.adjacency[index], leg)
}

// LegsFrom returns the legs that accept currency as input. The slice is
// shared and must not be modified.
func (r *TokenPoolRegistry) LegsFrom(currency int) []engine.Leg {
	index, ok := r.currencyToIndex[currency]
	if !ok {
		return nil
	}
	return r.adjacency[index]
}

// PoolsForCurrency returns the ids of every pool that trades currency.
func (r *TokenPoolRegistry) PoolsForCurrency(currency int) []int {
	legs := r.LegsFrom(currency)
	if len(legs) == 0 {
		return nil
	}
	pools := make([]int, len(legs))
	for i, leg := range legs {
		pools[i] = leg.Pool
	}
	return pools
}

// View returns a snapshot that shares no memory with the registry.
func (r *TokenPoolRegistry) View() *TokenPoolRegistryView {
	currencies := make([]int, len(r.currencies))
	copy(currencies, r.currencies)

	adjacency := make([][]engine.Leg, len(r.adjacency))
	for i, legs := range r.adjacency {
		if legs == nil {
			continue
		}
		adjacency[i] = make([]engine.Leg, len(legs))
		copy(adjacency[i], legs)
	}

	return &TokenPoolRegistryView{
		Currencies: currencies,
		Adjacency:  adjacency,
	}
}
