package graph

import (
	"strconv"
	"strings"

	"github.com/defistate/defistate-arb-go/bitset"
	"github.com/defistate/defistate-arb-go/engine"
	tokenpoolregistry "github.com/defistate/defistate-arb-go/protocols/tokenpoolregistry"
)

// partialPath is one frontier entry of the breadth-first expansion.
type partialPath struct {
	path          []engine.Leg
	used          bitset.BitSet // pool index -> already on the path
	needsApproval bool
	output        int
}

// constructCyclesState holds the scratch data of a single ConstructCycles run.
type constructCyclesState struct {
	start    int
	pools    []engine.Pool
	legs     *tokenpoolregistry.TokenPoolRegistry
	frontier []partialPath
	results  []engine.Cycle
}

// ConstructCycles enumerates every simple closed walk of at most maxLength
// legs that leaves start and returns to it. A walk is emitted the moment it
// closes and is never extended past that point. The result order follows pool
// order, then direction, round by round, so cycle ids are stable for a given
// pool list.
func ConstructCycles(start int, pools []engine.Pool, maxLength int) []engine.Cycle {
	state := &constructCyclesState{
		start: start,
		pools: pools,
		legs:  tokenpoolregistry.NewTokenPoolRegistry(pools),
	}

	numPools := uint64(len(pools))
	for _, leg := range state.legs.LegsFrom(start) {
		used := bitset.NewBitSet(numPools)
		used.Set(uint64(leg.Pool))
		pool := &pools[leg.Pool]
		state.frontier = append(state.frontier, partialPath{
			path:          []engine.Leg{leg},
			used:          used,
			needsApproval: pool.NeedsApprove,
			output:        pool.Currency(1 - leg.Direction),
		})
	}

	for round := 1; round < maxLength; round++ {
		state.extend()
		if len(state.frontier) == 0 {
			break
		}
	}

	return state.results
}

// extend grows every frontier path by one leg.
func (s *constructCyclesState) extend() {
	next := make([]partialPath, 0, len(s.frontier))
	for _, current := range s.frontier {
		for _, leg := range s.legs.LegsFrom(current.output) {
			if current.used.IsSet(uint64(leg.Pool)) {
				continue
			}

			pool := &s.pools[leg.Pool]
			path := make([]engine.Leg, len(current.path)+1)
			copy(path, current.path)
			path[len(current.path)] = leg
			needsApproval := current.needsApproval || pool.NeedsApprove

			output := pool.Currency(1 - leg.Direction)
			if output == s.start {
				s.results = append(s.results, engine.Cycle{Path: path, NeedsApproval: needsApproval})
				continue
			}

			used := bitset.NewBitSet(uint64(len(s.pools)))
			used.SetFrom(current.used)
			used.Set(uint64(leg.Pool))
			next = append(next, partialPath{
				path:          path,
				used:          used,
				needsApproval: needsApproval,
				output:        output,
			})
		}
	}
	s.frontier = next
}

// PoolDependencies returns, for every pool, the set of cycle indices whose
// path contains that pool.
func PoolDependencies(cycles []engine.Cycle, numPools int) []bitset.BitSet {
	deps := make([]bitset.BitSet, numPools)
	for i := range deps {
		deps[i] = bitset.NewBitSet(uint64(len(cycles)))
	}
	for id, cycle := range cycles {
		for _, leg := range cycle.Path {
			deps[leg.Pool].Set(uint64(id))
		}
	}
	return deps
}

// Describe renders a cycle as "SOL -orca- USDC -raydium- SOL".
func Describe(cycle engine.Cycle, pools []engine.Pool, currencies []engine.Currency) string {
	if len(cycle.Path) == 0 {
		return ""
	}

	var b strings.Builder
	first := &pools[cycle.Path[0].Pool]
	b.WriteString(currencyName(first.Currency(cycle.Path[0].Direction), currencies))
	for _, leg := range cycle.Path {
		pool := &pools[leg.Pool]
		b.WriteString(" -")
		b.WriteString(string(pool.Venue))
		b.WriteString("- ")
		b.WriteString(currencyName(pool.Currency(1-leg.Direction), currencies))
	}
	return b.String()
}

func currencyName(id int, currencies []engine.Currency) string {
	if id >= 0 && id < len(currencies) && currencies[id].Name != "" {
		return currencies[id].Name
	}
	return "#" + strconv.Itoa(id)
}
