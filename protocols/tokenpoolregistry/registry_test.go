package tokenpoolregistry

import (
	"testing"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pool(id, c0, c1 int) engine.Pool {
	return engine.Pool{
		ID:     id,
		Tokens: [2]engine.Token{{Currency: c0}, {Currency: c1}},
	}
}

func TestTokenPoolRegistry(t *testing.T) {
	pools := []engine.Pool{
		pool(0, 0, 1),
		pool(1, 1, 2),
		pool(2, 2, 0),
		pool(3, 1, 0),
	}
	r := NewTokenPoolRegistry(pools)
	require.NotNil(t, r)

	t.Run("LegsFrom keeps pool then direction order", func(t *testing.T) {
		assert.Equal(t, []engine.Leg{
			{Pool: 0, Direction: 0},
			{Pool: 2, Direction: 1},
			{Pool: 3, Direction: 1},
		}, r.LegsFrom(0))

		assert.Equal(t, []engine.Leg{
			{Pool: 0, Direction: 1},
			{Pool: 1, Direction: 0},
			{Pool: 3, Direction: 0},
		}, r.LegsFrom(1))
	})

	t.Run("every leg input matches the currency", func(t *testing.T) {
		for _, c := range []int{0, 1, 2} {
			for _, leg := range r.LegsFrom(c) {
				assert.Equal(t, c, pools[leg.Pool].Currency(leg.Direction))
			}
		}
	})

	t.Run("PoolsForCurrency", func(t *testing.T) {
		assert.Equal(t, []int{1, 2}, r.PoolsForCurrency(2))
		assert.Nil(t, r.PoolsForCurrency(42))
	})

	t.Run("View is a deep copy", func(t *testing.T) {
		view := r.View()
		require.Len(t, view.Currencies, 3)
		require.Len(t, view.Adjacency, 3)

		view.Adjacency[0][0].Pool = 99
		view.Currencies[0] = 99
		assert.Equal(t, 0, r.LegsFrom(0)[0].Pool)
		assert.NotNil(t, r.LegsFrom(0))
	})

	t.Run("empty pool list", func(t *testing.T) {
		empty := NewTokenPoolRegistry(nil)
		assert.Nil(t, empty.LegsFrom(0))
		assert.Len(t, empty.View().Currencies, 0)
	})
}
