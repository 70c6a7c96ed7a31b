package price

import (
	"context"
	"errors"
	"testing"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/defistate/defistate-arb-go/protocols/curve"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFetcher struct {
	balances map[solana.PublicKey]Reserve
	err      error
	calls    int
}

func (m *mockFetcher) TokenBalance(_ context.Context, account solana.PublicKey) (uint64, uint8, error) {
	m.calls++
	if m.err != nil {
		return 0, 0, m.err
	}
	r, ok := m.balances[account]
	if !ok {
		return 0, 0, errors.New("account not found")
	}
	return r.Amount, r.Decimals, nil
}

func testPool(id int) engine.Pool {
	return engine.Pool{
		ID:   id,
		Name: "test",
		Tokens: [2]engine.Token{
			{Currency: 0, Account: solana.NewWallet().PublicKey()},
			{Currency: 1, Account: solana.NewWallet().PublicKey()},
		},
		Curve: curve.Curve{Kind: curve.ConstantProduct},
	}
}

// pairingModel tracks which leg, if any, waits for its counterpart.
type pairingModel struct {
	pending int
}

func (m *pairingModel) apply(leg int) bool {
	if m.pending == 1-leg {
		m.pending = -1
		return true
	}
	m.pending = leg
	return false
}

func TestPoolPrice_PairingOverAllInterleavings(t *testing.T) {
	const maxEvents = 8
	for n := 1; n <= maxEvents; n++ {
		for mask := 0; mask < 1<<n; mask++ {
			p := NewPoolPrice(Reserve{Amount: 1}, Reserve{Amount: 1})
			model := pairingModel{pending: -1}
			var history []int

			for i := 0; i < n; i++ {
				leg := (mask >> i) & 1
				history = append(history, leg)
				p.Update(leg, uint64(i+10), uint64(i))

				expected := model.apply(leg)
				require.Equal(t, expected, p.Sane(), "history %v", history)

				if p.Sane() {
					require.GreaterOrEqual(t, len(history), 2)
					assert.NotEqual(t, history[len(history)-1], history[len(history)-2],
						"a sane price always ends with one update to each leg, history %v", history)
					assert.False(t, p.Pending(0))
					assert.False(t, p.Pending(1))
				} else {
					assert.True(t, p.Pending(leg))
					assert.False(t, p.Pending(1-leg))
				}
				assert.Equal(t, uint64(i+10), p.Reserve(leg).Amount)
			}
		}
	}
}

func TestPoolPrice_Idempotence(t *testing.T) {
	testCases := []struct {
		name   string
		prefix []int
		repeat int
		amount uint64
	}{
		{name: "fresh price", prefix: nil, repeat: 0, amount: 5},
		{name: "leg 1 pending", prefix: []int{1}, repeat: 1, amount: 7},
		{name: "repeat completes the pair", prefix: []int{0}, repeat: 1, amount: 8},
		{name: "after a full pair", prefix: []int{0, 1}, repeat: 1, amount: 9},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPoolPrice(Reserve{Amount: 100, Decimals: 6}, Reserve{Amount: 100, Decimals: 6})
			for _, leg := range tc.prefix {
				p.Update(leg, 1, 1)
			}

			p.Update(tc.repeat, tc.amount, 2)
			first := p
			p.Update(tc.repeat, tc.amount, 2)

			assert.Equal(t, first, p)
		})
	}
}

func TestPoolPrice_Redelivery(t *testing.T) {
	type event struct {
		leg    int
		amount uint64
		slot   uint64
	}
	testCases := []struct {
		name     string
		events   []event
		expected bool
	}{
		{
			name:     "snapshot then the first leg again at the same slot",
			events:   []event{{0, 50, 10}, {1, 70, 10}, {0, 50, 10}},
			expected: true,
		},
		{
			name:     "snapshot then the second leg again at the same slot",
			events:   []event{{0, 50, 10}, {1, 70, 10}, {1, 70, 10}},
			expected: true,
		},
		{
			name:     "same amount at a later slot is a new event",
			events:   []event{{0, 50, 10}, {1, 70, 10}, {1, 70, 11}},
			expected: false,
		},
		{
			name:     "new amount at the same slot is a new event",
			events:   []event{{0, 50, 10}, {1, 70, 10}, {1, 71, 10}},
			expected: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPoolPrice(Reserve{Amount: 1}, Reserve{Amount: 1})
			for _, e := range tc.events {
				p.Update(e.leg, e.amount, e.slot)
			}
			assert.Equal(t, tc.expected, p.Sane())
			last := tc.events[len(tc.events)-1]
			assert.Equal(t, last.amount, p.Reserve(last.leg).Amount)
		})
	}
}

func TestPoolPrice_Quote(t *testing.T) {
	pool := testPool(0)

	t.Run("same decimals matches the curve", func(t *testing.T) {
		p := NewPoolPrice(Reserve{Amount: 1_000_000, Decimals: 6}, Reserve{Amount: 2_000_000, Decimals: 6})
		out, consumed := p.Quote(10_000, 0, &pool)
		wantOut, wantConsumed := pool.Curve.SwapUint64(10_000, 1_000_000, 2_000_000)
		assert.Equal(t, wantOut, out)
		assert.Equal(t, wantConsumed, consumed)
		assert.NotZero(t, out)
	})

	t.Run("mixed decimals come back in native units", func(t *testing.T) {
		// 1.0 of a 9-decimal currency against 1.0 of a 6-decimal one.
		p := NewPoolPrice(Reserve{Amount: 1_000_000_000, Decimals: 9}, Reserve{Amount: 1_000_000, Decimals: 6})

		out, consumed := p.Quote(1_000_000, 0, &pool)
		assert.Equal(t, uint64(999), out)
		assert.NotZero(t, consumed)
		assert.LessOrEqual(t, consumed, uint64(1_000_000))

		out, consumed = p.Quote(1_000, 1, &pool)
		assert.Equal(t, uint64(999_000), out)
		assert.NotZero(t, consumed)
		assert.LessOrEqual(t, consumed, uint64(1_000))
	})

	t.Run("not sane quotes zero", func(t *testing.T) {
		p := NewPoolPrice(Reserve{Amount: 1_000_000, Decimals: 6}, Reserve{Amount: 1_000_000, Decimals: 6})
		p.Update(0, 1_000_000, 1)
		out, consumed := p.Quote(1_000, 0, &pool)
		assert.Zero(t, out)
		assert.Zero(t, consumed)
	})

	t.Run("zero input", func(t *testing.T) {
		p := NewPoolPrice(Reserve{Amount: 1_000_000}, Reserve{Amount: 1_000_000})
		out, _ := p.Quote(0, 0, &pool)
		assert.Zero(t, out)
	})

	t.Run("Amount is the native reserve", func(t *testing.T) {
		p := NewPoolPrice(Reserve{Amount: 123, Decimals: 9}, Reserve{Amount: 456, Decimals: 6})
		assert.Equal(t, 123.0, p.Amount(0))
		assert.Equal(t, 456.0, p.Amount(1))
	})
}

func TestNewCache(t *testing.T) {
	pools := []engine.Pool{testPool(0), testPool(1)}
	fetcher := &mockFetcher{balances: map[solana.PublicKey]Reserve{}}
	for i := range pools {
		fetcher.balances[pools[i].Tokens[0].Account] = Reserve{Amount: uint64(100 * (i + 1)), Decimals: 9}
		fetcher.balances[pools[i].Tokens[1].Account] = Reserve{Amount: uint64(200 * (i + 1)), Decimals: 6}
	}

	cache, err := NewCache(context.Background(), fetcher, pools)
	require.NoError(t, err)
	assert.Equal(t, 4, fetcher.calls)
	assert.Equal(t, 2, cache.Len())

	for i := range pools {
		assert.True(t, cache.Sane(i))
		assert.Equal(t, Reserve{Amount: uint64(200 * (i + 1)), Decimals: 6}, cache.Get(i).Reserve(1))
	}

	t.Run("fetch failure", func(t *testing.T) {
		_, err := NewCache(context.Background(), &mockFetcher{err: errors.New("rpc down")}, pools)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rpc down")
	})
}

func TestCache_Apply(t *testing.T) {
	cache := NewCacheFromPrices([]PoolPrice{
		NewPoolPrice(Reserve{Amount: 10}, Reserve{Amount: 10}),
	})

	testCases := []struct {
		name        string
		update      engine.ReserveUpdate
		expected    bool
		expectedErr error
	}{
		{name: "reserve leg", update: engine.ReserveUpdate{Pool: 0, Leg: 1, Amount: 11}, expected: true},
		{name: "auxiliary leg", update: engine.ReserveUpdate{Pool: 0, Leg: 2, Amount: 99}, expected: false},
		{name: "unknown pool", update: engine.ReserveUpdate{Pool: 3, Leg: 0}, expectedErr: ErrUnknownPool},
		{name: "negative leg", update: engine.ReserveUpdate{Pool: 0, Leg: -1}, expectedErr: ErrUnknownLeg},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := cache.Apply(tc.update)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ok)
		})
	}

	assert.False(t, cache.Sane(0), "leg 1 waits for leg 0")
	assert.Equal(t, uint64(11), cache.Get(0).Reserve(1).Amount)
	assert.Equal(t, uint64(10), cache.Get(0).Reserve(0).Amount)
}
