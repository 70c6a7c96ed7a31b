package inspect

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/defistate/defistate-arb-go/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"
)

type fakeSource struct {
	listing []scheduler.CycleStatus
	best    *scheduler.Record
}

func (f *fakeSource) Listing() []scheduler.CycleStatus { return f.listing }
func (f *fakeSource) Best() *scheduler.Record          { return f.best }

type fakeLog struct {
	results []engine.ExecutionResult
	err     error
	asked   int
}

func (f *fakeLog) Recent(_ context.Context, n int) ([]engine.ExecutionResult, error) {
	f.asked = n
	if f.err != nil {
		return nil, f.err
	}
	if n < len(f.results) {
		return f.results[:n], nil
	}
	return f.results, nil
}

func testLogger() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSource() *fakeSource {
	return &fakeSource{
		listing: []scheduler.CycleStatus{
			{ID: 0, Route: "SOL -> USDC -> SOL", Size: 1_500_000_000, Gain: 1_503_000_000, Profit: 3_000_000},
			{ID: 1, Route: "SOL -> USDT -> SOL", Size: 0, Gain: 0, Profit: -5000},
			{ID: 2, Route: "SOL -> RAY -> SOL", Size: 2_000_000_000, Gain: 2_010_000_000, Profit: 10_000_000},
		},
	}
}

func newTestServer(t *testing.T, src Source, log ExecutionLog) http.Handler {
	t.Helper()
	s, err := New(&Config{
		Addr:         "127.0.0.1:0",
		Source:       src,
		Executions:   log,
		BaseDecimals: 9,
		Gatherer:     prometheus.NewRegistry(),
		Logger:       testLogger(),
	})
	require.NoError(t, err)
	return s.Handler()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestNew_ConfigValidation(t *testing.T) {
	valid := func() *Config {
		return &Config{Addr: ":0", Source: testSource(), Gatherer: prometheus.NewRegistry(), Logger: testLogger()}
	}

	testCases := []struct {
		name     string
		mutate   func(c *Config) *Config
		errMatch string
	}{
		{name: "nil config", mutate: func(*Config) *Config { return nil }, errMatch: "cannot be nil"},
		{name: "missing addr", mutate: func(c *Config) *Config { c.Addr = ""; return c }, errMatch: "Addr"},
		{name: "missing source", mutate: func(c *Config) *Config { c.Source = nil; return c }, errMatch: "Source"},
		{name: "missing gatherer", mutate: func(c *Config) *Config { c.Gatherer = nil; return c }, errMatch: "Gatherer"},
		{name: "missing logger", mutate: func(c *Config) *Config { c.Logger = nil; return c }, errMatch: "Logger"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.mutate(valid()))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMatch)
		})
	}
}

func TestServer_Cycles(t *testing.T) {
	h := newTestServer(t, testSource(), nil)

	t.Run("full listing with ui amounts", func(t *testing.T) {
		rec := get(t, h, "/cycles")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var views []CycleView
		require.NoError(t, sonnet.Unmarshal(rec.Body.Bytes(), &views))
		require.Len(t, views, 3)
		assert.Equal(t, "1.5", views[0].SizeUI)
		assert.Equal(t, "1.503", views[0].GainUI)
		assert.Equal(t, "0.003", views[0].ProfitUI)
		assert.Equal(t, "1.002000", views[0].Yield)
		assert.Equal(t, "-0.000005", views[1].ProfitUI)
		assert.Equal(t, "0.000000", views[1].Yield)
	})

	t.Run("profitable sorted and limited", func(t *testing.T) {
		rec := get(t, h, "/cycles?profitable=true&sort=profit&limit=1")
		require.Equal(t, http.StatusOK, rec.Code)

		var views []CycleView
		require.NoError(t, sonnet.Unmarshal(rec.Body.Bytes(), &views))
		require.Len(t, views, 1)
		assert.Equal(t, 2, views[0].ID)
	})

	t.Run("invalid limit", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, get(t, h, "/cycles?limit=abc").Code)
	})
}

func TestServer_Cycle(t *testing.T) {
	h := newTestServer(t, testSource(), nil)

	testCases := []struct {
		name     string
		target   string
		wantCode int
		wantID   int
	}{
		{name: "known", target: "/cycles/2", wantCode: http.StatusOK, wantID: 2},
		{name: "out of range", target: "/cycles/9", wantCode: http.StatusNotFound},
		{name: "negative", target: "/cycles/-1", wantCode: http.StatusNotFound},
		{name: "not a number", target: "/cycles/x", wantCode: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(t, h, tc.target)
			require.Equal(t, tc.wantCode, rec.Code)
			if tc.wantCode != http.StatusOK {
				return
			}
			var view CycleView
			require.NoError(t, sonnet.Unmarshal(rec.Body.Bytes(), &view))
			assert.Equal(t, tc.wantID, view.ID)
		})
	}
}

func TestServer_Best(t *testing.T) {
	src := testSource()
	h := newTestServer(t, src, nil)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/best").Code)

	src.best = &scheduler.Record{Cycle: 2, Route: "SOL -> RAY -> SOL", Profit: 10_000_000, At: time.Unix(1700000000, 0).UTC()}
	rec := get(t, h, "/best")
	require.Equal(t, http.StatusOK, rec.Code)

	var best scheduler.Record
	require.NoError(t, sonnet.Unmarshal(rec.Body.Bytes(), &best))
	assert.Equal(t, 2, best.Cycle)
	assert.Equal(t, int64(10_000_000), best.Profit)
}

func TestServer_Executions(t *testing.T) {
	t.Run("disabled journal", func(t *testing.T) {
		h := newTestServer(t, testSource(), nil)
		assert.Equal(t, http.StatusNotFound, get(t, h, "/executions").Code)
	})

	t.Run("default and explicit limit", func(t *testing.T) {
		log := &fakeLog{results: []engine.ExecutionResult{
			{RequestID: "b", Cycle: 2, Status: engine.StatusSubmitted},
			{RequestID: "a", Cycle: 0, Status: engine.StatusFailed, Error: "boom"},
		}}
		h := newTestServer(t, testSource(), log)

		rec := get(t, h, "/executions")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, defaultExecutionsLimit, log.asked)

		rec = get(t, h, "/executions?limit=1")
		require.Equal(t, http.StatusOK, rec.Code)
		var results []engine.ExecutionResult
		require.NoError(t, sonnet.Unmarshal(rec.Body.Bytes(), &results))
		require.Len(t, results, 1)
		assert.Equal(t, "b", results[0].RequestID)
	})

	t.Run("journal failure", func(t *testing.T) {
		h := newTestServer(t, testSource(), &fakeLog{err: errors.New("down")})
		assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/executions").Code)
	})
}

func TestServer_HealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "arb_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s, err := New(&Config{Addr: ":0", Source: testSource(), Gatherer: reg, Logger: testLogger()})
	require.NoError(t, err)

	rec := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "arb_test_total 1")
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	s, err := New(&Config{Addr: "127.0.0.1:0", Source: testSource(), Gatherer: prometheus.NewRegistry(), Logger: testLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
