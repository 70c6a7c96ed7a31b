// Package inspect serves read-only views of the running engine: the cycle
// listing, the best evaluation, recent executions, health and metrics.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/defistate/defistate-arb-go/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/sugawarayuuta/sonnet"
)

const defaultExecutionsLimit = 50

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Source is the scheduler's concurrent read surface.
type Source interface {
	Listing() []scheduler.CycleStatus
	Best() *scheduler.Record
}

// ExecutionLog lists recent execution results, newest first.
type ExecutionLog interface {
	Recent(ctx context.Context, n int) ([]engine.ExecutionResult, error)
}

// Config holds the dependencies of a Server.
type Config struct {
	Addr   string
	Source Source
	// Executions is optional; without it /executions answers 404.
	Executions ExecutionLog
	// BaseDecimals renders native amounts of the base currency in UI units.
	BaseDecimals uint8
	Gatherer     prometheus.Gatherer
	Logger       Logger
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return errors.New("config: Addr is required")
	}
	if c.Source == nil {
		return errors.New("config: Source cannot be nil")
	}
	if c.Gatherer == nil {
		return errors.New("config: Gatherer cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// CycleView is a CycleStatus with amounts rendered in UI units.
type CycleView struct {
	scheduler.CycleStatus
	SizeUI   string `json:"sizeUi"`
	GainUI   string `json:"gainUi"`
	ProfitUI string `json:"profitUi"`
	Yield    string `json:"yield"`
}

// Server is the inspection HTTP surface.
type Server struct {
	cfg Config
	mux *http.ServeMux
}

// New builds the handler tree. Nothing listens until Serve.
func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("inspect config cannot be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid inspect config: %w", err)
	}
	s := &Server{cfg: *cfg, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	s.mux.HandleFunc("GET /cycles", s.handleCycles)
	s.mux.HandleFunc("GET /cycles/{id}", s.handleCycle)
	s.mux.HandleFunc("GET /best", s.handleBest)
	s.mux.HandleFunc("GET /executions", s.handleExecutions)
	return s, nil
}

// Handler exposes the routes for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve listens on cfg.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.cfg.Logger.Warn("inspect server shutdown error", "err", err)
		} else {
			s.cfg.Logger.Info("inspect server stopped")
		}
	}()

	s.cfg.Logger.Info("inspect server starting", "addr", s.cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("inspect server: %w", err)
	}
	return nil
}

// handleCycles lists every cycle. ?sort=profit orders by profit descending,
// ?profitable=true keeps positive profits only and ?limit=N truncates.
func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	listing := s.cfg.Source.Listing()
	views := make([]CycleView, 0, len(listing))
	onlyProfitable := r.URL.Query().Get("profitable") == "true"
	for _, c := range listing {
		if onlyProfitable && c.Profit <= 0 {
			continue
		}
		views = append(views, s.view(c))
	}

	if r.URL.Query().Get("sort") == "profit" {
		sort.SliceStable(views, func(i, j int) bool { return views[i].Profit > views[j].Profit })
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if limit < len(views) {
			views = views[:limit]
		}
	}
	s.writeJSON(w, views)
}

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid cycle id", http.StatusBadRequest)
		return
	}
	listing := s.cfg.Source.Listing()
	if id < 0 || id >= len(listing) {
		http.Error(w, "unknown cycle", http.StatusNotFound)
		return
	}
	s.writeJSON(w, s.view(listing[id]))
}

func (s *Server) handleBest(w http.ResponseWriter, _ *http.Request) {
	best := s.cfg.Source.Best()
	if best == nil {
		http.Error(w, "no profitable evaluation yet", http.StatusNotFound)
		return
	}
	s.writeJSON(w, best)
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Executions == nil {
		http.Error(w, "execution journal disabled", http.StatusNotFound)
		return
	}
	limit := defaultExecutionsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	results, err := s.cfg.Executions.Recent(r.Context(), limit)
	if err != nil {
		s.cfg.Logger.Warn("failed to read executions", "err", err)
		http.Error(w, "journal unavailable", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, results)
}

func (s *Server) view(c scheduler.CycleStatus) CycleView {
	exp := -int32(s.cfg.BaseDecimals)
	yield := decimal.Zero
	if c.Size > 0 {
		yield = decimal.NewFromUint64(c.Gain).Div(decimal.NewFromUint64(c.Size))
	}
	return CycleView{
		CycleStatus: c,
		SizeUI:      decimal.NewFromUint64(c.Size).Shift(exp).String(),
		GainUI:      decimal.NewFromUint64(c.Gain).Shift(exp).String(),
		ProfitUI:    decimal.New(c.Profit, exp).String(),
		Yield:       yield.StringFixed(6),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	data, err := sonnet.Marshal(v)
	if err != nil {
		s.cfg.Logger.Error("failed to encode response", "err", err)
		http.Error(w, "encoding error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
