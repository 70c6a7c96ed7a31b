package inspect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sugawarayuuta/sonnet"
)

// Mirror copies the listing and the best record into Redis on an interval
// so dashboards can read them without reaching the engine.
type Mirror struct {
	rdb      *redis.Client
	source   Source
	prefix   string
	interval time.Duration
	logger   Logger
}

// NewMirror creates a mirror writing under "<prefix>:cycles" and
// "<prefix>:best".
func NewMirror(rdb *redis.Client, source Source, prefix string, interval time.Duration, logger Logger) (*Mirror, error) {
	if rdb == nil || source == nil || logger == nil {
		return nil, errors.New("mirror: redis client, source and logger are required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("mirror: interval must be positive, got %s", interval)
	}
	if prefix == "" {
		prefix = "arb"
	}
	return &Mirror{rdb: rdb, source: source, prefix: prefix, interval: interval, logger: logger}, nil
}

// Run publishes on every tick until ctx is cancelled. Failures are logged
// and retried on the next tick.
func (m *Mirror) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Publish(ctx); err != nil {
				m.logger.Warn("failed to mirror listing", "err", err)
			}
		}
	}
}

// Publish writes the current listing and best record once.
func (m *Mirror) Publish(ctx context.Context) error {
	listing, err := sonnet.Marshal(m.source.Listing())
	if err != nil {
		return fmt.Errorf("marshal listing: %w", err)
	}
	pipe := m.rdb.TxPipeline()
	pipe.Set(ctx, m.prefix+":cycles", listing, 0)
	if best := m.source.Best(); best != nil {
		data, err := sonnet.Marshal(best)
		if err != nil {
			return fmt.Errorf("marshal best: %w", err)
		}
		pipe.Set(ctx, m.prefix+":best", data, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror exec: %w", err)
	}
	return nil
}
