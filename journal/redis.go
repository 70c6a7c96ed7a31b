package journal

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/redis/go-redis/v9"
	"github.com/sugawarayuuta/sonnet"
)

const defaultStream = "arb:executions"

// RedisJournal appends results to a Redis stream. Each entry keeps a few
// flat fields for redis-cli inspection plus the full JSON payload.
type RedisJournal struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

// NewRedisJournal connects and pings the server.
func NewRedisJournal(ctx context.Context, cfg Config) (*RedisJournal, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("journal: redis address is required")
	}
	stream := cfg.Stream
	if stream == "" {
		stream = defaultStream
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("journal: ping redis %s: %w", cfg.RedisAddr, err)
	}
	return &RedisJournal{rdb: rdb, stream: stream, maxLen: cfg.MaxLen}, nil
}

// Record appends one result.
func (j *RedisJournal) Record(ctx context.Context, result engine.ExecutionResult) error {
	payload, err := sonnet.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: j.stream,
		Values: map[string]interface{}{
			"request":   result.RequestID,
			"cycle":     strconv.Itoa(result.Cycle),
			"status":    string(result.Status),
			"signature": result.Signature,
			"payload":   string(payload),
		},
	}
	if j.maxLen > 0 {
		args.MaxLen = j.maxLen
	}
	if err := j.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", j.stream, err)
	}
	return nil
}

// Recent returns up to n results, newest first.
func (j *RedisJournal) Recent(ctx context.Context, n int) ([]engine.ExecutionResult, error) {
	if n <= 0 {
		return []engine.ExecutionResult{}, nil
	}
	msgs, err := j.rdb.XRevRangeN(ctx, j.stream, "+", "-", int64(n)).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange %s: %w", j.stream, err)
	}
	results := make([]engine.ExecutionResult, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["payload"].(string)
		if !ok {
			return nil, fmt.Errorf("entry %s has no payload", msg.ID)
		}
		var r engine.ExecutionResult
		if err := sonnet.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry %s: %w", msg.ID, err)
		}
		results = append(results, r)
	}
	return results, nil
}

// Close releases the connection pool.
func (j *RedisJournal) Close() error {
	return j.rdb.Close()
}
