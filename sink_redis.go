package convogen

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ──────────────────────────────────────────────
// Redis checkpoint sink
// ──────────────────────────────────────────────
//
// Stores the serialized dataset under a per-run key so a long run can be
// inspected (or salvaged) from Redis while it is still writing its file.

// RedisSinkConfig configures the Redis checkpoint sink.
type RedisSinkConfig struct {
	Prefix string        // key prefix, default "convogen"
	RunID  string        // required; namespaces this run's checkpoint
	TTL    time.Duration // checkpoint expiry, 0 = keep forever
}

// RedisSink persists dataset snapshots to a Redis key.
type RedisSink struct {
	client redis.UniversalClient
	config RedisSinkConfig
}

// NewRedisSink creates a checkpoint sink on an existing client.
func NewRedisSink(client redis.UniversalClient, config RedisSinkConfig) (*RedisSink, error) {
	if config.RunID == "" {
		return nil, configErrorf("redis sink requires a run id")
	}
	if config.Prefix == "" {
		config.Prefix = "convogen"
	}
	return &RedisSink{client: client, config: config}, nil
}

func (s *RedisSink) key() string {
	return fmt.Sprintf("%s:run:%s", s.config.Prefix, s.config.RunID)
}

func (s *RedisSink) Persist(ctx context.Context, ds *Dataset) error {
	data, err := ds.Marshal()
	if err != nil {
		return fmt.Errorf("marshal dataset: %w", err)
	}
	if err := s.client.Set(ctx, s.key(), data, s.config.TTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key(), err)
	}
	return nil
}

// Load fetches the latest checkpoint for this run, if any.
func (s *RedisSink) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key()).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.key(), err)
	}
	return data, nil
}
