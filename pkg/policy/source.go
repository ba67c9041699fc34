package policy

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// StaticSource serves a snapshot held in memory.
type StaticSource struct {
	mu sync.RWMutex
	h  Health
}

func NewStaticSource(h Health) *StaticSource {
	return &StaticSource{h: h}
}

func (s *StaticSource) Health(context.Context) (Health, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.h, nil
}

// Set replaces the snapshot.
func (s *StaticSource) Set(h Health) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h = h
}

// RedisSource reads the snapshot from a Redis hash with "risk" and
// "compliance" fields, published by whatever process scores the system.
type RedisSource struct {
	client redis.Cmdable
	key    string
}

// DefaultHealthKey is the hash read when no key is configured.
const DefaultHealthKey = "covenant:health"

// NewRedisSource connects to addr.
func NewRedisSource(addr, password string, db int, key string) *RedisSource {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisSourceFromClient(rdb, key)
}

// NewRedisSourceFromClient wraps an existing client.
func NewRedisSourceFromClient(client redis.Cmdable, key string) *RedisSource {
	if key == "" {
		key = DefaultHealthKey
	}
	return &RedisSource{client: client, key: key}
}

func (s *RedisSource) Health(ctx context.Context) (Health, error) {
	fields, err := s.client.HMGet(ctx, s.key, "risk", "compliance").Result()
	if err != nil {
		return Health{}, fmt.Errorf("redis health read: %w", err)
	}
	risk, err := parseField(fields[0], "risk")
	if err != nil {
		return Health{}, err
	}
	compliance, err := parseField(fields[1], "compliance")
	if err != nil {
		return Health{}, err
	}
	return Health{Risk: risk, Compliance: compliance}, nil
}

// Publish writes a snapshot. Used by scorers and tests.
func (s *RedisSource) Publish(ctx context.Context, h Health) error {
	return s.client.HSet(ctx, s.key, "risk", h.Risk, "compliance", h.Compliance).Err()
}

func parseField(v any, name string) (int64, error) {
	str, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("redis health: field %q missing", name)
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis health: field %q: %w", name, err)
	}
	return n, nil
}
