package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisStore keeps the newest records of each module in a Redis list.
type RedisStore struct {
	client     *backend.Client
	prefix     string
	ttl        time.Duration
	maxEntries int64
}

type Option func(*RedisStore)

// WithPrefix sets the key prefix. Keys are <prefix><module>.
func WithPrefix(prefix string) Option {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL expires a module's history after ttl of inactivity.
func WithTTL(ttl time.Duration) Option {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithMaxEntries bounds the list length per module.
func WithMaxEntries(n int64) Option {
	return func(s *RedisStore) {
		s.maxEntries = n
	}
}

// NewRedisStore connects to addr.
func NewRedisStore(addr, password string, db int, opts ...Option) *RedisStore {
	return NewFromClient(backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewFromClient wraps an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *RedisStore {
	s := &RedisStore{
		client:     client,
		prefix:     "uvmgen:history:",
		maxEntries: 500,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(module string) string {
	return s.prefix + module
}

// Append pushes rec to the front of its module's list.
func (s *RedisStore) Append(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling history record: %w", err)
	}
	key := s.key(rec.Module)

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	if s.maxEntries > 0 {
		pipe.LTrim(ctx, key, 0, s.maxEntries-1)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending history record: %w", err)
	}
	return nil
}

// List returns up to limit records of module, newest first. An empty stage
// matches every stage.
func (s *RedisStore) List(ctx context.Context, module, stage string, limit int) ([]Record, error) {
	items, err := s.client.LRange(ctx, s.key(module), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	var out []Record
	for _, item := range items {
		var rec Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		if stage != "" && rec.Stage != stage {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
