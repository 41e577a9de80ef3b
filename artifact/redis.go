package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisHashKey = "memvault:artifacts"

// RedisStore keeps artifacts as fields of a single Redis hash, giving
// distributed deployments a shared artifact store. Field writes are atomic
// on the server, which satisfies the per-key atomicity contract.
type RedisStore struct {
	client  *redis.Client
	hashKey string
	logger  *slog.Logger
}

var _ Store = (*RedisStore)(nil)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisHashKey overrides the hash key artifacts are stored under.
func WithRedisHashKey(key string) RedisOption {
	return func(s *RedisStore) {
		if key != "" {
			s.hashKey = key
		}
	}
}

// NewRedisStore connects to the Redis instance described by redisURL
// (redis://host:port/db) and verifies the connection with a ping.
func NewRedisStore(redisURL string, opts ...RedisOption) (*RedisStore, error) {
	parsed, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	parsed.MaxRetries = 3
	parsed.DialTimeout = 5 * time.Second

	client := redis.NewClient(parsed)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	s := &RedisStore{
		client:  client,
		hashKey: defaultRedisHashKey,
		logger:  slog.Default().With("component", "redis-artifacts"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return s.client.HSet(ctx, s.hashKey, key, data).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.hashKey, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *RedisStore) Delete(ctx context.Context, prefix string) error {
	keys, err := s.scan(ctx, prefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.HDel(ctx, s.hashKey, keys...).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// scan collects hash fields matching prefix. HSCAN MATCH uses glob syntax,
// so glob metacharacters in the prefix must be escaped.
func (s *RedisStore) scan(ctx context.Context, prefix string) ([]string, error) {
	match := globEscape(prefix) + "*"
	var (
		keys   []string
		cursor uint64
	)
	for {
		fields, next, err := s.client.HScan(ctx, s.hashKey, cursor, match, 200).Result()
		if err != nil {
			return nil, err
		}
		// HSCAN returns alternating field/value pairs.
		for i := 0; i < len(fields); i += 2 {
			keys = append(keys, fields[i])
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

var globEscaper = strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`, `\`, `\\`)

func globEscape(s string) string {
	return globEscaper.Replace(s)
}
