package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue is a distributed queue. Layout, under a configurable prefix:
//
//	<p>:ready        zset of document keys scored by visible-at (unix ms)
//	<p>:doc:<key>    list of envelopes, head is the next message
//	<p>:lease:<key>  lease token with the visibility timeout as TTL
//	<p>:dead         list of dead-lettered envelopes
//
// Lease expiry is Redis key expiry, so a crashed worker's document becomes
// claimable again without any reaper process.
type RedisQueue struct {
	client *redis.Client
	prefix string
	opts   options
	logger *slog.Logger
}

var _ Queue = (*RedisQueue)(nil)

const defaultRedisPrefix = "memvault:queue"

// RedisQueueOption configures a RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithRedisPrefix overrides the key prefix.
func WithRedisPrefix(prefix string) RedisQueueOption {
	return func(q *RedisQueue) {
		if prefix != "" {
			q.prefix = prefix
		}
	}
}

// NewRedisQueue connects to redisURL and verifies the connection.
func NewRedisQueue(redisURL string, qopts []Option, opts ...RedisQueueOption) (*RedisQueue, error) {
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

	o := defaultOptions()
	for _, opt := range qopts {
		opt(&o)
	}
	q := &RedisQueue{
		client: client,
		prefix: defaultRedisPrefix,
		opts:   o,
		logger: slog.Default().With("component", "redis-queue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	dk := msg.DocumentKey()
	if err := q.client.RPush(ctx, q.docKey(dk), MarshalMessage(msg)).Err(); err != nil {
		return err
	}
	// NX keeps an earlier visible-at (e.g. a retry delay) intact.
	return q.client.ZAddNX(ctx, q.readyKey(), redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: dk,
	}).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	now := time.Now().UnixMilli()
	candidates, err := q.client.ZRangeByScore(ctx, q.readyKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now),
		Count: 16,
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, dk := range candidates {
		token := dk + "|" + uuid.NewString()
		ok, err := q.client.SetNX(ctx, q.leaseKey(dk), token, q.opts.visibility).Result()
		if err != nil {
			return nil, err
		}
		if !ok {
			continue // leased by another worker
		}
		data, err := q.client.LIndex(ctx, q.docKey(dk), 0).Bytes()
		if errors.Is(err, redis.Nil) {
			// Empty document list left behind; clean up and move on.
			q.client.ZRem(ctx, q.readyKey(), dk)
			q.client.Del(ctx, q.leaseKey(dk))
			continue
		}
		if err != nil {
			return nil, err
		}
		msg, err := UnmarshalMessage(data)
		if err != nil {
			return nil, err
		}
		return &Delivery{Message: msg, Lease: token}, nil
	}
	return nil, nil
}

func (q *RedisQueue) Ack(ctx context.Context, lease string) error {
	dk, err := q.verifyLease(ctx, lease)
	if err != nil {
		return err
	}
	if err := q.client.LPop(ctx, q.docKey(dk)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	remaining, err := q.client.LLen(ctx, q.docKey(dk)).Result()
	if err != nil {
		return err
	}
	if remaining == 0 {
		q.client.ZRem(ctx, q.readyKey(), dk)
	} else {
		q.client.ZAdd(ctx, q.readyKey(), redis.Z{
			Score:  float64(time.Now().UnixMilli()),
			Member: dk,
		})
	}
	return q.client.Del(ctx, q.leaseKey(dk)).Err()
}

func (q *RedisQueue) Nack(ctx context.Context, lease string, delay time.Duration) error {
	dk, err := q.verifyLease(ctx, lease)
	if err != nil {
		return err
	}
	data, err := q.client.LIndex(ctx, q.docKey(dk), 0).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if err == nil {
		msg, err := UnmarshalMessage(data)
		if err != nil {
			return err
		}
		msg.Attempt++
		if msg.Attempt > q.opts.maxAttempts {
			q.logger.Warn("message dead-lettered",
				"index", msg.Index, "documentID", msg.DocumentID, "attempts", msg.Attempt)
			if err := q.client.RPush(ctx, q.deadKey(), MarshalMessage(msg)).Err(); err != nil {
				return err
			}
			if err := q.client.LPop(ctx, q.docKey(dk)).Err(); err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			remaining, _ := q.client.LLen(ctx, q.docKey(dk)).Result()
			if remaining == 0 {
				q.client.ZRem(ctx, q.readyKey(), dk)
			}
		} else {
			if err := q.client.LSet(ctx, q.docKey(dk), 0, MarshalMessage(msg)).Err(); err != nil {
				return err
			}
			q.client.ZAdd(ctx, q.readyKey(), redis.Z{
				Score:  float64(time.Now().Add(delay).UnixMilli()),
				Member: dk,
			})
		}
	}
	return q.client.Del(ctx, q.leaseKey(dk)).Err()
}

func (q *RedisQueue) DeadLetters(ctx context.Context) ([]Message, error) {
	rows, err := q.client.LRange(ctx, q.deadKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(rows))
	for _, row := range rows {
		msg, err := UnmarshalMessage([]byte(row))
		if err != nil {
			q.logger.Warn("skipping unreadable dead letter", "err", err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// verifyLease checks the token still owns its document and returns the
// document key embedded in the token.
func (q *RedisQueue) verifyLease(ctx context.Context, lease string) (string, error) {
	dk, _, ok := strings.Cut(lease, "|")
	if !ok {
		return "", ErrUnknownLease
	}
	current, err := q.client.Get(ctx, q.leaseKey(dk)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && current != lease) {
		return "", ErrUnknownLease
	}
	if err != nil {
		return "", err
	}
	return dk, nil
}

func (q *RedisQueue) readyKey() string          { return q.prefix + ":ready" }
func (q *RedisQueue) deadKey() string           { return q.prefix + ":dead" }
func (q *RedisQueue) docKey(dk string) string   { return q.prefix + ":doc:" + dk }
func (q *RedisQueue) leaseKey(dk string) string { return q.prefix + ":lease:" + dk }
