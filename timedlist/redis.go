package timedlist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
)

// KeyPrefix namespaces every key written by a RedisSet.
const KeyPrefix = "twitchbot:"

// RedisSet is a Set backed by Redis keys with a TTL, so membership survives
// restarts and is shared by every bot process using the same Redis.
type RedisSet struct {
	client   redis.Cmdable
	prefix   string
	interval time.Duration
}

// NewRedisSet returns a set storing members under KeyPrefix+name+":".
func NewRedisSet(client redis.Cmdable, name string, interval time.Duration) *RedisSet {
	return &RedisSet{client: client, prefix: KeyPrefix + name + ":", interval: interval}
}

func (s *RedisSet) key(k string) string { return s.prefix + k }

// Add sets the member key with the set's interval as TTL.
func (s *RedisSet) Add(ctx context.Context, key string) error {
	if err := s.client.Set(ctx, s.key(key), 1, s.interval).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key(key), err)
	}
	return nil
}

// Contains reports whether the member key exists.
func (s *RedisSet) Contains(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", s.key(key), err)
	}
	return n > 0, nil
}

// Remove deletes the member key.
func (s *RedisSet) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", s.key(key), err)
	}
	return nil
}

// DialRedis connects to database db at addr and pings it with exponential
// backoff.
func DialRedis(ctx context.Context, addr, password string, db int, maxRetries uint64) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	err := backoff.Retry(func() error {
		if err := client.Ping(ctx).Err(); err != nil {
			slog.Warn("redis ping failed, retrying", slog.String("addr", addr), slog.Any("err", err))
			return err
		}
		return nil
	}, b)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	slog.Info("connected to redis", slog.String("addr", addr))
	return client, nil
}
