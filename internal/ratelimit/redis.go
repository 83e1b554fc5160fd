package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

// RedisConfig selects the redis instance shared by all site instances.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore keeps counters in redis so every instance spends the same budget.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects and pings redis.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, xerrors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrapf(err, "redis ping %s", cfg.Addr)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Increment opens the window with SET NX PX so later hits never push the
// expiry out, then counts the hit and reads the remaining lifetime in the
// same transaction.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	pipe := s.client.TxPipeline()
	pipe.SetNX(ctx, key, 0, window)
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, xerrors.Wrapf(err, "redis increment %s", key)
	}

	left := ttl.Val()
	if left <= 0 {
		// key lost its expiry (written by something else); start over
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, time.Time{}, xerrors.Wrapf(err, "redis expire %s", key)
		}
		left = window
	}
	return incr.Val(), now.Add(left), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return xerrors.Wrapf(err, "redis del %s", key)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
