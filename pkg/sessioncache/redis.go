package sessioncache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key used when RedisStore is created without one.
const DefaultRedisKey = "elvis:session"

// RedisStore shares one session document between hosts. SETNX gives the same
// create-if-absent semantics as FileStore, and atomically so.
type RedisStore struct {
	rdb    redis.UniversalClient
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore returns a store backed by rdb. A zero ttl keeps the document
// until Clear; a positive ttl lets Redis expire it, matching a server-side
// session timeout.
func NewRedisStore(rdb redis.UniversalClient, key string, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &RedisStore{rdb: rdb, key: key, ttl: ttl, logger: logger}
}

// Load returns the cached document, or (nil, nil) if the key is absent.
func (s *RedisStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("sessioncache: redis get %s: %w", s.key, err)
	}

	return data, nil
}

// Save stores doc only if the key does not exist and reports whether it did.
func (s *RedisStore) Save(ctx context.Context, doc []byte) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.key, doc, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("sessioncache: redis setnx %s: %w", s.key, err)
	}

	if ok {
		s.logger.Info("session cache written", slog.String("redis_key", s.key))
	} else {
		s.logger.Debug("session cache already present, not overwriting",
			slog.String("redis_key", s.key),
		)
	}

	return ok, nil
}

// Clear deletes the key. No error if it does not exist.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("sessioncache: redis del %s: %w", s.key, err)
	}

	return nil
}
