package redisstore

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/pestline/go-auth"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by Store.
const DefaultPrefix = "pestline:"

// Options configures a Store.
type Options struct {
	Prefix string
	// TTL applies to every Set, zero keeps keys until deleted.
	TTL time.Duration
}

// Store is an auth.KeyValueStore backed by Redis, for devices and services
// that share one session across processes.
type Store struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

var _ auth.KeyValueStore = (*Store)(nil)

// NewClient initializes a redis client.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// New wraps rdb.
func New(rdb redis.Cmdable, opts Options) *Store {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix, ttl: opts.TTL}
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, goerrors.Wrap(err, goerrors.CategoryOperation, "redis get failed").
			WithMetadata(map[string]any{"key": key})
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "redis set failed").
			WithMetadata(map[string]any{"key": key})
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.rdb.Del(ctx, full...).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "redis delete failed")
	}
	return nil
}
