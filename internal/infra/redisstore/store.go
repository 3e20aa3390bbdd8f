package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"pdfcache/internal/config"
	"pdfcache/internal/ports"
)

var _ ports.Store = (*Store)(nil)

// Store is the durable key-value client backed by Redis. Connections come
// from go-redis's bounded pool; a caller blocks up to the pool timeout
// rather than opening more.
type Store struct {
	rdb *redis.Client
}

func New(cfg config.Redis) *Store {
	log.Info().Msgf("connecting to redis at %s", cfg.Addr)
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  cfg.SocketTimeout,
		WriteTimeout: cfg.SocketTimeout,
		PoolTimeout:  cfg.SocketTimeout,
	})
	return &Store{rdb: rdb}
}

// Connect verifies the server is reachable before the process starts serving.
func (s *Store) Connect(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return ports.Transient("connect", err)
	}
	log.Ctx(ctx).Info().Msg("connected to redis")
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ports.ErrNotFound
		}
		return nil, ports.Transient("get", err)
	}
	return b, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return ports.Transient("set", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, ports.Transient("delete", err)
	}
	return n, nil
}

// Keys enumerates matching keys with SCAN so a large keyspace never blocks
// the server the way KEYS would.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, pattern, 128).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, ports.Transient("scan", err)
	}
	return keys, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return ports.Transient("ping", err)
	}
	return nil
}

func (s *Store) Close() error { return s.rdb.Close() }
