package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"trustwatch/internal/trust"
)

// RedisOptions configures OpenRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisStore keeps the document at Key and a counter at Key+":version",
// updated together in one MULTI/EXEC transaction.
type RedisStore struct {
	client     *redis.Client
	key        string
	versionKey string
	owned      bool
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	store := NewRedisStore(client, opts.Key)
	store.owned = true
	return store, nil
}

// NewRedisStore wraps an existing client. The caller keeps ownership of the
// client; Close is a no-op.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "trustwatch:snapshot"
	}
	return &RedisStore{client: client, key: key, versionKey: key + ":version"}
}

// Describe implements Store.
func (s *RedisStore) Describe() string {
	return "redis:" + s.client.Options().Addr + "/" + s.key
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context) (trust.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return trust.NewSnapshot(), nil
	}
	if err != nil {
		return trust.NewSnapshot(), fmt.Errorf("read snapshot: %w", err)
	}
	return decode(data)
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, snap trust.Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key, data, 0)
		pipe.Incr(ctx, s.versionKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Version implements Store.
func (s *RedisStore) Version(ctx context.Context) (Version, error) {
	v, err := s.client.Get(ctx, s.versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read snapshot version: %w", err)
	}
	return Version(v), nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
