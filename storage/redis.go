package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements the Store interface using Redis. All keys are
// namespaced under prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
	owned  bool
}

// NewRedisStore creates a new Redis-based store and verifies the connection.
func NewRedisStore(addr, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client, prefix: prefix, owned: true}, nil
}

// NewRedisStoreFromClient wraps an existing client. Close leaves the client
// open.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Get retrieves a value from Redis.
func (rs *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := rs.client.Get(ctx, rs.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis.
func (rs *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return rs.client.Set(ctx, rs.prefix+key, value, 0).Err()
}

// Delete removes a value from Redis. Deleting a missing key is not an error.
func (rs *RedisStore) Delete(ctx context.Context, key string) error {
	return rs.client.Del(ctx, rs.prefix+key).Err()
}

// Clear removes every key under the store's prefix.
func (rs *RedisStore) Clear(ctx context.Context) error {
	iter := rs.client.Scan(ctx, 0, rs.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return rs.client.Del(ctx, keys...).Err()
}

// Close closes the Redis connection if the store created it.
func (rs *RedisStore) Close() error {
	if !rs.owned {
		return nil
	}
	return rs.client.Close()
}

// GetClient returns the underlying Redis client.
func (rs *RedisStore) GetClient() *redis.Client {
	return rs.client
}
