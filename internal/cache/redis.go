package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Backend shared between processes.
//
// Values live under prefix+key. Version tokens live under
// prefix+"version:"+namespace and are bumped with INCR.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client. prefix namespaces every key.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// DialRedis connects to a redis:// URL and verifies the connection.
func DialRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedis(client, prefix), nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Version(ctx context.Context, namespace string) (string, error) {
	key := r.versionKey(namespace)
	if err := r.client.SetNX(ctx, key, initialVersion(time.Now()), 0).Err(); err != nil {
		return "", fmt.Errorf("redis init version %s: %w", namespace, err)
	}
	v, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("redis get version %s: %w", namespace, err)
	}
	return v, nil
}

func (r *Redis) Bump(ctx context.Context, namespace string) (string, error) {
	if _, err := r.Version(ctx, namespace); err != nil {
		return "", err
	}
	v, err := r.client.Incr(ctx, r.versionKey(namespace)).Result()
	if err != nil {
		return "", fmt.Errorf("redis bump version %s: %w", namespace, err)
	}
	return formatVersion(v), nil
}

func (r *Redis) versionKey(namespace string) string {
	return r.prefix + "version:" + namespace
}
