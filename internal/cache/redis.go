package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Redis implements Cache on a Redis server, for deployments where
// several API replicas must share one cache.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis cache from a redis:// URL.
func NewRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "cache: parse redis url")
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

// Get implements Cache.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "cache: redis get %s", key)
	}
	return data, nil
}

// Set implements Cache.
func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.client.Set(ctx, key, value, ttl).Err()
	return eris.Wrapf(err, "cache: redis set %s", key)
}

// Delete implements Cache.
func (c *Redis) Delete(ctx context.Context, key string) error {
	err := c.client.Del(ctx, key).Err()
	return eris.Wrapf(err, "cache: redis del %s", key)
}

// DeletePrefix implements Cache. Keys are enumerated with SCAN so a
// large keyspace does not block the server.
func (c *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return eris.Wrapf(err, "cache: redis del prefix %s", prefix)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return eris.Wrapf(err, "cache: redis scan prefix %s", prefix)
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return eris.Wrapf(err, "cache: redis del prefix %s", prefix)
		}
	}
	return nil
}

// Close implements Cache.
func (c *Redis) Close() error {
	return c.client.Close()
}
