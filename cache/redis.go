// Package cache memoizes computed daily pay in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultTTL bounds how long a memoized result can outlive a missed
// invalidation.
const DefaultTTL = 10 * time.Minute

// Client holds the Redis client
type Client struct {
	Redis *redis.Client
	TTL   time.Duration
	log   logrus.FieldLogger
}

// NewClient parses redisURL and pings the server.
func NewClient(redisURL string, ttl time.Duration, log logrus.FieldLogger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed connecting to redis: %w", err)
	}

	c := Wrap(client, ttl, log)
	c.log.WithField("addr", opts.Addr).Info("redis connected")
	return c, nil
}

// Wrap builds a Client around an existing connection.
func Wrap(rdb *redis.Client, ttl time.Duration, log logrus.FieldLogger) *Client {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{Redis: rdb, TTL: ttl, log: log}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.Redis.Close()
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.Redis.Ping(ctx).Err()
}

// GetJSON decodes the value at key into dst. Reports false on a miss.
func (c *Client) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.Redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores value as JSON with the client TTL.
func (c *Client) SetJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return c.Redis.Set(ctx, key, raw, c.TTL).Err()
}

// DeletePattern deletes all keys matching a pattern
// Uses SCAN for better performance than KEYS command
func (c *Client) DeletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	var deletedCount int

	for {
		var keys []string
		var err error
		keys, cursor, err = c.Redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			if err := c.Redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
			deletedCount += len(keys)
		}

		if cursor == 0 {
			break
		}
	}

	c.log.WithFields(logrus.Fields{
		"pattern": pattern,
		"deleted": deletedCount,
	}).Debug("cache keys deleted")
	return nil
}
