package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"chatrelay/internal/config"

	redis "github.com/redis/go-redis/v9"
)

// Client wraps go-redis client to centralize configuration.
type Client struct {
	inner  *redis.Client
	prefix string
}

var errNotInitialized = errors.New("redis client not initialized")

// NewRedisClient creates the redis client from app config.
func NewRedisClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	host := cfg.Redis.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Redis.Port
	if port == 0 {
		port = 6379
	}

	return Dial(fmt.Sprintf("%s:%d", host, port), cfg.Redis.Username, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.KeyPrefix)
}

// Dial connects to addr and verifies the connection with a ping.
func Dial(addr, username, password string, db int, prefix string) (*Client, error) {
	opts := &redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       db,
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	if prefix == "" {
		prefix = "chatrelay"
	}
	return &Client{inner: client, prefix: prefix}, nil
}

// Key namespaces name under the configured prefix.
func (c *Client) Key(name string) string {
	if c == nil || c.prefix == "" {
		return name
	}
	return c.prefix + ":" + name
}

// IncrField increments one field of a hash counter.
func (c *Client) IncrField(ctx context.Context, key, field string, delta int64) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	return c.inner.HIncrBy(ctx, c.Key(key), field, delta).Err()
}

// Counters reads a hash counter. Fields that are not integers are skipped.
func (c *Client) Counters(ctx context.Context, key string) (map[string]int64, error) {
	if c == nil || c.inner == nil {
		return nil, errNotInitialized
	}
	raw, err := c.inner.HGetAll(ctx, c.Key(key)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for field, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}

// Close closes client.
func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}
