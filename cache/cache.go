// Package cache stores answers and embeddings in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config configures the Redis cache. An empty RedisURL disables caching.
type Config struct {
	RedisURL       string        `yaml:"redis_url"`
	TTL            time.Duration `yaml:"ttl"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// DefaultConfig returns a disabled cache config with a one day TTL.
func DefaultConfig() Config {
	return Config{
		TTL:            24 * time.Hour,
		ConnectTimeout: 5 * time.Second,
	}
}

// Enabled reports whether a Redis URL is configured.
func (c Config) Enabled() bool {
	return c.RedisURL != ""
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.TTL < 0 {
		return fmt.Errorf("cache ttl must not be negative")
	}
	if c.RedisURL != "" {
		if _, err := redis.ParseURL(c.RedisURL); err != nil {
			return fmt.Errorf("cache redis_url: %w", err)
		}
	}
	return nil
}

// scanCount is the SCAN page size and the DEL batch size.
const scanCount = 100

// Cache is a JSON value cache on Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config, opts ...Option) (*Cache, error) {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	redisOpts.DialTimeout = timeout

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	c := &Cache{client: client, ttl: cfg.TTL, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get loads the value at key into v. It reports false on a miss.
func (c *Cache) Get(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores v at key with the configured TTL. A zero TTL never expires.
func (c *Cache) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// DeletePrefix removes every key starting with prefix and returns how many
// were removed.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, prefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("cache scan %s*: %w", prefix, err)
	}

	for batch := range slices.Chunk(keys, scanCount) {
		if err := c.Delete(ctx, batch...); err != nil {
			return 0, fmt.Errorf("cache delete %s*: %w", prefix, err)
		}
	}
	return len(keys), nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// AnswerPrefix starts every answer key.
const AnswerPrefix = "qa:"

// AnswerKey returns the key of a cached answer. scope names the retrieval
// settings the answer was produced with, so engines configured differently
// never share entries.
func AnswerKey(scope, question string) string {
	return AnswerPrefix + digest(scope+"\x00"+question)
}

// EmbeddingKey returns the key of a cached embedding for a model and text.
func EmbeddingKey(model, text string) string {
	return "emb:" + digest(model+":"+text)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
