// Package redis keeps preferences in a single Redis hash so several hosts
// can share one configuration.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultHashKey = "extbox:prefs"

type DB struct {
	client  *redis.Client
	hashKey string
}

// New parses a redis:// URL. The optional query parameter "key" names the hash.
func New(url string) (*DB, error) {
	opts, err := redis.ParseURL(stripKeyParam(url))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	return NewWithClient(redis.NewClient(opts), hashKeyFrom(url)), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(c *redis.Client, hashKey string) *DB {
	if hashKey == "" {
		hashKey = defaultHashKey
	}
	return &DB{client: c, hashKey: hashKey}
}

// EnsureSchema has nothing to create; it verifies connectivity.
func (d *DB) EnsureSchema(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := d.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis unavailable at %s: %w", d.client.Options().Addr, err)
	}
	return nil
}

func (d *DB) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := d.client.HGet(ctx, d.hashKey, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (d *DB) Set(ctx context.Context, key, value string) error {
	return d.client.HSet(ctx, d.hashKey, key, value).Err()
}

func (d *DB) SetMany(ctx context.Context, kv map[string]string) error {
	if len(kv) == 0 {
		return nil
	}
	return d.client.HSet(ctx, d.hashKey, kv).Err()
}

func (d *DB) Delete(ctx context.Context, key string) error {
	return d.client.HDel(ctx, d.hashKey, key).Err()
}

func (d *DB) List(ctx context.Context) (map[string]string, error) {
	return d.client.HGetAll(ctx, d.hashKey).Result()
}

func (d *DB) Clear(ctx context.Context) error {
	return d.client.Del(ctx, d.hashKey).Err()
}

func (d *DB) Close() error { return d.client.Close() }
