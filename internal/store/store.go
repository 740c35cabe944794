// Package store provides the durable key-value storage behind the prayer
// schedule cache, the notification meta and the geolocation cache.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("store: key not found")

// KV is a flat key-value store. Values are opaque bytes; callers serialize.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// GetJSON loads key into v. It returns ErrNotFound for a missing key.
func GetJSON(ctx context.Context, kv KV, key string, v any) error {
	data, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// SetJSON serializes v and stores it under key.
func SetJSON(ctx context.Context, kv KV, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return kv.Set(ctx, key, data)
}

// Open builds the store selected by backend: "sqlite" (default), "postgres"
// or "redis". dsn is a file path, a postgres URL or a redis address.
func Open(backend, dsn, redisPassword string) (KV, error) {
	switch backend {
	case "", "sqlite":
		return NewSQLStore("sqlite", dsn)
	case "postgres":
		return NewSQLStore("postgres", dsn)
	case "redis":
		return NewRedisStore(dsn, redisPassword)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
