// Package cache memoizes upstream lookups behind a key-value store with TTLs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Common TTLs, chosen by how quickly the upstream data changes.
const (
	TTLCounts = 2 * time.Hour
	TTLMeta   = 24 * time.Hour
	TTLStatic = 7 * 24 * time.Hour
)

// Store is a key-value store with per-entry expiry.
type Store interface {
	// Get returns the stored value and true, or false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key derives a stable key from a function name and its arguments.
func Key(fn string, args ...any) string {
	b, err := json.Marshal(args)
	if err != nil {
		b = []byte(fmt.Sprint(args...))
	}
	sum := sha256.Sum256(b)
	return fn + ":" + hex.EncodeToString(sum[:])
}

// Fetch returns the cached value for key, or calls fn and caches its result
// for ttl. Errors from fn are returned and never cached. A broken cache
// never fails the call; it only costs a miss.
func Fetch[T any](ctx context.Context, s Store, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if s != nil {
		if raw, ok, err := s.Get(ctx, key); err == nil && ok {
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				return v, nil
			}
		}
	}

	v, err := fn(ctx)
	if err != nil {
		return v, err
	}
	if s != nil {
		if raw, err := json.Marshal(v); err == nil {
			_ = s.Set(ctx, key, raw, ttl)
		}
	}
	return v, nil
}

// GetJSON decodes a cached JSON value into out. It reports false on a miss.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it for ttl.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}

// Nop is a Store that never holds anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (Nop) Delete(context.Context, string) error { return nil }
