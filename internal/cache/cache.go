package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Backend is a durable key/value store with namespace version tokens.
type Backend interface {
	// Get returns the value for key. ok is false on a miss or expiry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Version returns the current version token of namespace, creating one
	// if the namespace has none.
	Version(ctx context.Context, namespace string) (string, error)

	// Bump replaces the version token of namespace and returns the new token.
	Bump(ctx context.Context, namespace string) (string, error)
}

// GetJSON decodes the JSON value stored under key into v.
// A value that does not decode is reported as a miss.
func GetJSON(ctx context.Context, b Backend, key string, v any) (bool, error) {
	raw, ok, err := b.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, nil
	}
	return true, nil
}

// SetJSON encodes v as JSON and stores it under key.
func SetJSON(ctx context.Context, b Backend, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Set(ctx, key, raw, ttl)
}

// initialVersion seeds a namespace's token from the wall clock so a token
// recreated after loss cannot repeat an older one.
func initialVersion(now time.Time) int64 {
	return now.UnixNano()
}

func formatVersion(v int64) string {
	return strconv.FormatInt(v, 10)
}

var (
	_ Backend = (*Memory)(nil)
	_ Backend = (*Redis)(nil)
)
