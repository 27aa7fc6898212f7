package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/facets/internal/cache"
)

// CacheTable is a cache.Backend stored in the catalog database's
// cache_entries and cache_versions tables.
type CacheTable struct {
	s   *Store
	now func() time.Time
}

var _ cache.Backend = (*CacheTable)(nil)

// CacheTable returns the store's durable cache backend.
func (s *Store) CacheTable() *CacheTable {
	return &CacheTable{s: s, now: time.Now}
}

func (c *CacheTable) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt int64
	)
	err := c.s.db.QueryRowContext(ctx, c.s.compiler.Rebind(`
		SELECT value, expires_at FROM cache_entries WHERE cache_key = ?
	`), key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if expiresAt != 0 && c.now().UnixNano() >= expiresAt {
		return nil, false, c.Delete(ctx, key)
	}
	return value, true, nil
}

func (c *CacheTable) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = c.now().Add(ttl).UnixNano()
	}
	err := c.s.exec(ctx, c.s.db, `
		INSERT INTO cache_entries (cache_key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (c *CacheTable) Delete(ctx context.Context, key string) error {
	if err := c.s.exec(ctx, c.s.db, `DELETE FROM cache_entries WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

func (c *CacheTable) Version(ctx context.Context, namespace string) (string, error) {
	err := c.s.exec(ctx, c.s.db, `
		INSERT INTO cache_versions (namespace, version) VALUES (?, ?)
		ON CONFLICT (namespace) DO NOTHING
	`, namespace, c.now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("cache init version %s: %w", namespace, err)
	}
	return c.readVersion(ctx, namespace)
}

func (c *CacheTable) Bump(ctx context.Context, namespace string) (string, error) {
	err := c.s.exec(ctx, c.s.db, `
		INSERT INTO cache_versions (namespace, version) VALUES (?, ?)
		ON CONFLICT (namespace) DO UPDATE SET version = cache_versions.version + 1
	`, namespace, c.now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("cache bump version %s: %w", namespace, err)
	}
	return c.readVersion(ctx, namespace)
}

func (c *CacheTable) readVersion(ctx context.Context, namespace string) (string, error) {
	var v int64
	err := c.s.db.QueryRowContext(ctx, c.s.compiler.Rebind(`
		SELECT version FROM cache_versions WHERE namespace = ?
	`), namespace).Scan(&v)
	if err != nil {
		return "", fmt.Errorf("cache read version %s: %w", namespace, err)
	}
	return strconv.FormatInt(v, 10), nil
}

// PurgeExpired deletes expired cache entries and returns how many were
// removed.
func (c *CacheTable) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := c.s.db.ExecContext(ctx, c.s.compiler.Rebind(`
		DELETE FROM cache_entries WHERE expires_at <> 0 AND expires_at <= ?
	`), c.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	return res.RowsAffected()
}
