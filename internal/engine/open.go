package engine

import (
	"context"
	"fmt"

	"github.com/roach88/facets/internal/cache"
	"github.com/roach88/facets/internal/clauses"
	"github.com/roach88/facets/internal/config"
	"github.com/roach88/facets/internal/facets"
	"github.com/roach88/facets/internal/store"
)

// RedisPrefix namespaces every key the engine writes to Redis.
const RedisPrefix = "facets:"

// Open opens the store and cache backend named by cfg and wires an Engine
// over them. opts are applied after the options derived from cfg. The
// caller must Close the engine.
func Open(ctx context.Context, cfg config.Config, opts ...EngineOption) (*Engine, error) {
	s, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	backend, closeBackend, err := OpenBackend(ctx, cfg.Cache, s)
	if err != nil {
		s.Close()
		return nil, err
	}

	base := []EngineOption{
		WithDebug(cfg.Debug),
		WithClauseOptions(clauses.Options{
			HideOutOfStock:     cfg.Shop.HideOutOfStock,
			FailOpenTaxonomies: cfg.Shop.FailOpenTaxonomies,
			ChildrenTTL:        cfg.Cache.ChildrenTTL,
			ChildrenSize:       cfg.Cache.ChildrenSize,
		}),
		WithFacetOptions(facets.WithTTL(cfg.Cache.FacetTTL)),
	}
	if cfg.Shop.TaxEnabled {
		base = append(base, WithTax(cfg.TaxSettings()))
	}

	e := New(s, backend, append(base, opts...)...)
	e.closers = append(e.closers, s.Close)
	if closeBackend != nil {
		e.closers = append(e.closers, closeBackend)
	}
	return e, nil
}

// OpenStore opens the catalog store of db.
func OpenStore(ctx context.Context, db config.Database) (*store.Store, error) {
	switch db.Driver {
	case config.DriverSQLite:
		s, err := store.Open(db.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store %s: %w", db.DSN, err)
		}
		return s, nil
	case config.DriverPostgres:
		s, err := store.OpenPostgres(ctx, db.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", db.Driver)
}

// OpenBackend opens the durable cache named by c. The sqlite backend is
// the cache table of s. The returned close func may be nil.
func OpenBackend(ctx context.Context, c config.Cache, s *store.Store) (cache.Backend, func() error, error) {
	switch c.Backend {
	case config.CacheMemory:
		return cache.NewMemory(), nil, nil
	case config.CacheSQLite:
		return s.CacheTable(), nil, nil
	case config.CacheRedis:
		r, err := cache.DialRedis(ctx, c.RedisURL, RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend %q", c.Backend)
}
