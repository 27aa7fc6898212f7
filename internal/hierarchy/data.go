package hierarchy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/facets/internal/cache"
	"github.com/roach88/facets/internal/ir"
	"github.com/roach88/facets/internal/metrics"
)

// CacheKeyPrefix prefixes the durable cache key of a taxonomy's map.
const CacheKeyPrefix = "taxonomy_hierarchy_"

// CacheKey returns the durable cache key of taxonomy's hierarchy map.
func CacheKey(taxonomy string) string {
	return CacheKeyPrefix + taxonomy
}

// TermSource reads taxonomies and their terms. *store.Store satisfies it.
type TermSource interface {
	Taxonomy(ctx context.Context, name string) (ir.Taxonomy, bool, error)
	Terms(ctx context.Context, taxonomy string) ([]ir.Term, error)
}

// Options configures Data.
type Options struct {
	// Debug skips the durable cache; maps are rebuilt from terms on every
	// memo miss.
	Debug bool

	Logger *slog.Logger
}

// Data serves hierarchy maps per taxonomy. Maps are memoized in process
// and persisted in a durable cache; both are dropped by ClearCache.
//
// Data is safe for concurrent use. Concurrent misses on one taxonomy share
// a single rebuild.
type Data struct {
	source  TermSource
	durable cache.Backend
	debug   bool
	logger  *slog.Logger

	mu           sync.RWMutex
	memo         map[string]*Map
	hierarchical map[string]bool
	generation   map[string]uint64 // bumped by ClearCache
	group        singleflight.Group
}

// New returns a Data reading terms from source. durable may be nil, in
// which case only the in-process memo is used.
func New(source TermSource, durable cache.Backend, opts Options) *Data {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Data{
		source:       source,
		durable:      durable,
		debug:        opts.Debug,
		logger:       logger,
		memo:         make(map[string]*Map),
		hierarchical: make(map[string]bool),
		generation:   make(map[string]uint64),
	}
}

// HierarchyMap returns the hierarchy map of taxonomy. A taxonomy that is
// not hierarchical, or not registered, yields an empty map without reading
// terms or touching either cache.
//
// The returned map is shared; callers must not modify it.
func (d *Data) HierarchyMap(ctx context.Context, taxonomy string) (*Map, error) {
	hierarchical, err := d.isHierarchical(ctx, taxonomy)
	if err != nil {
		return nil, err
	}
	if !hierarchical {
		return emptyMap(), nil
	}

	d.mu.RLock()
	m, ok := d.memo[taxonomy]
	d.mu.RUnlock()
	if ok {
		return m, nil
	}

	v, err, _ := d.group.Do(taxonomy, func() (any, error) {
		return d.load(ctx, taxonomy)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Map), nil
}

// isHierarchical reads the registry flag of taxonomy once per instance.
func (d *Data) isHierarchical(ctx context.Context, taxonomy string) (bool, error) {
	d.mu.RLock()
	h, ok := d.hierarchical[taxonomy]
	d.mu.RUnlock()
	if ok {
		return h, nil
	}

	tax, found, err := d.source.Taxonomy(ctx, taxonomy)
	if err != nil {
		return false, fmt.Errorf("hierarchy %s: %w", taxonomy, err)
	}
	h = found && tax.Hierarchical

	d.mu.Lock()
	d.hierarchical[taxonomy] = h
	d.mu.Unlock()
	return h, nil
}

// load reads the durable cache, rebuilding on a miss, and fills the memo.
// A map loaded across a ClearCache of taxonomy is returned to the caller
// but neither memoized nor persisted.
func (d *Data) load(ctx context.Context, taxonomy string) (*Map, error) {
	gen := d.currentGeneration(taxonomy)

	if !d.debug && d.durable != nil {
		if m, ok := d.readDurable(ctx, taxonomy); ok {
			metrics.Hit(metrics.CacheHierarchy, true)
			d.remember(taxonomy, m, gen)
			return m, nil
		}
		metrics.Hit(metrics.CacheHierarchy, false)
	}

	terms, err := d.source.Terms(ctx, taxonomy)
	if err != nil {
		return nil, fmt.Errorf("hierarchy %s: %w", taxonomy, err)
	}
	m := Build(terms)
	metrics.HierarchyRebuilds.WithLabelValues(taxonomy).Inc()
	d.logger.Debug("hierarchy rebuilt", "taxonomy", taxonomy, "terms", len(terms))

	if !d.remember(taxonomy, m, gen) {
		d.logger.Debug("hierarchy cleared during rebuild", "taxonomy", taxonomy)
		return m, nil
	}
	if !d.debug && d.durable != nil {
		d.persist(ctx, taxonomy, m, gen)
	}
	return m, nil
}

// persist writes m to the durable cache. If taxonomy was cleared while
// writing, the entry is removed again.
func (d *Data) persist(ctx context.Context, taxonomy string, m *Map, gen uint64) {
	key := CacheKey(taxonomy)
	if err := cache.SetJSON(ctx, d.durable, key, m, 0); err != nil {
		d.logger.Warn("hierarchy cache write failed", "taxonomy", taxonomy, "error", err)
		return
	}
	if d.currentGeneration(taxonomy) == gen {
		return
	}
	if err := d.durable.Delete(ctx, key); err != nil {
		d.logger.Warn("hierarchy cache delete failed", "taxonomy", taxonomy, "error", err)
	}
}

// readDurable returns the cached map when it decodes and carries all three
// sections. Anything else is a miss.
func (d *Data) readDurable(ctx context.Context, taxonomy string) (*Map, bool) {
	raw, ok, err := d.durable.Get(ctx, CacheKey(taxonomy))
	if err != nil {
		d.logger.Warn("hierarchy cache read failed", "taxonomy", taxonomy, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, false
	}
	for _, key := range []string{"descendants", "ancestors", "tree"} {
		if v, ok := sections[key]; !ok || string(v) == "null" {
			d.logger.Debug("hierarchy cache entry invalid", "taxonomy", taxonomy, "missing", key)
			return nil, false
		}
	}

	var m Map
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return &m, true
}

// remember memoizes m unless taxonomy was cleared since gen was read.
func (d *Data) remember(taxonomy string, m *Map, gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.generation[taxonomy] != gen {
		return false
	}
	d.memo[taxonomy] = m
	return true
}

func (d *Data) currentGeneration(taxonomy string) uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.generation[taxonomy]
}

// Descendants returns every descendant of termID in taxonomy, or an empty
// slice when it has none.
func (d *Data) Descendants(ctx context.Context, termID int64, taxonomy string) ([]int64, error) {
	m, err := d.HierarchyMap(ctx, taxonomy)
	if err != nil {
		return nil, err
	}
	return cloneIDs(m.Descendants[termID]), nil
}

// Ancestors returns the ancestors of termID, nearest first, or an empty
// slice for a root.
func (d *Data) Ancestors(ctx context.Context, termID int64, taxonomy string) ([]int64, error) {
	m, err := d.HierarchyMap(ctx, taxonomy)
	if err != nil {
		return nil, err
	}
	return cloneIDs(m.Ancestors[termID]), nil
}

// Tree returns the term forest of taxonomy.
func (d *Data) Tree(ctx context.Context, taxonomy string) ([]Node, error) {
	m, err := d.HierarchyMap(ctx, taxonomy)
	if err != nil {
		return nil, err
	}
	return m.Tree, nil
}

// ClearCache drops the memoized and durable maps of exactly taxonomy.
func (d *Data) ClearCache(ctx context.Context, taxonomy string) error {
	d.mu.Lock()
	d.generation[taxonomy]++
	delete(d.memo, taxonomy)
	delete(d.hierarchical, taxonomy)
	d.mu.Unlock()
	d.group.Forget(taxonomy)

	if d.durable == nil {
		return nil
	}
	if err := d.durable.Delete(ctx, CacheKey(taxonomy)); err != nil {
		return fmt.Errorf("clear hierarchy %s: %w", taxonomy, err)
	}
	return nil
}

func cloneIDs(ids []int64) []int64 {
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}
