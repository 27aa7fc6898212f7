package testutil

import (
	"context"
	_ "embed"
	"path/filepath"
	"testing"

	"github.com/roach88/facets/internal/store"
)

//go:embed testdata/catalog.yaml
var catalogYAML []byte

// CatalogYAML returns the shared test catalog fixture.
func CatalogYAML() []byte {
	return catalogYAML
}

// OpenStore opens an empty temp-dir store closed at test cleanup.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Catalog opens a temp-dir store seeded with the shared test catalog.
//
// Published simple and variable products are 10, 20, 30, 40, 60 and 70;
// 50 is a draft; 11, 12 and 61 are variations.
func Catalog(t testing.TB) *store.Store {
	t.Helper()
	s := OpenStore(t)
	f, err := store.ParseFixture(catalogYAML)
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	if err := s.Seed(context.Background(), f); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	return s
}

// TermID returns the ID of a catalog term, failing the test if it is
// missing.
func TermID(t testing.TB, s *store.Store, taxonomy, slug string) int64 {
	t.Helper()
	term, ok, err := s.TermBySlug(context.Background(), taxonomy, slug)
	if err != nil || !ok {
		t.Fatalf("term %s/%s: ok=%v err=%v", taxonomy, slug, ok, err)
	}
	return term.ID
}
