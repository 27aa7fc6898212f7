package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/facets/internal/ir"
	"github.com/roach88/facets/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

//go:embed schema_postgres.sql
var schemaPostgresSQL string

// Schema version tracking (SQLite only):
// 0 - Initial schema (pre-migration)
// 1 - Added idx_attr_term on product_attributes_lookup(term_id)
const currentSchemaVersion = 1

// Store is the catalog database: products, lookup tables, terms,
// taxonomies, tax rates and the durable cache table.
type Store struct {
	db       *sql.DB
	compiler *querysql.SQLCompiler
	closers  []func()

	mu                 sync.RWMutex
	productObservers   []ProductObserver
	termObservers      []TermObserver
	transientObservers []ProductObserver
}

// ProductObserver is called after a product is saved or its transients are
// deleted.
type ProductObserver func(ctx context.Context, productID int64)

// TermObserver is called after a term is saved.
type TermObserver func(ctx context.Context, term ir.Term)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, compiler: querysql.NewSQLCompiler(querysql.SQLite)}, nil
}

// OpenPostgres connects to PostgreSQL through a pgx pool exposed as a
// database/sql handle, and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if _, err := db.ExecContext(ctx, schemaPostgresSQL); err != nil {
		db.Close()
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{
		db:       db,
		compiler: querysql.NewSQLCompiler(querysql.Postgres),
		closers:  []func(){pool.Close},
	}, nil
}

// Close closes the database connection.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	for _, c := range s.closers {
		c()
	}
	return err
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Compiler returns the SQL compiler matching the store's dialect.
func (s *Store) Compiler() *querysql.SQLCompiler {
	return s.compiler
}

// Dialect returns the store's SQL dialect.
func (s *Store) Dialect() querysql.Dialect {
	return s.compiler.Dialect
}

// Query executes hand-written SQL with "?" placeholders, rebinding them for
// the store's dialect. Callers are responsible for closing the returned rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.compiler.Rebind(query), args...)
}

// OnProductSaved registers fn to run after every SaveProduct.
func (s *Store) OnProductSaved(fn ProductObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.productObservers = append(s.productObservers, fn)
}

// OnTermSaved registers fn to run after every SaveTerm.
func (s *Store) OnTermSaved(fn TermObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.termObservers = append(s.termObservers, fn)
}

// OnTransientsDeleted registers fn to run after every DeleteProductTransients.
func (s *Store) OnTransientsDeleted(fn ProductObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transientObservers = append(s.transientObservers, fn)
}

func (s *Store) notifyProduct(ctx context.Context, transient bool, id int64) {
	s.mu.RLock()
	observers := s.productObservers
	if transient {
		observers = s.transientObservers
	}
	fns := append([]ProductObserver(nil), observers...)
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(ctx, id)
	}
}

func (s *Store) notifyTerm(ctx context.Context, term ir.Term) {
	s.mu.RLock()
	fns := append([]TermObserver(nil), s.termObservers...)
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(ctx, term)
	}
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the term index on the attribute lookup table.
// New databases get it from schema.sql; databases created before v1 need it
// added explicitly.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_attr_term
		ON product_attributes_lookup(term_id)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
