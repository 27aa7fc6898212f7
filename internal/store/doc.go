// Package store provides the catalog database for the product filter engine.
//
// The store holds:
//   - Products and the denormalized product_meta_lookup table (price range,
//     stock status, tax status/class, average rating)
//   - product_attributes_lookup: one row per (product, attribute term), with
//     variations recorded against their parent
//   - Terms, term taxonomy rows and term relationships
//   - The taxonomy and attribute registries
//   - Tax classes and tax rates
//   - The durable cache tables backing CacheTable
//
// # Dialects
//
// Open uses SQLite (mattn/go-sqlite3) with an embedded schema and
// user_version migrations. OpenPostgres uses pgx through database/sql. All
// hand-written SQL uses "?" placeholders and is rebound for the dialect;
// filter queries are built as queryir trees and compiled by querysql, so
// values never appear in SQL text.
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// # Observers
//
// SaveProduct, SaveTerm and DeleteProductTransients notify registered
// observers after the write commits. The cache controller uses them to
// invalidate facet counts and hierarchy maps.
package store
