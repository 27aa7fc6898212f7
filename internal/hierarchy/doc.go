// Package hierarchy precomputes term hierarchies of hierarchical
// taxonomies: each term's descendants, its ancestor chain and the nested
// term tree.
//
// Maps are built from one read of a taxonomy's terms and cached twice: in
// a per-instance memo and in a durable cache.Backend under
// "taxonomy_hierarchy_<taxonomy>". A durable entry that lacks any of the
// descendants, ancestors or tree sections is discarded and rebuilt.
package hierarchy
