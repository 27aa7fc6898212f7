// Package params maps filter dimensions to the query-string parameters that
// select them, and parses those parameters out of query vars.
//
// The parameter vocabulary is derived from the attribute and taxonomy
// registries: each global attribute "color" yields filter_color (with a
// query_type_color companion), the built-in product taxonomies use the
// aliases categories, tags and brands, and any other public product
// taxonomy yields filter_<taxonomy>.
package params
