package ir

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Stock statuses stored in the lookup table.
const (
	StockInStock     = "instock"
	StockOutOfStock  = "outofstock"
	StockOnBackorder = "onbackorder"
)

// StockStatuses is the stock status vocabulary in display order.
var StockStatuses = []string{StockInStock, StockOutOfStock, StockOnBackorder}

// IsStockStatus reports whether s belongs to the stock status vocabulary.
func IsStockStatus(s string) bool {
	return slices.Contains(StockStatuses, s)
}

// Product types and the status of a visible product.
const (
	ProductTypeSimple    = "simple"
	ProductTypeVariable  = "variable"
	ProductTypeVariation = "variation"

	StatusPublish = "publish"
)

// Built-in product taxonomies.
const (
	TaxonomyCategory = "product_cat"
	TaxonomyTag      = "product_tag"
	TaxonomyBrand    = "product_brand"
)

// AttributeTaxonomyPrefix prefixes every product attribute taxonomy name.
const AttributeTaxonomyPrefix = "pa_"

// Attribute query types. AND requires every selected term, OR any of them.
const (
	QueryTypeAnd = "and"
	QueryTypeOr  = "or"
)

// Tax settings.
const (
	TaxDisplayIncl = "incl"
	TaxDisplayExcl = "excl"

	TaxStatusTaxable  = "taxable"
	TaxStatusShipping = "shipping"
	TaxStatusNone     = "none"
)

// Term is one term of a taxonomy.
// Parent is 0 for root terms.
type Term struct {
	ID       int64  `json:"term_id" yaml:"id"`
	Taxonomy string `json:"taxonomy" yaml:"taxonomy"`
	Slug     string `json:"slug" yaml:"slug"`
	Name     string `json:"name" yaml:"name"`
	Parent   int64  `json:"parent" yaml:"parent"`
}

// Taxonomy describes a registered taxonomy.
type Taxonomy struct {
	Name         string `json:"name" yaml:"name"`
	Hierarchical bool   `json:"hierarchical" yaml:"hierarchical"`
	Public       bool   `json:"public" yaml:"public"`
	// Product marks taxonomies attached to the product object type.
	Product bool `json:"product" yaml:"product"`
}

// Attribute is a registered global product attribute.
type Attribute struct {
	ID    int64  `json:"attribute_id" yaml:"id"`
	Name  string `json:"attribute_name" yaml:"name"`
	Label string `json:"attribute_label" yaml:"label"`
}

// Taxonomy returns the attribute's taxonomy name, e.g. "pa_color".
func (a Attribute) Taxonomy() string {
	return AttributeTaxonomyPrefix + a.Name
}

// TaxRate is one tax rate row. Rate is a percentage (20 means 20%).
type TaxRate struct {
	ID       int64           `json:"tax_rate_id" yaml:"id"`
	Country  string          `json:"country" yaml:"country"`
	Class    string          `json:"tax_class" yaml:"class"`
	Rate     decimal.Decimal `json:"rate" yaml:"rate"`
	Compound bool            `json:"compound" yaml:"compound"`
	Priority int             `json:"priority" yaml:"priority"`
}

// Product is one catalog row together with its lookup-table data.
//
// Attributes maps attribute taxonomy to term slugs; on a variation they are
// its variation attributes. Terms maps any other taxonomy to term slugs.
type Product struct {
	ID            int64               `json:"id" yaml:"id"`
	ParentID      int64               `json:"parent_id" yaml:"parent"`
	Type          string              `json:"type" yaml:"type"`
	Status        string              `json:"status" yaml:"status"`
	Name          string              `json:"name" yaml:"name"`
	MinPrice      decimal.Decimal     `json:"min_price" yaml:"min_price"`
	MaxPrice      decimal.Decimal     `json:"max_price" yaml:"max_price"`
	StockStatus   string              `json:"stock_status" yaml:"stock_status"`
	TaxStatus     string              `json:"tax_status" yaml:"tax_status"`
	TaxClass      string              `json:"tax_class" yaml:"tax_class"`
	AverageRating decimal.Decimal     `json:"average_rating" yaml:"average_rating"`
	RatingCount   int64               `json:"rating_count" yaml:"rating_count"`
	Attributes    map[string][]string `json:"attributes,omitempty" yaml:"attributes"`
	Terms         map[string][]string `json:"terms,omitempty" yaml:"terms"`
}

// ChosenAttribute is the selection for one attribute taxonomy.
type ChosenAttribute struct {
	Taxonomy  string   `json:"taxonomy"`
	Terms     []string `json:"terms"`
	QueryType string   `json:"query_type"`
}

// ChosenTaxonomy is the selection for one taxonomy.
type ChosenTaxonomy struct {
	Taxonomy string   `json:"taxonomy"`
	Terms    []string `json:"terms"`
}

// PriceBounds holds the optional min/max price filter.
type PriceBounds struct {
	Min decimal.NullDecimal
	Max decimal.NullDecimal
}

// IsZero reports whether neither bound is set.
func (b PriceBounds) IsZero() bool {
	return !b.Min.Valid && !b.Max.Valid
}

// PriceRange is the price facet result. Both bounds are null when no
// product matched.
type PriceRange struct {
	MinPrice decimal.NullDecimal `json:"min_price"`
	MaxPrice decimal.NullDecimal `json:"max_price"`
}

// IsEmpty reports whether neither bound is set.
func (r PriceRange) IsEmpty() bool {
	return !r.MinPrice.Valid && !r.MaxPrice.Valid
}

// RatingCount is one bucket of the rating histogram.
type RatingCount struct {
	Rating int   `json:"rating"`
	Count  int64 `json:"count"`
}

// RatingCounts is the rating histogram, highest rating first.
type RatingCounts []RatingCount

// IsEmpty reports whether the histogram has no buckets.
func (c RatingCounts) IsEmpty() bool { return len(c) == 0 }

// StockCounts maps stock status to product count.
type StockCounts map[string]int64

// IsEmpty reports whether no status was counted.
func (c StockCounts) IsEmpty() bool { return len(c) == 0 }

// TermCounts maps term ID to product count.
type TermCounts map[int64]int64

// IsEmpty reports whether no term was counted.
func (c TermCounts) IsEmpty() bool { return len(c) == 0 }
