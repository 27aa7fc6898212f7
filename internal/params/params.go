package params

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/roach88/facets/internal/ir"
)

// Filter dimensions accepted by Param.
const (
	TypePrice     = "price"
	TypeRating    = "rating"
	TypeStatus    = "status"
	TypeAttribute = "attribute"
	TypeTaxonomy  = "taxonomy"
)

// Fixed parameter names.
const (
	MinPrice    = "min_price"
	MaxPrice    = "max_price"
	RatingParam = "rating_filter"
	StockStatus = "filter_stock_status"

	FilterPrefix    = "filter_"
	QueryTypePrefix = "query_type_"
)

// taxonomyAliases are the friendly parameter names of the built-in
// taxonomies.
var taxonomyAliases = map[string]string{
	ir.TaxonomyCategory: "categories",
	ir.TaxonomyTag:      "tags",
	ir.TaxonomyBrand:    "brands",
}

// Registry lists registered attributes and taxonomies.
// *store.Store satisfies it.
type Registry interface {
	AttributeTaxonomies(ctx context.Context) ([]ir.Attribute, error)
	Taxonomies(ctx context.Context) ([]ir.Taxonomy, error)
}

// Params is the parameter vocabulary of one registry. The vocabulary is
// built on first use and memoized until Reset.
//
// Params is safe for concurrent use.
type Params struct {
	registry Registry

	mu     sync.Mutex
	params map[string]map[string]string
	keys   []string
}

// New returns a Params reading from registry.
func New(registry Registry) *Params {
	return &Params{registry: registry}
}

// Reset drops the memoized vocabulary. Call it after attributes or
// taxonomies are registered.
func (p *Params) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.params = nil
	p.keys = nil
}

// ParamKeys returns every recognized parameter name, sorted, including the
// query_type_<attribute> companion of each attribute parameter.
func (p *Params) ParamKeys(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.load(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(p.keys), nil
}

// Param returns the parameter-to-target mapping of one dimension. For
// attributes and taxonomies the target is the taxonomy name; for the other
// dimensions it is the parameter itself. An unknown type yields an empty
// map.
func (p *Params) Param(ctx context.Context, typ string) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.load(ctx); err != nil {
		return nil, err
	}
	m, ok := p.params[typ]
	if !ok {
		return map[string]string{}, nil
	}
	return maps.Clone(m), nil
}

// SelectionKeys returns the parameters that select terms of taxonomy,
// sorted. For an attribute this includes its query_type_ companion. An
// unknown taxonomy has none.
func (p *Params) SelectionKeys(ctx context.Context, taxonomy string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.load(ctx); err != nil {
		return nil, err
	}

	var keys []string
	for param, target := range p.params[TypeAttribute] {
		if target == taxonomy {
			keys = append(keys, param, QueryTypePrefix+strings.TrimPrefix(param, FilterPrefix))
		}
	}
	for param, target := range p.params[TypeTaxonomy] {
		if target == taxonomy {
			keys = append(keys, param)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// load builds the vocabulary. Callers hold p.mu.
func (p *Params) load(ctx context.Context) error {
	if p.params != nil {
		return nil
	}

	attrs, err := p.registry.AttributeTaxonomies(ctx)
	if err != nil {
		return fmt.Errorf("load attribute params: %w", err)
	}
	taxonomies, err := p.registry.Taxonomies(ctx)
	if err != nil {
		return fmt.Errorf("load taxonomy params: %w", err)
	}

	params := map[string]map[string]string{
		TypePrice:     {MinPrice: MinPrice, MaxPrice: MaxPrice},
		TypeRating:    {RatingParam: RatingParam},
		TypeStatus:    {StockStatus: StockStatus},
		TypeAttribute: {},
		TypeTaxonomy:  {},
	}
	var keys []string

	for _, a := range attrs {
		name := FilterPrefix + a.Name
		params[TypeAttribute][name] = a.Taxonomy()
		keys = append(keys, QueryTypePrefix+a.Name)
	}
	for _, tax := range taxonomies {
		if strings.HasPrefix(tax.Name, ir.AttributeTaxonomyPrefix) {
			continue
		}
		if alias, ok := taxonomyAliases[tax.Name]; ok {
			params[TypeTaxonomy][alias] = tax.Name
			continue
		}
		if tax.Public && tax.Product {
			params[TypeTaxonomy][FilterPrefix+tax.Name] = tax.Name
		}
	}

	for _, m := range params {
		keys = append(keys, slices.Collect(maps.Keys(m))...)
	}
	slices.Sort(keys)

	p.params = params
	p.keys = slices.Compact(keys)
	return nil
}

// ChosenAttributes returns the attribute selections present in vars,
// ordered by taxonomy. The query type defaults to "and"; any value other
// than "or" is read as "and".
func (p *Params) ChosenAttributes(ctx context.Context, vars ir.QueryVars) ([]ir.ChosenAttribute, error) {
	attrParams, err := p.Param(ctx, TypeAttribute)
	if err != nil {
		return nil, err
	}

	var chosen []ir.ChosenAttribute
	for param, taxonomy := range attrParams {
		terms := slugs(vars.List(param))
		if len(terms) == 0 {
			continue
		}
		name := strings.TrimPrefix(param, FilterPrefix)
		queryType := ir.QueryTypeAnd
		if strings.EqualFold(vars.Get(QueryTypePrefix+name), ir.QueryTypeOr) {
			queryType = ir.QueryTypeOr
		}
		chosen = append(chosen, ir.ChosenAttribute{Taxonomy: taxonomy, Terms: terms, QueryType: queryType})
	}
	slices.SortFunc(chosen, func(a, b ir.ChosenAttribute) int {
		return strings.Compare(a.Taxonomy, b.Taxonomy)
	})
	return chosen, nil
}

// ChosenTaxonomies returns the taxonomy selections present in vars,
// ordered by taxonomy.
func (p *Params) ChosenTaxonomies(ctx context.Context, vars ir.QueryVars) ([]ir.ChosenTaxonomy, error) {
	taxParams, err := p.Param(ctx, TypeTaxonomy)
	if err != nil {
		return nil, err
	}

	var chosen []ir.ChosenTaxonomy
	for param, taxonomy := range taxParams {
		terms := slugs(vars.List(param))
		if len(terms) == 0 {
			continue
		}
		chosen = append(chosen, ir.ChosenTaxonomy{Taxonomy: taxonomy, Terms: terms})
	}
	slices.SortFunc(chosen, func(a, b ir.ChosenTaxonomy) int {
		return strings.Compare(a.Taxonomy, b.Taxonomy)
	})
	return chosen, nil
}

// StockStatuses returns the selected stock statuses as given. They are
// validated when clauses are built.
func StockStatuses(vars ir.QueryVars) []string {
	return vars.List(StockStatus)
}

// PriceBounds parses min_price and max_price. A bound that is not a
// non-negative number is treated as absent.
func PriceBounds(vars ir.QueryVars) ir.PriceBounds {
	return ir.PriceBounds{
		Min: parsePrice(vars.Get(MinPrice)),
		Max: parsePrice(vars.Get(MaxPrice)),
	}
}

func parsePrice(raw string) decimal.NullDecimal {
	if raw == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// Ratings parses rating_filter into distinct ratings between 1 and 5,
// ascending. Other values are dropped.
func Ratings(vars ir.QueryVars) []int {
	var ratings []int
	for _, raw := range vars.List(RatingParam) {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 5 {
			continue
		}
		ratings = append(ratings, n)
	}
	slices.Sort(ratings)
	return slices.Compact(ratings)
}

func slugs(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = ir.SanitizeSlug(s); s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
