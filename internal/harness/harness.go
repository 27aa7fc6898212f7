package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/roach88/facets/internal/cache"
	"github.com/roach88/facets/internal/clauses"
	"github.com/roach88/facets/internal/engine"
	"github.com/roach88/facets/internal/ir"
	"github.com/roach88/facets/internal/store"
	"github.com/roach88/facets/internal/tax"
	"github.com/roach88/facets/internal/testutil"
)

// Harness runs one scenario against a live engine.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	logger *slog.Logger
	seq    int64
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database and memory cache.
//
// Execution flow:
//  1. Create and seed the store from the scenario fixture
//  2. Build an engine with the scenario's shop options
//  3. Execute setup steps
//  4. Execute flow steps, comparing each output with its expect clause
//  5. Evaluate assertions
//
// Setup and query failures are returned as errors. Unmet expectations and
// assertions are recorded in the result.
func Run(scenario *Scenario) (*Result, error) {
	fixture, err := loadFixture(scenario.Fixture)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.Seed(ctx, fixture); err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &Harness{
		store:  st,
		engine: engine.New(st, cache.NewMemory(), engineOptions(scenario.Shop, logger)...),
		logger: logger,
	}
	defer h.engine.Close()

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func loadFixture(path string) (store.Fixture, error) {
	if path == "" {
		return store.ParseFixture(testutil.CatalogYAML())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return store.Fixture{}, fmt.Errorf("failed to read fixture: %w", err)
	}
	return store.ParseFixture(data)
}

func engineOptions(shop Shop, logger *slog.Logger) []engine.EngineOption {
	opts := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithClauseOptions(clauses.Options{
			HideOutOfStock:     shop.HideOutOfStock,
			FailOpenTaxonomies: shop.FailOpenTaxonomies,
		}),
	}
	if t := shop.Tax; t != nil {
		opts = append(opts, engine.WithTax(tax.Settings{
			Enabled:                     true,
			PricesIncludeTax:            t.PricesIncludeTax,
			DisplayShop:                 t.DisplayShop,
			AdjustNonBaseLocationPrices: t.AdjustNonBaseLocationPrices,
			BaseCountry:                 t.BaseCountry,
			CustomerCountry:             t.CustomerCountry,
		}))
	}
	return opts
}

func (h *Harness) next() int64 {
	h.seq++
	return h.seq
}

// executeSetup applies setup steps in order. Catalog writes fire the same
// invalidation events as in production.
func (h *Harness) executeSetup(ctx context.Context, setup []SetupStep, result *Result) error {
	for i, step := range setup {
		action := step.Action()
		switch action {
		case ActionSaveProduct:
			if _, err := h.store.SaveProduct(ctx, *step.SaveProduct); err != nil {
				return fmt.Errorf("setup step %d: %w", i, err)
			}
		case ActionSaveTerm:
			if err := h.saveTerm(ctx, *step.SaveTerm); err != nil {
				return fmt.Errorf("setup step %d: %w", i, err)
			}
		case ActionDeleteTransients:
			h.store.DeleteProductTransients(ctx, step.DeleteTransients)
		case ActionInvalidate:
			cc := h.engine.CacheController()
			if step.Invalidate.Taxonomy != "" {
				if err := cc.ClearHierarchy(ctx, step.Invalidate.Taxonomy); err != nil {
					return fmt.Errorf("setup step %d: %w", i, err)
				}
			}
			if err := cc.ClearFilterDataCache(ctx); err != nil {
				return fmt.Errorf("setup step %d: %w", i, err)
			}
		default:
			return fmt.Errorf("setup step %d: exactly one action is required", i)
		}

		result.addSetup(h.next(), action)
		h.logger.Info("setup step completed", "step", i, "action", action)
	}
	return nil
}

func (h *Harness) saveTerm(ctx context.Context, ft store.FixtureTerm) error {
	term := ir.Term{ID: ft.ID, Taxonomy: ft.Taxonomy, Slug: ft.Slug, Name: ft.Name}
	if ft.Parent != "" {
		parent, ok, err := h.store.TermBySlug(ctx, ft.Taxonomy, ft.Parent)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("unknown parent %q for term %q in %s", ft.Parent, ft.Slug, ft.Taxonomy)
		}
		term.Parent = parent.ID
	}
	_, err := h.store.SaveTerm(ctx, term)
	return err
}

// executeFlow runs each query, records its normalized output and checks it
// against the step's expect clause.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for _, step := range flow {
		vars, err := ir.ParseQueryVars(step.Vars)
		if err != nil {
			return fmt.Errorf("flow step %q: %w", step.Name, err)
		}

		output, err := h.query(ctx, step, vars)
		if err != nil {
			return fmt.Errorf("flow step %q: %w", step.Name, err)
		}
		result.addQuery(h.next(), step, output)

		if step.Expect != nil {
			if err := checkExpect(step, output); err != nil {
				result.AddError(err.Error())
			}
		}

		h.logger.Info("flow step completed", "step", step.Name, "query", step.Query)
	}
	return nil
}

func (h *Harness) query(ctx context.Context, step FlowStep, vars ir.QueryVars) (ir.IRValue, error) {
	switch step.Query {
	case QueryProducts:
		ids, err := h.engine.ProductIDs(ctx, vars)
		if err != nil {
			return nil, err
		}
		return idsValue(ids), nil

	case QueryArchive:
		archive := step.Archive == nil || *step.Archive
		ids, err := h.engine.Archive(ctx, vars, archive)
		if err != nil {
			return nil, err
		}
		return idsValue(ids), nil

	case QueryFacet:
		counts, err := h.engine.Count(ctx, step.Facet, step.Taxonomy, vars)
		if err != nil {
			return nil, err
		}
		return h.facetValue(ctx, step.Taxonomy, counts)

	case QueryFacets:
		set, err := h.engine.Facets(ctx, vars)
		if err != nil {
			return nil, err
		}
		return h.facetSetValue(ctx, set)

	case QueryClauses:
		sql, binds, err := h.engine.Clauses(ctx, vars, step.Main)
		if err != nil {
			return nil, err
		}
		return clausesValue(sql, binds)
	}
	return nil, fmt.Errorf("unknown query %q", step.Query)
}

func checkExpect(step FlowStep, output ir.IRValue) error {
	expected, err := convertToIRValue(step.Expect.Output)
	if err != nil {
		return fmt.Errorf("flow step %q: invalid expected output: %w", step.Name, err)
	}
	want, err := ir.MarshalCanonical(expected)
	if err != nil {
		return fmt.Errorf("flow step %q: invalid expected output: %w", step.Name, err)
	}
	got, err := ir.MarshalCanonical(output)
	if err != nil {
		return fmt.Errorf("flow step %q: %w", step.Name, err)
	}
	if string(want) != string(got) {
		return fmt.Errorf("flow step %q: expected output %s, got %s", step.Name, want, got)
	}
	return nil
}

func idsValue(ids []int64) ir.IRArray {
	out := make(ir.IRArray, len(ids))
	for i, id := range ids {
		out[i] = ir.IRInt(id)
	}
	return out
}

func priceValue(r ir.PriceRange) ir.IRObject {
	out := ir.IRObject{}
	if r.MinPrice.Valid {
		out["min_price"] = ir.IRDecimal(r.MinPrice.Decimal)
	}
	if r.MaxPrice.Valid {
		out["max_price"] = ir.IRDecimal(r.MaxPrice.Decimal)
	}
	return out
}

func stockValue(c ir.StockCounts) ir.IRObject {
	out := make(ir.IRObject, len(c))
	for status, n := range c {
		out[status] = ir.IRInt(n)
	}
	return out
}

func ratingValue(c ir.RatingCounts) ir.IRArray {
	out := make(ir.IRArray, len(c))
	for i, rc := range c {
		out[i] = ir.IRObject{
			"rating": ir.IRInt(rc.Rating),
			"count":  ir.IRInt(rc.Count),
		}
	}
	return out
}

// termsValue keys term counts by slug. A term missing from the store keeps
// its numeric ID.
func (h *Harness) termsValue(ctx context.Context, taxonomy string, c ir.TermCounts) (ir.IRObject, error) {
	out := make(ir.IRObject, len(c))
	if len(c) == 0 {
		return out, nil
	}
	terms, err := h.store.Terms(ctx, taxonomy)
	if err != nil {
		return nil, err
	}
	slugs := make(map[int64]string, len(terms))
	for _, t := range terms {
		slugs[t.ID] = t.Slug
	}
	for id, n := range c {
		key, ok := slugs[id]
		if !ok {
			key = strconv.FormatInt(id, 10)
		}
		out[key] = ir.IRInt(n)
	}
	return out, nil
}

func (h *Harness) facetValue(ctx context.Context, taxonomy string, counts any) (ir.IRValue, error) {
	switch c := counts.(type) {
	case ir.PriceRange:
		return priceValue(c), nil
	case ir.StockCounts:
		return stockValue(c), nil
	case ir.RatingCounts:
		return ratingValue(c), nil
	case ir.TermCounts:
		return h.termsValue(ctx, taxonomy, c)
	}
	return nil, fmt.Errorf("unsupported facet result %T", counts)
}

func (h *Harness) facetSetValue(ctx context.Context, set engine.FacetSet) (ir.IRValue, error) {
	attrs := make(ir.IRObject, len(set.Attributes))
	for taxonomy, c := range set.Attributes {
		v, err := h.termsValue(ctx, taxonomy, c)
		if err != nil {
			return nil, err
		}
		attrs[taxonomy] = v
	}
	taxonomies := make(ir.IRObject, len(set.Taxonomies))
	for taxonomy, c := range set.Taxonomies {
		v, err := h.termsValue(ctx, taxonomy, c)
		if err != nil {
			return nil, err
		}
		taxonomies[taxonomy] = v
	}
	return ir.IRObject{
		"attributes": attrs,
		"price":      priceValue(set.Price),
		"rating":     ratingValue(set.Rating),
		"stock":      stockValue(set.Stock),
		"taxonomies": taxonomies,
	}, nil
}

func clausesValue(sql string, binds []any) (ir.IRValue, error) {
	values := make(ir.IRArray, len(binds))
	for i, b := range binds {
		v, err := convertToIRValue(b)
		if err != nil {
			return nil, fmt.Errorf("bind %d: %w", i, err)
		}
		values[i] = v
	}
	return ir.IRObject{"sql": ir.IRString(sql), "binds": values}, nil
}

// convertToIRValue converts a YAML-parsed value to an IRValue.
// Null is rejected since canonical JSON has no null. Non-integral floats
// become decimals, so they compare equal to the matching price string.
func convertToIRValue(val any) (ir.IRValue, error) {
	if val == nil {
		return nil, fmt.Errorf("null values are forbidden in IR (canonical JSON does not support null)")
	}

	switch v := val.(type) {
	case string:
		return ir.IRString(v), nil
	case int:
		return ir.IRInt(int64(v)), nil
	case int64:
		return ir.IRInt(v), nil
	case float64:
		if v == float64(int64(v)) {
			return ir.IRInt(int64(v)), nil
		}
		return ir.IRDecimal(decimal.NewFromFloat(v)), nil
	case bool:
		return ir.IRBool(v), nil
	case []any:
		arr := make(ir.IRArray, len(v))
		for i, elem := range v {
			irElem, err := convertToIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(ir.IRObject, len(v))
		for key, elem := range v {
			irElem, err := convertToIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			obj[key] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", val)
	}
}
