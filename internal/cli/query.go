package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/facets/internal/engine"
	"github.com/roach88/facets/internal/facets"
	"github.com/roach88/facets/internal/ir"
)

// parseVars parses the optional query-string argument.
func parseVars(args []string) (ir.QueryVars, error) {
	if len(args) == 0 {
		return ir.QueryVars{}, nil
	}
	return ir.ParseQueryVars(args[0])
}

// ProductsResult lists matching product IDs.
type ProductsResult struct {
	ProductIDs []int64 `json:"product_ids"`
	Count      int     `json:"count"`
}

// WriteText implements TextWriter.
func (r ProductsResult) WriteText(w io.Writer) error {
	for _, id := range r.ProductIDs {
		if _, err := fmt.Fprintln(w, id); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d product(s)\n", r.Count)
	return err
}

// NewProductsCommand creates the products command.
func NewProductsCommand(rootOpts *RootOptions) *cobra.Command {
	var mainOnly, archive bool

	cmd := &cobra.Command{
		Use:   "products [query-string]",
		Short: "List products matching a filter query",
		Long: `List the IDs of published products matching every filter in the query
string. With --main, only the stock and taxonomy narrowing of the main
archive query is applied; --archive=false marks a non-archive page.

Example:
  facets products "filter_color=red&query_type_color=or&min_price=10"
  facets products --main "categories=clothing"`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			vars, err := parseVars(args)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeQuery, "invalid query string", err)
			}

			return withEngine(cmd, rootOpts, f, func(ctx context.Context, e *engine.Engine) error {
				var ids []int64
				if mainOnly {
					ids, err = e.Archive(ctx, vars, archive)
				} else {
					ids, err = e.ProductIDs(ctx, vars)
				}
				if err != nil {
					return f.Fail(ExitFailure, ErrCodeQuery, "query failed", err)
				}
				return f.Success(ProductsResult{ProductIDs: ids, Count: len(ids)})
			})
		},
	}

	cmd.Flags().BoolVar(&mainOnly, "main", false, "run the main archive query")
	cmd.Flags().BoolVar(&archive, "archive", true, "treat the main query as a product archive")

	return cmd
}

// ClausesResult is a compiled product query.
type ClausesResult struct {
	SQL   string `json:"sql"`
	Binds []any  `json:"binds"`
}

// WriteText implements TextWriter.
func (r ClausesResult) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintln(w, r.SQL); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "binds: %v\n", r.Binds)
	return err
}

// NewClausesCommand creates the clauses command.
func NewClausesCommand(rootOpts *RootOptions) *cobra.Command {
	var mainOnly bool

	cmd := &cobra.Command{
		Use:   "clauses [query-string]",
		Short: "Print the SQL a filter query compiles to",
		Long: `Build the filter clauses for a query string and print the compiled SQL
with its bound parameters, in the configured database's dialect.

Example:
  facets clauses "filter_stock_status=instock&filter_color=red"
  facets clauses --main "categories=clothing" --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			vars, err := parseVars(args)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeQuery, "invalid query string", err)
			}

			return withEngine(cmd, rootOpts, f, func(ctx context.Context, e *engine.Engine) error {
				sql, binds, err := e.Clauses(ctx, vars, mainOnly)
				if err != nil {
					return f.Fail(ExitFailure, ErrCodeQuery, "failed to build clauses", err)
				}
				if binds == nil {
					binds = []any{}
				}
				return f.Success(ClausesResult{SQL: sql, Binds: binds})
			})
		},
	}

	cmd.Flags().BoolVar(&mainOnly, "main", false, "render the main-query narrowing only")

	return cmd
}

// CountsResult is one facet's counts. Term counts are keyed by slug.
type CountsResult struct {
	Type     string `json:"type"`
	Taxonomy string `json:"taxonomy,omitempty"`
	Counts   any    `json:"counts"`
}

// WriteText implements TextWriter.
func (r CountsResult) WriteText(w io.Writer) error {
	var lines []string
	switch c := r.Counts.(type) {
	case ir.PriceRange:
		lines = append(lines,
			"min_price\t"+nullDecimal(c.MinPrice.Valid, c.MinPrice.Decimal.String()),
			"max_price\t"+nullDecimal(c.MaxPrice.Valid, c.MaxPrice.Decimal.String()),
		)
	case ir.RatingCounts:
		for _, rc := range c {
			lines = append(lines, fmt.Sprintf("%d\t%d", rc.Rating, rc.Count))
		}
	case ir.StockCounts:
		for _, status := range slices.Sorted(maps.Keys(c)) {
			lines = append(lines, fmt.Sprintf("%s\t%d", status, c[status]))
		}
	case map[string]int64:
		for _, slug := range slices.Sorted(maps.Keys(c)) {
			lines = append(lines, fmt.Sprintf("%s\t%d", slug, c[slug]))
		}
	}
	if len(lines) == 0 {
		lines = append(lines, "(no matches)")
	}
	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

func nullDecimal(valid bool, s string) string {
	if !valid {
		return "-"
	}
	return s
}

// NewCountsCommand creates the counts command.
func NewCountsCommand(rootOpts *RootOptions) *cobra.Command {
	var taxonomy string

	cmd := &cobra.Command{
		Use:   "counts <price|stock|rating|attribute|taxonomy> [query-string]",
		Short: "Count one facet for a filter query",
		Long: `Compute one facet for a query string: the price range, stock status or
rating histogram, or the term counts of an attribute or taxonomy named by
--taxonomy. The query is applied as given, including the facet's own
selection.

Example:
  facets counts stock "categories=clothing"
  facets counts attribute --taxonomy pa_color "filter_size=small"`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			filterType := args[0]
			needsTaxonomy := filterType == facets.FilterTypeAttribute || filterType == facets.FilterTypeTaxonomy
			if needsTaxonomy && taxonomy == "" {
				return f.Fail(ExitCommandError, ErrCodeQuery, "invalid arguments",
					fmt.Errorf("%s counts require --taxonomy", filterType))
			}
			vars, err := parseVars(args[1:])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeQuery, "invalid query string", err)
			}

			return withEngine(cmd, rootOpts, f, func(ctx context.Context, e *engine.Engine) error {
				counts, err := e.Count(ctx, filterType, taxonomy, vars)
				if err != nil {
					return f.Fail(ExitFailure, ErrCodeQuery, "failed to count", err)
				}
				if tc, ok := counts.(ir.TermCounts); ok {
					if counts, err = termSlugs(ctx, e, taxonomy, tc); err != nil {
						return f.Fail(ExitFailure, ErrCodeQuery, "failed to resolve terms", err)
					}
				}
				result := CountsResult{Type: filterType, Counts: counts}
				if needsTaxonomy {
					result.Taxonomy = taxonomy
				}
				return f.Success(result)
			})
		},
	}

	cmd.Flags().StringVar(&taxonomy, "taxonomy", "", "attribute or taxonomy to count (e.g. pa_color, product_cat)")

	return cmd
}

// termSlugs keys term counts by slug. Unknown IDs keep their number.
func termSlugs(ctx context.Context, e *engine.Engine, taxonomy string, counts ir.TermCounts) (map[string]int64, error) {
	out := make(map[string]int64, len(counts))
	if len(counts) == 0 {
		return out, nil
	}
	terms, err := e.Store().Terms(ctx, taxonomy)
	if err != nil {
		return nil, err
	}
	slugs := make(map[int64]string, len(terms))
	for _, t := range terms {
		slugs[t.ID] = t.Slug
	}
	for id, n := range counts {
		key, ok := slugs[id]
		if !ok {
			key = strconv.FormatInt(id, 10)
		}
		out[key] = n
	}
	return out, nil
}
