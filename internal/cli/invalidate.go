package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/facets/internal/engine"
)

// InvalidateResult reports what was invalidated.
type InvalidateResult struct {
	FilterData bool   `json:"filter_data"`
	Taxonomy   string `json:"taxonomy,omitempty"`
	Purged     int64  `json:"purged"`
}

// expiredPurger is implemented by backends that keep expired entries until
// purged. *store.CacheTable satisfies it.
type expiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// WriteText implements TextWriter.
func (r InvalidateResult) WriteText(w io.Writer) error {
	if r.Taxonomy != "" {
		if _, err := fmt.Fprintf(w, "✓ Cleared %s hierarchy\n", r.Taxonomy); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, "✓ Invalidated cached filter data"); err != nil {
		return err
	}
	if r.Purged > 0 {
		if _, err := fmt.Fprintf(w, "✓ Purged %d expired cache entries\n", r.Purged); err != nil {
			return err
		}
	}
	return nil
}

// NewInvalidateCommand creates the invalidate command.
func NewInvalidateCommand(rootOpts *RootOptions) *cobra.Command {
	var taxonomy string

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Invalidate cached facet counts",
		Long: `Bump the filter data cache version so every cached facet count is
recomputed. With --taxonomy, the taxonomy's cached hierarchy is dropped too.
Expired entries of the sqlite cache table are deleted.

Only durable caches (sqlite, redis) are shared with a running server.

Example:
  facets invalidate
  facets invalidate --taxonomy product_cat`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)

			return withEngine(cmd, rootOpts, f, func(ctx context.Context, e *engine.Engine) error {
				cc := e.CacheController()
				if taxonomy != "" {
					if err := cc.ClearHierarchy(ctx, taxonomy); err != nil {
						return f.Fail(ExitFailure, ErrCodeQuery, "failed to clear hierarchy", err)
					}
				}
				if err := cc.ClearFilterDataCache(ctx); err != nil {
					return f.Fail(ExitFailure, ErrCodeQuery, "failed to invalidate filter data", err)
				}
				result := InvalidateResult{FilterData: true, Taxonomy: taxonomy}
				if p, ok := e.Backend().(expiredPurger); ok {
					n, err := p.PurgeExpired(ctx)
					if err != nil {
						return f.Fail(ExitFailure, ErrCodeQuery, "failed to purge expired cache entries", err)
					}
					result.Purged = n
				}
				return f.Success(result)
			})
		},
	}

	cmd.Flags().StringVar(&taxonomy, "taxonomy", "", "also clear this taxonomy's hierarchy")

	return cmd
}
