package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/facets/internal/engine"
	"github.com/roach88/facets/internal/store"
)

// SeedResult summarizes a seeded fixture.
type SeedResult struct {
	Fixture    string `json:"fixture"`
	Taxonomies int    `json:"taxonomies"`
	Attributes int    `json:"attributes"`
	Terms      int    `json:"terms"`
	TaxRates   int    `json:"tax_rates"`
	Products   int    `json:"products"`
}

// WriteText implements TextWriter.
func (r SeedResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "✓ Seeded %s: %d taxonomies, %d attributes, %d terms, %d tax rates, %d products\n",
		r.Fixture, r.Taxonomies, r.Attributes, r.Terms, r.TaxRates, r.Products)
	return err
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Load a catalog fixture into the store",
		Long: `Load taxonomies, attributes, terms, tax rates and products from a YAML
fixture into the configured store. Existing records with the same IDs are
overwritten and cached facet counts are invalidated.

Example:
  facets seed ./catalog.yaml
  facets seed --config facets.yaml ./catalog.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runSeed(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	fixture, err := store.LoadFixture(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeFixture, "failed to load fixture", err)
	}
	f.VerboseLog("Loaded fixture %s with %d products", path, len(fixture.Products))

	return withEngine(cmd, opts, f, func(ctx context.Context, e *engine.Engine) error {
		if err := e.Store().Seed(ctx, fixture); err != nil {
			return f.Fail(ExitFailure, ErrCodeFixture, "failed to seed store", err)
		}
		e.Params().Reset()

		return f.Success(SeedResult{
			Fixture:    path,
			Taxonomies: len(fixture.Taxonomies),
			Attributes: len(fixture.Attributes),
			Terms:      len(fixture.Terms),
			TaxRates:   len(fixture.TaxRates),
			Products:   len(fixture.Products),
		})
	})
}
