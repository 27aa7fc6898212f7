package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/facets/internal/engine"
	"github.com/roach88/facets/internal/hierarchy"
)

// HierarchyResult is the term forest of a taxonomy.
type HierarchyResult struct {
	Taxonomy string           `json:"taxonomy"`
	Tree     []hierarchy.Node `json:"tree"`
}

// WriteText implements TextWriter.
func (r HierarchyResult) WriteText(w io.Writer) error {
	if len(r.Tree) == 0 {
		_, err := fmt.Fprintf(w, "%s has no terms\n", r.Taxonomy)
		return err
	}
	return writeNodes(w, r.Tree)
}

func writeNodes(w io.Writer, nodes []hierarchy.Node) error {
	for _, n := range nodes {
		if _, err := fmt.Fprintf(w, "%s%s (%d)\n", strings.Repeat("  ", n.Depth), n.Slug, n.TermID); err != nil {
			return err
		}
		if err := writeNodes(w, n.Children); err != nil {
			return err
		}
	}
	return nil
}

// NewHierarchyCommand creates the hierarchy command.
func NewHierarchyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hierarchy <taxonomy>",
		Short: "Print the term tree of a taxonomy",
		Long: `Print the terms of a taxonomy as a tree. Flat taxonomies print as a single
level.

Example:
  facets hierarchy product_cat
  facets hierarchy product_cat --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			taxonomy := args[0]

			return withEngine(cmd, rootOpts, f, func(ctx context.Context, e *engine.Engine) error {
				tree, err := e.Hierarchy().Tree(ctx, taxonomy)
				if err != nil {
					return f.Fail(ExitFailure, ErrCodeQuery, "failed to build hierarchy", err)
				}
				if len(tree) == 0 {
					if tree, err = flatTree(ctx, e, taxonomy); err != nil {
						return f.Fail(ExitFailure, ErrCodeQuery, "failed to list terms", err)
					}
				}
				return f.Success(HierarchyResult{Taxonomy: taxonomy, Tree: tree})
			})
		},
	}
	return cmd
}

// flatTree lists the terms of a taxonomy without a hierarchy as roots.
func flatTree(ctx context.Context, e *engine.Engine, taxonomy string) ([]hierarchy.Node, error) {
	terms, err := e.Store().Terms(ctx, taxonomy)
	if err != nil {
		return nil, err
	}
	nodes := make([]hierarchy.Node, 0, len(terms))
	for _, t := range terms {
		nodes = append(nodes, hierarchy.Node{
			TermID:   t.ID,
			Slug:     t.Slug,
			Name:     t.Name,
			Children: []hierarchy.Node{},
		})
	}
	return nodes, nil
}
