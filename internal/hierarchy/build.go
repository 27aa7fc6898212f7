package hierarchy

import (
	"github.com/roach88/facets/internal/ir"
)

// Map is the precomputed hierarchy of one taxonomy, indexed by term ID.
//
// Descendants holds every term with at least one descendant; Ancestors
// holds every non-root term, nearest ancestor first. Tree is the forest of
// root terms in term order.
type Map struct {
	Descendants map[int64][]int64 `json:"descendants"`
	Ancestors   map[int64][]int64 `json:"ancestors"`
	Tree        []Node            `json:"tree"`
}

// Node is one term in the tree.
type Node struct {
	TermID   int64  `json:"term_id"`
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	Parent   int64  `json:"parent"`
	Depth    int    `json:"depth"`
	Children []Node `json:"children"`
}

// emptyMap is returned for flat taxonomies.
func emptyMap() *Map {
	return &Map{
		Descendants: map[int64][]int64{},
		Ancestors:   map[int64][]int64{},
		Tree:        []Node{},
	}
}

// IsEmpty reports whether m holds no terms.
func (m *Map) IsEmpty() bool {
	return m == nil || len(m.Tree) == 0
}

// Build computes the hierarchy of terms, which must all belong to one
// taxonomy and are expected in display order.
//
// A term is a root when its parent is 0 or not among terms. Parent cycles
// in corrupt data are cut at the first repeated term.
func Build(terms []ir.Term) *Map {
	m := emptyMap()
	if len(terms) == 0 {
		return m
	}

	byID := make(map[int64]ir.Term, len(terms))
	for _, t := range terms {
		byID[t.ID] = t
	}

	children := make(map[int64][]int64)
	parent := make(map[int64]int64)
	var roots []int64
	for _, t := range terms {
		if _, ok := byID[t.Parent]; t.Parent == 0 || !ok {
			roots = append(roots, t.ID)
			continue
		}
		parent[t.ID] = t.Parent
		children[t.Parent] = append(children[t.Parent], t.ID)
	}

	for _, t := range terms {
		if d := descendants(t.ID, children); len(d) > 0 {
			m.Descendants[t.ID] = d
		}
		if a := ancestors(t.ID, parent); len(a) > 0 {
			m.Ancestors[t.ID] = a
		}
	}

	visited := make(map[int64]bool, len(terms))
	for _, id := range roots {
		m.Tree = append(m.Tree, buildNode(id, 0, byID, children, visited))
	}
	return m
}

// descendants lists the subtree below id in depth-first preorder, each
// term once.
func descendants(id int64, children map[int64][]int64) []int64 {
	return collect(id, children, map[int64]bool{id: true}, nil)
}

func collect(id int64, children map[int64][]int64, seen map[int64]bool, out []int64) []int64 {
	for _, child := range children[id] {
		if seen[child] {
			continue
		}
		seen[child] = true
		out = append(out, child)
		out = collect(child, children, seen, out)
	}
	return out
}

// ancestors walks parent links upward, nearest first.
func ancestors(id int64, parent map[int64]int64) []int64 {
	var out []int64
	seen := map[int64]bool{id: true}
	for {
		p, ok := parent[id]
		if !ok || seen[p] {
			return out
		}
		seen[p] = true
		out = append(out, p)
		id = p
	}
}

func buildNode(id int64, depth int, byID map[int64]ir.Term, children map[int64][]int64, visited map[int64]bool) Node {
	visited[id] = true
	t := byID[id]
	n := Node{
		TermID:   t.ID,
		Slug:     t.Slug,
		Name:     t.Name,
		Parent:   t.Parent,
		Depth:    depth,
		Children: []Node{},
	}
	for _, child := range children[id] {
		if visited[child] {
			continue
		}
		n.Children = append(n.Children, buildNode(child, depth+1, byID, children, visited))
	}
	return n
}
