package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/facets/internal/facets"
	"github.com/roach88/facets/internal/ir"
	"github.com/roach88/facets/internal/store"
)

// Scenario defines a filter scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Fixture is a catalog fixture path, relative to the scenario file.
	// Empty uses the shared test catalog.
	Fixture string `yaml:"fixture,omitempty"`

	Shop Shop `yaml:"shop,omitempty"`

	// Setup mutates the seeded catalog before the flow runs.
	Setup []SetupStep `yaml:"setup,omitempty"`

	// Flow is the list of queries to run, in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions relate the outputs of several steps.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Shop holds the shop options a scenario runs under.
type Shop struct {
	HideOutOfStock     bool `yaml:"hide_out_of_stock"`
	FailOpenTaxonomies bool `yaml:"fail_open_taxonomies"`

	// Tax enables tax-adjusted price filtering when set.
	Tax *Tax `yaml:"tax,omitempty"`
}

// Tax mirrors tax.Settings with tax always enabled.
type Tax struct {
	PricesIncludeTax            bool   `yaml:"prices_include_tax"`
	DisplayShop                 string `yaml:"display_shop"`
	AdjustNonBaseLocationPrices bool   `yaml:"adjust_non_base_location_prices"`
	BaseCountry                 string `yaml:"base_country"`
	CustomerCountry             string `yaml:"customer_country"`
}

// Setup actions.
const (
	ActionSaveProduct      = "save_product"
	ActionSaveTerm         = "save_term"
	ActionDeleteTransients = "delete_transients"
	ActionInvalidate       = "invalidate"
)

// SetupStep performs exactly one action.
type SetupStep struct {
	SaveProduct *ir.Product        `yaml:"save_product,omitempty"`
	SaveTerm    *store.FixtureTerm `yaml:"save_term,omitempty"`

	// DeleteTransients is the product whose transients are deleted.
	DeleteTransients int64 `yaml:"delete_transients,omitempty"`

	Invalidate *Invalidate `yaml:"invalidate,omitempty"`
}

// Invalidate clears the facet cache, and the hierarchy of Taxonomy when
// set.
type Invalidate struct {
	Taxonomy string `yaml:"taxonomy"`
}

// Action returns the step's action name, or "" if the step sets none or
// more than one.
func (s SetupStep) Action() string {
	var actions []string
	if s.SaveProduct != nil {
		actions = append(actions, ActionSaveProduct)
	}
	if s.SaveTerm != nil {
		actions = append(actions, ActionSaveTerm)
	}
	if s.DeleteTransients != 0 {
		actions = append(actions, ActionDeleteTransients)
	}
	if s.Invalidate != nil {
		actions = append(actions, ActionInvalidate)
	}
	if len(actions) != 1 {
		return ""
	}
	return actions[0]
}

// Flow queries.
const (
	QueryProducts = "products"
	QueryArchive  = "archive"
	QueryFacet    = "facet"
	QueryFacets   = "facets"
	QueryClauses  = "clauses"
)

var validQueries = []string{QueryProducts, QueryArchive, QueryFacet, QueryFacets, QueryClauses}

var validFacets = []string{
	facets.FilterTypePrice,
	facets.FilterTypeStock,
	facets.FilterTypeRating,
	facets.FilterTypeAttribute,
	facets.FilterTypeTaxonomy,
}

// FlowStep runs one query.
type FlowStep struct {
	// Name identifies the step in assertions. Defaults to "step-<n>".
	Name string `yaml:"name,omitempty"`

	// Query is one of products, archive, facet, facets, clauses.
	Query string `yaml:"query"`

	// Vars is the request query string.
	Vars string `yaml:"vars,omitempty"`

	// Facet is the filter type of a facet query.
	Facet string `yaml:"facet,omitempty"`

	// Taxonomy is required for attribute and taxonomy facets.
	Taxonomy string `yaml:"taxonomy,omitempty"`

	// Archive marks an archive query as a non-archive page when false.
	Archive *bool `yaml:"archive,omitempty"`

	// Main renders main-query clauses instead of the full filter set.
	Main bool `yaml:"main,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the expected output of a step. Output is compared with the
// normalized step output as canonical JSON; write prices as strings.
type Expect struct {
	Output any `yaml:"output"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected and a relative fixture path is resolved against the scenario's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.Fixture != "" && !filepath.IsAbs(s.Fixture) {
		s.Fixture = filepath.Join(filepath.Dir(path), s.Fixture)
	}
	return s, nil
}

// ParseScenario decodes and validates a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and fills default step names.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow must have at least one step")
	}

	for i, step := range s.Setup {
		if step.Action() == "" {
			return fmt.Errorf("setup step %d: exactly one action is required", i)
		}
	}

	queries := make(map[string]string, len(s.Flow))
	for i := range s.Flow {
		step := &s.Flow[i]
		if step.Name == "" {
			step.Name = fmt.Sprintf("step-%d", i+1)
		}
		if _, ok := queries[step.Name]; ok {
			return fmt.Errorf("flow step %d: duplicate name %q", i, step.Name)
		}
		queries[step.Name] = step.Query

		if !contains(validQueries, step.Query) {
			return fmt.Errorf("flow step %q: query must be one of %s", step.Name, strings.Join(validQueries, ", "))
		}
		if step.Query != QueryFacet {
			continue
		}
		if !contains(validFacets, step.Facet) {
			return fmt.Errorf("flow step %q: facet must be one of %s", step.Name, strings.Join(validFacets, ", "))
		}
		if (step.Facet == facets.FilterTypeAttribute || step.Facet == facets.FilterTypeTaxonomy) && step.Taxonomy == "" {
			return fmt.Errorf("flow step %q: %s facet requires taxonomy", step.Name, step.Facet)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, queries); err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
