package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/facets/internal/ir"
)

// Assertion types.
const (
	// AssertSameOutput requires every listed step to produce the same output.
	AssertSameOutput = "same_output"

	// AssertDifferentOutput requires the listed steps not to all agree.
	AssertDifferentOutput = "different_output"

	// AssertSQLContains checks the rendered SQL of a clauses step.
	AssertSQLContains = "sql_contains"
)

// Assertion relates the outputs of flow steps.
type Assertion struct {
	Type string `yaml:"type"`

	// Steps lists the compared steps of same_output and different_output.
	Steps []string `yaml:"steps,omitempty"`

	// Step is the clauses step checked by sql_contains.
	Step string `yaml:"step,omitempty"`

	// Contains and Excludes are substrings the SQL must and must not
	// contain.
	Contains []string `yaml:"contains,omitempty"`
	Excludes []string `yaml:"excludes,omitempty"`
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Steps    []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Steps) > 0 {
		fmt.Fprintf(&buf, "  Steps: %s\n", strings.Join(e.Steps, ", "))
	}
	return buf.String()
}

// validateAssertion checks an assertion against the flow's step names and
// queries.
func validateAssertion(a Assertion, queries map[string]string) error {
	switch a.Type {
	case "":
		return fmt.Errorf("type is required")
	case AssertSameOutput, AssertDifferentOutput:
		if len(a.Steps) < 2 {
			return fmt.Errorf("%s requires at least two steps", a.Type)
		}
		for _, name := range a.Steps {
			if _, ok := queries[name]; !ok {
				return fmt.Errorf("unknown step %q", name)
			}
		}
	case AssertSQLContains:
		query, ok := queries[a.Step]
		if !ok {
			return fmt.Errorf("unknown step %q", a.Step)
		}
		if query != QueryClauses {
			return fmt.Errorf("sql_contains requires a clauses step, %q is %s", a.Step, query)
		}
		if len(a.Contains) == 0 && len(a.Excludes) == 0 {
			return fmt.Errorf("sql_contains requires contains or excludes")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertSameOutput:
			err = assertOutputs(result, a, true)
		case AssertDifferentOutput:
			err = assertOutputs(result, a, false)
		case AssertSQLContains:
			err = assertSQLContains(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

func canonicalOutput(result *Result, step string) (string, error) {
	v, ok := result.Output(step)
	if !ok {
		return "", fmt.Errorf("step %q has no output", step)
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("step %q: %w", step, err)
	}
	return string(data), nil
}

func assertOutputs(result *Result, a Assertion, same bool) error {
	outputs := make([]string, len(a.Steps))
	distinct := make(map[string]bool, len(a.Steps))
	for i, step := range a.Steps {
		out, err := canonicalOutput(result, step)
		if err != nil {
			return err
		}
		outputs[i] = out
		distinct[out] = true
	}

	if same && len(distinct) == 1 {
		return nil
	}
	if !same && len(distinct) > 1 {
		return nil
	}

	expected := "identical outputs"
	if !same {
		expected = "outputs that differ"
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: expected,
		Actual:   strings.Join(outputs, " | "),
		Steps:    a.Steps,
	}
}

func assertSQLContains(result *Result, a Assertion) error {
	v, ok := result.Output(a.Step)
	if !ok {
		return fmt.Errorf("step %q has no output", a.Step)
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return fmt.Errorf("step %q is not a clauses step", a.Step)
	}
	sql, ok := obj["sql"].(ir.IRString)
	if !ok {
		return fmt.Errorf("step %q is not a clauses step", a.Step)
	}

	var missing, present []string
	for _, s := range a.Contains {
		if !strings.Contains(string(sql), s) {
			missing = append(missing, s)
		}
	}
	for _, s := range a.Excludes {
		if strings.Contains(string(sql), s) {
			present = append(present, s)
		}
	}
	if len(missing) == 0 && len(present) == 0 {
		return nil
	}

	var expected []string
	if len(missing) > 0 {
		expected = append(expected, fmt.Sprintf("SQL containing %q", missing))
	}
	if len(present) > 0 {
		expected = append(expected, fmt.Sprintf("SQL without %q", present))
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: strings.Join(expected, " and "),
		Actual:   string(sql),
		Steps:    []string{a.Step},
	}
}
