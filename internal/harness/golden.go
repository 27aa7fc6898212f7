package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/facets/internal/ir"
)

// Snapshot renders a scenario trace as canonical JSON:
//
//	{"scenario":...,"trace":[{"kind":...,"name":...,"output":...,"query":...,"seq":...,"vars":...}]}
//
// Empty query and vars fields and setup outputs are omitted.
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make(ir.IRArray, len(result.Trace))
	for i, event := range result.Trace {
		obj := ir.IRObject{
			"seq":  ir.IRInt(event.Seq),
			"kind": ir.IRString(event.Kind),
			"name": ir.IRString(event.Name),
		}
		if event.Query != "" {
			obj["query"] = ir.IRString(event.Query)
		}
		if event.Vars != "" {
			obj["vars"] = ir.IRString(event.Vars)
		}
		if event.Output != nil {
			obj["output"] = event.Output
		}
		trace[i] = obj
	}
	return ir.MarshalCanonical(ir.IRObject{
		"scenario": ir.IRString(name),
		"trace":    trace,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden. The scenario must also pass.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	if !result.Pass {
		t.Errorf("scenario %s failed:\n%v", scenario.Name, result.Errors)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshot)
	return nil
}
