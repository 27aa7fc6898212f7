package harness

import "github.com/roach88/facets/internal/ir"

// Trace event kinds.
const (
	EventSetup = "setup"
	EventQuery = "query"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Kind string `json:"kind"`

	// Name is the step name, or the setup action.
	Name string `json:"name"`

	Query  string     `json:"query,omitempty"`
	Vars   string     `json:"vars,omitempty"`
	Output ir.IRValue `json:"output,omitempty"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	outputs map[string]ir.IRValue
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		outputs: make(map[string]ir.IRValue),
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Output returns the output of the named flow step.
func (r *Result) Output(step string) (ir.IRValue, bool) {
	v, ok := r.outputs[step]
	return v, ok
}

func (r *Result) addSetup(seq int64, action string) {
	r.Trace = append(r.Trace, TraceEvent{Seq: seq, Kind: EventSetup, Name: action})
}

func (r *Result) addQuery(seq int64, step FlowStep, output ir.IRValue) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:    seq,
		Kind:   EventQuery,
		Name:   step.Name,
		Query:  step.Query,
		Vars:   step.Vars,
		Output: output,
	})
	r.outputs[step.Name] = output
}
