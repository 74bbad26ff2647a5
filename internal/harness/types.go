package harness

import "github.com/roach88/rulescript/internal/store"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: the run ended as expected and
	// every assertion held.
	Pass bool `json:"pass"`

	RunID       string                   `json:"run_id"`
	Facts       []store.FactRecord       `json:"facts"`
	Activations []store.ActivationRecord `json:"activations"`

	// Outputs maps each written output path to its content.
	Outputs map[string]string `json:"outputs,omitempty"`

	// RunError is the error FireRules returned, if any.
	RunError string `json:"run_error,omitempty"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Facts:       []store.FactRecord{},
		Activations: []store.ActivationRecord{},
		Outputs:     make(map[string]string),
		Errors:      []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Fact returns the fact with the given id.
func (r *Result) Fact(id int64) (store.FactRecord, bool) {
	for _, f := range r.Facts {
		if f.ID == id {
			return f, true
		}
	}
	return store.FactRecord{}, false
}
