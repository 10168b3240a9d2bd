package harness

import "github.com/roach88/offchain/internal/ir"

// Step outcomes recorded in the trace.
const (
	// OutcomeAccepted: the counterparty accepted the revision.
	OutcomeAccepted = "accepted"
	// OutcomeRejected: the counterparty answered with a failure response.
	OutcomeRejected = "rejected"
	// OutcomeRefused: local validation stopped the revision before sending.
	OutcomeRefused = "refused"
)

// TraceEvent records what happened to one scenario step.
type TraceEvent struct {
	Step    int    `json:"step"`
	By      string `json:"by"`
	CID     string `json:"cid"`
	Outcome string `json:"outcome"`
	State   string `json:"state,omitempty"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
}

func (e TraceEvent) toIR() ir.IRObject {
	obj := ir.IRObject{
		"step":    ir.IRInt(e.Step),
		"by":      ir.IRString(e.By),
		"cid":     ir.IRString(e.CID),
		"outcome": ir.IRString(e.Outcome),
	}
	if e.State != "" {
		obj["state"] = ir.IRString(e.State)
	}
	if e.Code != "" {
		obj["code"] = ir.IRString(e.Code)
	}
	if e.Field != "" {
		obj["field"] = ir.IRString(e.Field)
	}
	return obj
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step matched its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// ReferenceID identifies the scenario's payment.
	ReferenceID string `json:"reference_id"`

	// Trace has one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists mismatches. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event.
func (r *Result) AddTrace(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
