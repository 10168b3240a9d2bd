package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/offchain/internal/ir"
)

// TraceSnapshot captures the trace of a scenario execution together with
// the payment's reference id. Everything in it is deterministic, so two
// runs of the same scenario produce the same snapshot bytes.
type TraceSnapshot struct {
	ScenarioName string
	ReferenceID  string
	Trace        []TraceEvent
}

// MarshalCanonical renders the snapshot as canonical JSON, so golden
// files compare byte for byte.
func (s *TraceSnapshot) MarshalCanonical() ([]byte, error) {
	trace := make(ir.IRArray, len(s.Trace))
	for i, event := range s.Trace {
		trace[i] = event.toIR()
	}
	return ir.MarshalCanonical(ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"reference_id":  ir.IRString(s.ReferenceID),
		"trace":         trace,
	})
}

// RunWithGolden executes a scenario, fails t on any step or assertion
// mismatch, and compares the trace against testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Parameters:
//   - t: testing.T instance for test assertions
//   - scenario: the scenario to execute
//
// Returns an error if the harness itself fails (a step could not be built
// or delivered). Expectation mismatches fail t instead, as does a trace
// that differs from the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
//
// Parameters:
//   - t: testing.T instance for test assertions
//   - scenarioName: name used for the golden file (without extension)
//   - result: the result from running a scenario
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		ReferenceID:  result.ReferenceID,
		Trace:        result.Trace,
	}
	traceJSON, err := snapshot.MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
