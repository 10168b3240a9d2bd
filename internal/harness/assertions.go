package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/offchain/internal/offchain"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string
	At       string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s at %s\n", e.Type, e.At)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s%s\n", event.Step, event.By, event.Outcome, event.State, event.Code)
		}
	}
	return buf.String()
}

// evaluateAssertions checks every assertion and returns failure messages.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := h.evaluate(ctx, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	n := h.nodes[offchain.Actor(a.At)]

	switch a.Type {
	case AssertHistoryLength:
		history, err := n.store.History(ctx, h.refID)
		if err != nil {
			return err
		}
		if len(history) != a.Count {
			return &AssertionError{
				Type:     a.Type,
				At:       a.At,
				Expected: fmt.Sprintf("%d revisions", a.Count),
				Actual:   fmt.Sprintf("%d revisions", len(history)),
			}
		}
		return nil

	case AssertFinalState, AssertFollowUp:
		latest, err := n.client.LatestPayment(ctx, h.refID)
		if err != nil {
			return err
		}
		if latest == nil {
			return &AssertionError{Type: a.Type, At: a.At, Expected: "a stored payment", Actual: "none"}
		}
		if a.Type == AssertFinalState {
			return assertState(a, latest)
		}
		return assertFollowUp(a, latest)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertState(a Assertion, cmd *offchain.PaymentCommand) error {
	s, err := cmd.State()
	if err != nil {
		return err
	}
	if s.ID != a.State {
		return &AssertionError{Type: a.Type, At: a.At, Expected: a.State, Actual: s.ID}
	}
	return nil
}

func assertFollowUp(a Assertion, cmd *offchain.PaymentCommand) error {
	got := "none"
	if action, ok := cmd.FollowUpAction(); ok {
		got = string(action)
	}
	if got != a.Action {
		return &AssertionError{Type: a.Type, At: a.At, Expected: a.Action, Actual: got}
	}
	return nil
}
