// Package machine builds a fixed state graph over condition-defined states
// and classifies objects into exactly one of its states.
package machine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/offchain/internal/condition"
)

// State is a named predicate over an object shape.
// States are stateless and shared; compare them by pointer or ID.
type State struct {
	ID      string
	Require condition.Condition
}

// NewState creates a state.
func NewState(id string, require condition.Condition) *State {
	return &State{ID: id, Require: require}
}

func (s *State) String() string {
	return s.ID
}

// Transition is a directed edge between two states.
type Transition struct {
	From *State
	To   *State
}

// Machine is a fixed set of states and the legal transitions between them.
//
// INVARIANTS:
//   - states are listed in order of first appearance in the transition list
//   - state IDs are unique
//   - initials are exactly the states that are never a transition target
type Machine struct {
	states      []*State
	initials    []*State
	transitions []Transition
	edges       map[*State]map[*State]bool
}

// Build constructs a machine from its transition list.
func Build(transitions ...Transition) (*Machine, error) {
	if len(transitions) == 0 {
		return nil, errors.New("machine: at least one transition is required")
	}

	m := &Machine{
		transitions: append([]Transition(nil), transitions...),
		edges:       make(map[*State]map[*State]bool),
	}
	byID := make(map[string]*State)
	targets := make(map[*State]bool)

	add := func(s *State) error {
		if s == nil {
			return errors.New("machine: nil state in transition")
		}
		if existing, ok := byID[s.ID]; ok {
			if existing != s {
				return fmt.Errorf("machine: duplicate state id %q", s.ID)
			}
			return nil
		}
		if s.Require == nil {
			return fmt.Errorf("machine: state %q has no condition", s.ID)
		}
		byID[s.ID] = s
		m.states = append(m.states, s)
		return nil
	}

	for i, t := range transitions {
		if err := add(t.From); err != nil {
			return nil, fmt.Errorf("transition %d: %w", i, err)
		}
		if err := add(t.To); err != nil {
			return nil, fmt.Errorf("transition %d: %w", i, err)
		}
		if m.edges[t.From] == nil {
			m.edges[t.From] = make(map[*State]bool)
		}
		if m.edges[t.From][t.To] {
			return nil, fmt.Errorf("machine: duplicate transition %s -> %s", t.From.ID, t.To.ID)
		}
		m.edges[t.From][t.To] = true
		targets[t.To] = true
	}

	for _, s := range m.states {
		if !targets[s] {
			m.initials = append(m.initials, s)
		}
	}
	return m, nil
}

// MustBuild is like Build but panics on error.
// Use only for package-level tables built from constants.
func MustBuild(transitions ...Transition) *Machine {
	m, err := Build(transitions...)
	if err != nil {
		panic(err)
	}
	return m
}

// States returns every state in the machine.
func (m *Machine) States() []*State {
	return append([]*State(nil), m.states...)
}

// Initials returns the states with no incoming transition.
func (m *Machine) Initials() []*State {
	return append([]*State(nil), m.initials...)
}

// Transitions returns the declared edges.
func (m *Machine) Transitions() []Transition {
	return append([]Transition(nil), m.transitions...)
}

// State returns the state with the given id.
func (m *Machine) State(id string) (*State, bool) {
	for _, s := range m.states {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// IsInitial reports whether s has no incoming transition.
func (m *Machine) IsInitial(s *State) bool {
	for _, i := range m.initials {
		if i == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing transition.
func (m *Machine) IsTerminal(s *State) bool {
	return len(m.edges[s]) == 0
}

// IsValidTransition reports whether from -> to is a declared edge.
func (m *Machine) IsValidTransition(from, to *State) bool {
	return m.edges[from][to]
}

// MatchStates returns every state whose condition matches obj.
//
// A *condition.ValidationError from any state is returned immediately: the
// object is structurally in that state but is missing required fields.
func (m *Machine) MatchStates(obj condition.Resolver) ([]*State, error) {
	var out []*State
	for _, s := range m.states {
		result, err := s.Require.Match(obj)
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", s.ID, err)
		}
		if result.Success {
			out = append(out, s)
		}
	}
	return out, nil
}

// MatchState classifies obj into exactly one state.
//
// Zero matches yield *NoStateMatchedError; more than one yields
// *TooManyStatesMatchedError, which indicates overlapping state predicates.
func (m *Machine) MatchState(obj condition.Resolver) (*State, error) {
	states, err := m.MatchStates(obj)
	if err != nil {
		return nil, err
	}
	switch len(states) {
	case 0:
		return nil, &NoStateMatchedError{}
	case 1:
		return states[0], nil
	default:
		return nil, &TooManyStatesMatchedError{States: states}
	}
}

// NoStateMatchedError reports an object that fits no declared state.
type NoStateMatchedError struct{}

func (e *NoStateMatchedError) Error() string {
	return "no state matched"
}

// TooManyStatesMatchedError reports an object that fits several states.
type TooManyStatesMatchedError struct {
	States []*State
}

func (e *TooManyStatesMatchedError) Error() string {
	ids := make([]string, len(e.States))
	for i, s := range e.States {
		ids[i] = s.ID
	}
	return fmt.Sprintf("too many states matched: %s", strings.Join(ids, ", "))
}
