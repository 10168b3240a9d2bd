package condition

import (
	"fmt"
	"strings"

	"github.com/roach88/offchain/internal/ir"
)

// Path is a dot-separated field path such as "payment.sender.status.status".
type Path string

// Resolver resolves a field path on some object.
// ok is false when the field, or any object on the way to it, is absent.
type Resolver interface {
	Resolve(path Path) (value ir.IRValue, ok bool)
}

// Object adapts a generic IRObject to Resolver by walking nested members.
type Object ir.IRObject

// Resolve implements Resolver.
func (o Object) Resolve(path Path) (ir.IRValue, bool) {
	return ir.IRObject(o).Lookup(string(path))
}

// MatchResult reports which paths a condition matched.
type MatchResult struct {
	Success         bool
	MatchedPaths    []Path
	MismatchedPaths []Path
}

// Merge combines two results. Success is the conjunction.
func (r MatchResult) Merge(other MatchResult) MatchResult {
	return MatchResult{
		Success:         r.Success && other.Success,
		MatchedPaths:    append(append([]Path{}, r.MatchedPaths...), other.MatchedPaths...),
		MismatchedPaths: append(append([]Path{}, r.MismatchedPaths...), other.MismatchedPaths...),
	}
}

func matched(path Path) MatchResult {
	return MatchResult{Success: true, MatchedPaths: []Path{path}}
}

func mismatched(path Path) MatchResult {
	return MatchResult{Success: false, MismatchedPaths: []Path{path}}
}

// Condition is a predicate over a Resolver.
//
// A non-nil error is only ever a *ValidationError (or wraps one); a plain
// mismatch is reported through MatchResult.Success.
type Condition interface {
	Match(obj Resolver) (MatchResult, error)
}

// Field matches when the value at Path is present, or absent when NotSet.
type Field struct {
	Path   Path
	NotSet bool
}

// Match implements Condition.
func (f Field) Match(obj Resolver) (MatchResult, error) {
	_, ok := obj.Resolve(f.Path)
	if ok != f.NotSet {
		return matched(f.Path), nil
	}
	return mismatched(f.Path), nil
}

// Value matches when the value at Path equals Expected structurally.
type Value struct {
	Path     Path
	Expected ir.IRValue
}

// Match implements Condition.
func (v Value) Match(obj Resolver) (MatchResult, error) {
	actual, ok := obj.Resolve(v.Path)
	if ok && ir.Equal(actual, v.Expected) {
		return matched(v.Path), nil
	}
	return mismatched(v.Path), nil
}

// Require is the conjunction of Conditions, with an optional Validation
// evaluated only when every condition matched.
type Require struct {
	Conditions []Condition
	Validation Condition
}

// Match implements Condition.
//
// All conditions are evaluated, even after a mismatch, so the result lists
// every mismatched path.
func (r Require) Match(obj Resolver) (MatchResult, error) {
	result := MatchResult{Success: true}
	for _, c := range r.Conditions {
		m, err := c.Match(obj)
		if err != nil {
			return MatchResult{}, err
		}
		result = result.Merge(m)
	}

	if !result.Success || r.Validation == nil {
		return result, nil
	}

	v, err := r.Validation.Match(obj)
	if err != nil {
		return MatchResult{}, err
	}
	if !v.Success {
		return MatchResult{}, &ValidationError{Paths: v.MismatchedPaths}
	}
	return result.Merge(v), nil
}

// All builds a Require with no validation.
func All(conditions ...Condition) Require {
	return Require{Conditions: conditions}
}

// ValidationError reports that an object matched a Require structurally
// but failed its validation.
type ValidationError struct {
	Paths []Path
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Paths))
	for i, p := range e.Paths {
		parts[i] = string(p)
	}
	return fmt.Sprintf("missing required field(s): %s", strings.Join(parts, ", "))
}
