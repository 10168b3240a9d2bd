// Package condition implements declarative predicates over nested data.
//
// A condition tests an object through a Resolver, which maps a dotted field
// Path to a value. Predicates never fail on missing data: an absent field or
// an absent intermediate object is simply a mismatch recorded in the
// MatchResult.
//
// Require adds a second failure class. Its Validation condition is only
// evaluated once every structural condition holds; if the validation then
// fails, Match returns a *ValidationError. Callers use this to tell "the
// object is not in this state" apart from "the object is in this state but
// is missing required fields".
package condition
