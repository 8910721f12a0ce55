// Package statemachine provides an immutable finite-state transition table.
//
// A Table maps (from state, event) pairs to target states. It does not hold a
// current state; callers pass the state a record is in and receive the state
// it should move to. Guards veto transitions based on runtime data and
// actions run after guards pass and before the target is returned.
//
// Two error types let callers tell "this move is not defined" apart from
// "this move was vetoed":
//
//	next, err := table.Fire(ctx, from, event, data)
//	switch {
//	case statemachine.IsNoTransitionAvailableError(err):
//	    // undefined move
//	case statemachine.IsTransitionRejectedError(err):
//	    // guard veto
//	}
//
// Basic usage:
//
//	const (
//	    Draft    = statemachine.StringState("draft")
//	    InReview = statemachine.StringState("in_review")
//	    Submit   = statemachine.StringEvent("submit")
//	)
//
//	table := statemachine.MustNewTable(
//	    statemachine.WithTransition(Draft, InReview, Submit),
//	)
//	next, err := table.Fire(ctx, Draft, Submit, nil)
//
// A Table is read-only after construction and safe for concurrent use.
package statemachine
