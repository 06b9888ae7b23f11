// Package exchange models the contact-exchange handshake carried by
// exchange_request messages: a request starts pending and is resolved
// exactly once, by the recipient, to accepted or rejected.
package exchange

import (
	"fmt"
	"slices"
)

// State is the lifecycle state of an exchange request.
type State string

const (
	Pending  State = "pending"
	Accepted State = "accepted"
	Rejected State = "rejected"
)

// Action is a recipient decision on a pending request.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

var validTransitions = map[State][]State{
	Pending: {Accepted, Rejected},
}

// Target returns the state the action resolves to.
func (a Action) Target() (State, error) {
	switch a {
	case ActionAccept:
		return Accepted, nil
	case ActionReject:
		return Rejected, nil
	}
	return "", fmt.Errorf("unknown exchange action %q", a)
}

// Terminal reports whether s can no longer change.
func (s State) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// CanTransition reports whether s may move to the target state.
func (s State) CanTransition(to State) bool {
	return slices.Contains(validTransitions[s], to)
}

// Transition validates a state change. Moving a terminal state is not an
// error worth surfacing to the user: the server-side winner arrives via
// push/refresh, so callers treat ErrSettled as a no-op.
func Transition(from, to State) (State, error) {
	if from.Terminal() {
		return from, ErrSettled
	}
	if !from.CanTransition(to) {
		return from, fmt.Errorf("invalid exchange transition %s -> %s", from, to)
	}
	return to, nil
}

// ErrSettled signals the request was already resolved by the other party.
var ErrSettled = fmt.Errorf("exchange request already settled")
