package ledger

import (
	"fmt"
	"slices"
	"strings"
)

// State is an account lifecycle state. The zero value is invalid.
type State uint8

const (
	StateActive State = iota + 1
	StateFrozen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateFrozen:
		return "frozen"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	return s >= StateActive && s <= StateClosed
}

// ParseState is the inverse of String.
func ParseState(s string) (State, error) {
	switch strings.ToLower(s) {
	case "active":
		return StateActive, nil
	case "frozen":
		return StateFrozen, nil
	case "closed":
		return StateClosed, nil
	}
	return 0, fmt.Errorf("unknown account state %q", s)
}

// closed is terminal
var transitions = map[State][]State{
	StateActive: {StateFrozen, StateClosed},
	StateFrozen: {StateActive, StateClosed},
	StateClosed: nil,
}

// AllowedTransitions lists the states reachable from s in one step.
func AllowedTransitions(s State) []State {
	return slices.Clone(transitions[s])
}

// CanTransition reports whether from → to is permitted.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// Transition returns a copy of a in state target. Self transitions and
// anything out of the table fail with KindInvalidStateTransition and
// leave a untouched.
func (a Account) Transition(target State) (Account, error) {
	if !CanTransition(a.State, target) {
		return a, &Error{
			Kind:      KindInvalidStateTransition,
			Op:        "transition",
			AccountID: a.ID,
			From:      a.State,
			To:        target,
			Msg:       fmt.Sprintf("cannot transition from %s to %s", a.State, target),
		}
	}
	a.State = target
	return a, nil
}
