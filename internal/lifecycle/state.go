// Package lifecycle models the soft-delete / restore / permanent-delete
// workflow shared by question sets and files.
package lifecycle

import (
	"errors"
	"fmt"
)

// State is where an entity sits in its lifecycle. The zero value means the
// caller does not know.
type State int

const (
	StateUnknown State = iota
	StateActive
	StateSoftDeleted
	StatePermanentlyDeleted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateSoftDeleted:
		return "soft-deleted"
	case StatePermanentlyDeleted:
		return "permanently-deleted"
	default:
		return "unknown"
	}
}

// StateOf maps a soft-delete flag onto a state.
func StateOf(isDeleted bool) State {
	if isDeleted {
		return StateSoftDeleted
	}
	return StateActive
}

// Action is a user-triggered lifecycle transition.
type Action int

const (
	ActionDelete Action = iota + 1
	ActionRestore
	ActionPurge
)

func (a Action) String() string {
	switch a {
	case ActionDelete:
		return "delete"
	case ActionRestore:
		return "restore"
	case ActionPurge:
		return "permanent delete"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned when an action is not allowed from a state.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// Next returns the state reached by applying a to s. Repeating an action on
// an entity already in its target state is allowed and leaves it unchanged.
// Permanent deletion is only reachable from the recycle bin and is terminal.
func Next(s State, a Action) (State, error) {
	switch {
	case s == StateActive && a == ActionDelete:
		return StateSoftDeleted, nil
	case s == StateActive && a == ActionRestore:
		return StateActive, nil
	case s == StateSoftDeleted && a == ActionDelete:
		return StateSoftDeleted, nil
	case s == StateSoftDeleted && a == ActionRestore:
		return StateActive, nil
	case s == StateSoftDeleted && a == ActionPurge:
		return StatePermanentlyDeleted, nil
	case s == StatePermanentlyDeleted && a == ActionPurge:
		return StatePermanentlyDeleted, nil
	}
	return s, fmt.Errorf("%w: cannot %s an entity that is %s", ErrInvalidTransition, a, s)
}
