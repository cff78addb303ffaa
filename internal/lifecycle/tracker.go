package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/banksoal/apiserver/internal/logger"
)

// Kind distinguishes the two entity types that have a lifecycle.
type Kind string

const (
	KindQuestionSet Kind = "questionset"
	KindFile        Kind = "file"
)

// Target identifies the entity a transition applies to.
type Target struct {
	Kind Kind
	ID   int64
	// Label is a display name used in confirmation prompts and messages.
	Label string
	// State is the last known state; StateUnknown skips local validation.
	State State
}

func (t Target) String() string {
	if t.Label != "" {
		return fmt.Sprintf("%s #%d (%s)", t.Kind, t.ID, t.Label)
	}
	return fmt.Sprintf("%s #%d", t.Kind, t.ID)
}

// ErrNotFound must be matched (errors.Is) by Backend errors reporting that the
// entity does not exist.
var ErrNotFound = errors.New("entity not found")

// ErrNotConfirmed is returned when a permanent deletion was not confirmed.
var ErrNotConfirmed = errors.New("permanent deletion not confirmed")

// Backend executes transitions against the system of record.
type Backend interface {
	SoftDelete(ctx context.Context, kind Kind, id int64) error
	Restore(ctx context.Context, kind Kind, id int64) error
	Purge(ctx context.Context, kind Kind, id int64) error
}

// Outcome describes how a transition ended when it did not fail.
type Outcome int

const (
	// OutcomeApplied means the backend performed the transition.
	OutcomeApplied Outcome = iota + 1
	// OutcomeAlreadySatisfied means the entity was already in the target state.
	OutcomeAlreadySatisfied
	// OutcomeUnavailable means the entity is gone and cannot be restored.
	OutcomeUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeAlreadySatisfied:
		return "already-satisfied"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Result is the non-fatal result of a transition.
type Result struct {
	Target  Target
	Action  Action
	Outcome Outcome
	State   State
}

// Message is the user-facing notification for the result.
func (r Result) Message() string {
	switch {
	case r.Outcome == OutcomeUnavailable:
		return fmt.Sprintf("Could not restore %s: it no longer exists.", r.Target)
	case r.Outcome == OutcomeAlreadySatisfied && r.Action == ActionPurge:
		return fmt.Sprintf("%s was already deleted.", r.Target)
	case r.Outcome == OutcomeAlreadySatisfied:
		return fmt.Sprintf("%s is already %s.", r.Target, r.State)
	case r.Action == ActionDelete:
		return fmt.Sprintf("%s moved to the recycle bin.", r.Target)
	case r.Action == ActionRestore:
		return fmt.Sprintf("%s restored.", r.Target)
	default:
		return fmt.Sprintf("%s permanently deleted.", r.Target)
	}
}

// Tracker drives lifecycle transitions through a Backend and reconciles
// "not found" answers into idempotent outcomes.
type Tracker struct {
	backend   Backend
	confirmer Confirmer
}

// NewTracker creates a tracker. A nil confirmer makes every Purge fail with
// ErrNotConfirmed.
func NewTracker(backend Backend, confirmer Confirmer) *Tracker {
	return &Tracker{backend: backend, confirmer: confirmer}
}

// SoftDelete moves the target to the recycle bin.
func (t *Tracker) SoftDelete(ctx context.Context, target Target) (Result, error) {
	return t.apply(ctx, target, ActionDelete, t.backend.SoftDelete)
}

// Restore brings the target back from the recycle bin.
func (t *Tracker) Restore(ctx context.Context, target Target) (Result, error) {
	return t.apply(ctx, target, ActionRestore, t.backend.Restore)
}

// Purge permanently deletes the target after asking the confirmer.
func (t *Tracker) Purge(ctx context.Context, target Target) (Result, error) {
	if err := validate(target, ActionPurge); err != nil {
		return Result{}, err
	}
	if t.confirmer == nil {
		return Result{}, ErrNotConfirmed
	}
	ok, err := t.confirmer.Confirm(ctx, target)
	if err != nil {
		return Result{}, fmt.Errorf("confirm permanent deletion: %w", err)
	}
	if !ok {
		return Result{}, ErrNotConfirmed
	}
	return t.apply(ctx, target, ActionPurge, t.backend.Purge)
}

// validate rejects actions the known state of target does not allow before
// anything reaches the backend.
func validate(target Target, action Action) error {
	if target.State == StateUnknown {
		return nil
	}
	_, err := Next(target.State, action)
	return err
}

func (t *Tracker) apply(ctx context.Context, target Target, action Action, call func(context.Context, Kind, int64) error) (Result, error) {
	if err := validate(target, action); err != nil {
		return Result{}, err
	}

	want := StateActive
	switch action {
	case ActionDelete:
		want = StateSoftDeleted
	case ActionPurge:
		want = StatePermanentlyDeleted
	}
	result := Result{Target: target, Action: action, State: want}

	err := call(ctx, target.Kind, target.ID)
	switch {
	case err == nil:
		result.Outcome = OutcomeApplied
		if target.State == want {
			result.Outcome = OutcomeAlreadySatisfied
		}
	case errors.Is(err, ErrNotFound) && action == ActionRestore:
		result.Outcome = OutcomeUnavailable
		result.State = StatePermanentlyDeleted
		logger.Warn().Str("kind", string(target.Kind)).Int64("id", target.ID).Msg("restore target not found")
	case errors.Is(err, ErrNotFound):
		// Not found on a deletion means someone else got there first.
		result.Outcome = OutcomeAlreadySatisfied
		if action == ActionDelete {
			result.State = StatePermanentlyDeleted
		}
	default:
		return Result{}, fmt.Errorf("%s %s: %w", action, target, err)
	}

	logger.Info().
		Str("kind", string(target.Kind)).
		Int64("id", target.ID).
		Str("action", action.String()).
		Str("outcome", result.Outcome.String()).
		Msg("lifecycle transition")
	return result, nil
}
