package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type mockBackend struct {
	softDeleteFn func(ctx context.Context, kind Kind, id int64) error
	restoreFn    func(ctx context.Context, kind Kind, id int64) error
	purgeFn      func(ctx context.Context, kind Kind, id int64) error

	purgeCalls int
}

func (m *mockBackend) SoftDelete(ctx context.Context, kind Kind, id int64) error {
	if m.softDeleteFn != nil {
		return m.softDeleteFn(ctx, kind, id)
	}
	return nil
}

func (m *mockBackend) Restore(ctx context.Context, kind Kind, id int64) error {
	if m.restoreFn != nil {
		return m.restoreFn(ctx, kind, id)
	}
	return nil
}

func (m *mockBackend) Purge(ctx context.Context, kind Kind, id int64) error {
	m.purgeCalls++
	if m.purgeFn != nil {
		return m.purgeFn(ctx, kind, id)
	}
	return nil
}

func notFound(context.Context, Kind, int64) error {
	return fmt.Errorf("%w: 404", ErrNotFound)
}

func TestNext(t *testing.T) {
	tests := []struct {
		from    State
		action  Action
		want    State
		wantErr bool
	}{
		{from: StateActive, action: ActionDelete, want: StateSoftDeleted},
		{from: StateSoftDeleted, action: ActionRestore, want: StateActive},
		{from: StateSoftDeleted, action: ActionPurge, want: StatePermanentlyDeleted},
		{from: StateActive, action: ActionRestore, want: StateActive},
		{from: StateSoftDeleted, action: ActionDelete, want: StateSoftDeleted},
		{from: StatePermanentlyDeleted, action: ActionPurge, want: StatePermanentlyDeleted},
		{from: StateActive, action: ActionPurge, wantErr: true},
		{from: StatePermanentlyDeleted, action: ActionRestore, wantErr: true},
		{from: StatePermanentlyDeleted, action: ActionDelete, wantErr: true},
	}

	for _, tc := range tests {
		got, err := Next(tc.from, tc.action)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Next(%s, %s): expected ErrInvalidTransition, got %v", tc.from, tc.action, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("Next(%s, %s) = (%s, %v), want %s", tc.from, tc.action, got, err, tc.want)
		}
	}
}

func TestTrackerSoftDeleteAndRestore(t *testing.T) {
	tracker := NewTracker(&mockBackend{}, nil)
	target := Target{Kind: KindQuestionSet, ID: 42, State: StateActive}

	res, err := tracker.SoftDelete(context.Background(), target)
	if err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if res.Outcome != OutcomeApplied || res.State != StateSoftDeleted {
		t.Fatalf("unexpected result %+v", res)
	}

	target.State = StateSoftDeleted
	res, err = tracker.Restore(context.Background(), target)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if res.Outcome != OutcomeApplied || res.State != StateActive {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestTrackerRestoreAlreadyActive(t *testing.T) {
	tracker := NewTracker(&mockBackend{}, nil)
	res, err := tracker.Restore(context.Background(), Target{Kind: KindQuestionSet, ID: 1, State: StateActive})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if res.Outcome != OutcomeAlreadySatisfied {
		t.Fatalf("expected already satisfied, got %s", res.Outcome)
	}
}

func TestTrackerNotFoundPolicy(t *testing.T) {
	backend := &mockBackend{softDeleteFn: notFound, restoreFn: notFound, purgeFn: notFound}
	tracker := NewTracker(backend, AlwaysConfirm)
	ctx := context.Background()
	target := Target{Kind: KindFile, ID: 7}

	res, err := tracker.SoftDelete(ctx, target)
	if err != nil || res.Outcome != OutcomeAlreadySatisfied {
		t.Fatalf("soft delete: res=%+v err=%v", res, err)
	}

	res, err = tracker.Purge(ctx, target)
	if err != nil || res.Outcome != OutcomeAlreadySatisfied {
		t.Fatalf("purge: res=%+v err=%v", res, err)
	}

	res, err = tracker.Restore(ctx, target)
	if err != nil || res.Outcome != OutcomeUnavailable {
		t.Fatalf("restore: res=%+v err=%v", res, err)
	}
	if !strings.Contains(res.Message(), "Could not restore") {
		t.Fatalf("unexpected message %q", res.Message())
	}
}

func TestTrackerPropagatesOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	tracker := NewTracker(&mockBackend{softDeleteFn: func(context.Context, Kind, int64) error { return boom }}, nil)

	_, err := tracker.SoftDelete(context.Background(), Target{Kind: KindQuestionSet, ID: 3})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestTrackerPurgeRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	target := Target{Kind: KindQuestionSet, ID: 5, State: StateSoftDeleted}

	backend := &mockBackend{}
	if _, err := NewTracker(backend, nil).Purge(ctx, target); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed without confirmer, got %v", err)
	}

	deny := ConfirmerFunc(func(context.Context, Target) (bool, error) { return false, nil })
	if _, err := NewTracker(backend, deny).Purge(ctx, target); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed when denied, got %v", err)
	}
	if backend.purgeCalls != 0 {
		t.Fatalf("backend should not be called, got %d calls", backend.purgeCalls)
	}

	res, err := NewTracker(backend, AlwaysConfirm).Purge(ctx, target)
	if err != nil || res.Outcome != OutcomeApplied {
		t.Fatalf("confirmed purge: res=%+v err=%v", res, err)
	}
	if backend.purgeCalls != 1 {
		t.Fatalf("expected one purge call, got %d", backend.purgeCalls)
	}
}

func TestTrackerPurgeActiveRejected(t *testing.T) {
	backend := &mockBackend{}
	_, err := NewTracker(backend, AlwaysConfirm).Purge(context.Background(), Target{Kind: KindQuestionSet, ID: 5, State: StateActive})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if backend.purgeCalls != 0 {
		t.Fatalf("backend should not be called")
	}
}

func TestTrackerRejectsTransitionsFromPurgedState(t *testing.T) {
	var calls int
	record := func(context.Context, Kind, int64) error {
		calls++
		return nil
	}
	tracker := NewTracker(&mockBackend{softDeleteFn: record, restoreFn: record}, AlwaysConfirm)
	target := Target{Kind: KindFile, ID: 9, State: StatePermanentlyDeleted}

	if _, err := tracker.SoftDelete(context.Background(), target); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("soft delete: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := tracker.Restore(context.Background(), target); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("restore: expected ErrInvalidTransition, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("backend should not be called, got %d calls", calls)
	}
}

func TestPromptConfirmer(t *testing.T) {
	var out bytes.Buffer
	p := &PromptConfirmer{In: strings.NewReader("yes\nn\n"), Out: &out}
	target := Target{Kind: KindQuestionSet, ID: 9, Label: "UTS Algoritma"}

	ok, err := p.Confirm(context.Background(), target)
	if err != nil || !ok {
		t.Fatalf("first answer: ok=%v err=%v", ok, err)
	}
	ok, err = p.Confirm(context.Background(), target)
	if err != nil || ok {
		t.Fatalf("second answer: ok=%v err=%v", ok, err)
	}
	ok, err = p.Confirm(context.Background(), target)
	if err != nil || ok {
		t.Fatalf("eof should deny: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(out.String(), "UTS Algoritma") {
		t.Fatalf("prompt should name the target, got %q", out.String())
	}
}

type row struct {
	id   int64
	name string
}

func rowKey(r row) int64 { return r.id }

func TestOptimisticListKeepsRemovalOnSuccess(t *testing.T) {
	list := NewOptimisticList([]row{{1, "a"}, {2, "b"}, {3, "c"}}, rowKey)

	_, err := list.Apply(context.Background(), 2, func(context.Context) (Result, error) {
		if list.Len() != 2 {
			t.Errorf("entry should be removed before the command runs")
		}
		return Result{Outcome: OutcomeApplied}, nil
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := list.Items(); len(got) != 2 || got[0].id != 1 || got[1].id != 3 {
		t.Fatalf("unexpected items %+v", got)
	}
}

func TestOptimisticListCompensatesOnFailure(t *testing.T) {
	list := NewOptimisticList([]row{{1, "a"}, {2, "b"}, {3, "c"}}, rowKey)

	_, err := list.Apply(context.Background(), 2, func(context.Context) (Result, error) {
		return Result{}, errors.New("server error")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	got := list.Items()
	if len(got) != 3 || got[1].id != 2 {
		t.Fatalf("entry should be back at its position, got %+v", got)
	}
}

func TestOptimisticListUnknownID(t *testing.T) {
	list := NewOptimisticList([]row{{1, "a"}}, rowKey)
	called := false
	_, err := list.Apply(context.Background(), 99, func(context.Context) (Result, error) {
		called = true
		return Result{}, errors.New("fail")
	})
	if err == nil || !called {
		t.Fatalf("command should run and fail: called=%v err=%v", called, err)
	}
	if list.Len() != 1 {
		t.Fatalf("list should be unchanged")
	}
}
