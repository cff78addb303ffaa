package lifecycle

import (
	"context"
	"sync"
)

// OptimisticList is an in-memory listing (active sets, recycle bin) that
// drops an entry as soon as the user acts on it. Commands run one at a time;
// a failed command puts the entry back where it was.
type OptimisticList[T any] struct {
	key func(T) int64

	mu    sync.Mutex
	items []T

	// queue serializes commands so compensations never interleave.
	queue sync.Mutex
}

// NewOptimisticList copies items into a new list keyed by key.
func NewOptimisticList[T any](items []T, key func(T) int64) *OptimisticList[T] {
	return &OptimisticList[T]{
		key:   key,
		items: append([]T(nil), items...),
	}
}

// Items returns a snapshot of the current entries.
func (l *OptimisticList[T]) Items() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]T(nil), l.items...)
}

// Len returns the number of entries.
func (l *OptimisticList[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Replace swaps the entries, e.g. after a full refetch.
func (l *OptimisticList[T]) Replace(items []T) {
	l.mu.Lock()
	l.items = append([]T(nil), items...)
	l.mu.Unlock()
}

// Apply removes the entry with the given id and then runs cmd. If cmd fails
// the entry is re-inserted at its previous position. Results that are not
// errors (including OutcomeUnavailable) keep the removal.
func (l *OptimisticList[T]) Apply(ctx context.Context, id int64, cmd func(context.Context) (Result, error)) (Result, error) {
	l.queue.Lock()
	defer l.queue.Unlock()

	item, idx, removed := l.remove(id)

	res, err := cmd(ctx)
	if err != nil && removed {
		l.insert(idx, item)
	}
	return res, err
}

func (l *OptimisticList[T]) remove(id int64) (T, int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, item := range l.items {
		if l.key(item) == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return item, i, true
		}
	}
	var zero T
	return zero, -1, false
}

func (l *OptimisticList[T]) insert(idx int, item T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if idx > len(l.items) {
		idx = len(l.items)
	}
	l.items = append(l.items, item)
	copy(l.items[idx+1:], l.items[idx:])
	l.items[idx] = item
}
