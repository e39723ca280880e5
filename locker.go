package nitree

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// A Locker provides the exclusive access a Tree needs around writes.
//
// Inserts and deletes hold the collection in shared mode plus the slot they
// write under: a parent node, or the root slot of a scope (id 0).  Moves and
// rebuilds hold the whole collection exclusively, which also waits out every
// shared holder.  Every acquisition honours ctx; a failure wraps
// ErrConflict.
type Locker interface {
	LockNode(ctx context.Context, scope string, id NodeID) (unlock func(), err error)
	LockShared(ctx context.Context) (unlock func(), err error)
	LockCollection(ctx context.Context) (unlock func(), err error)
}

const collectionWeight = 1 << 30

type slotKey struct {
	scope string
	id    NodeID
}

type slotLock struct {
	sem  *semaphore.Weighted
	refs int
}

// SemaphoreLocker is an in-process Locker built on weighted semaphores.
// Waiters are served in order, so a pending exclusive lock holds back later
// shared requests instead of starving.
type SemaphoreLocker struct {
	timeout    time.Duration
	collection *semaphore.Weighted

	mu    sync.Mutex
	slots map[slotKey]*slotLock
}

// NewLocker returns a SemaphoreLocker.  A positive timeout bounds every
// acquisition in addition to the caller's context.
func NewLocker(timeout time.Duration) *SemaphoreLocker {
	return &SemaphoreLocker{
		timeout:    timeout,
		collection: semaphore.NewWeighted(collectionWeight),
		slots:      map[slotKey]*slotLock{},
	}
}

func (l *SemaphoreLocker) acquire(ctx context.Context, sem *semaphore.Weighted, n int64, what string) error {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	if err := sem.Acquire(ctx, n); err != nil {
		return fmt.Errorf("%w: lock %s: %v", ErrConflict, what, err)
	}
	return nil
}

func (l *SemaphoreLocker) LockShared(ctx context.Context) (func(), error) {
	if err := l.acquire(ctx, l.collection, 1, "collection (shared)"); err != nil {
		return nil, err
	}
	return func() { l.collection.Release(1) }, nil
}

func (l *SemaphoreLocker) LockCollection(ctx context.Context) (func(), error) {
	if err := l.acquire(ctx, l.collection, collectionWeight, "collection"); err != nil {
		return nil, err
	}
	return func() { l.collection.Release(collectionWeight) }, nil
}

func (l *SemaphoreLocker) LockNode(ctx context.Context, scope string, id NodeID) (func(), error) {
	key := slotKey{scope, id}

	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slotLock{sem: semaphore.NewWeighted(1)}
		l.slots[key] = s
	}
	s.refs += 1
	l.mu.Unlock()

	if err := l.acquire(ctx, s.sem, 1, fmt.Sprintf("node %d in scope %q", id, scope)); err != nil {
		l.dropRef(key, s)
		return nil, err
	}

	return func() {
		s.sem.Release(1)
		l.dropRef(key, s)
	}, nil
}

func (l *SemaphoreLocker) dropRef(key slotKey, s *slotLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs -= 1
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
