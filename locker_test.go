package nitree

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockerNode(t *testing.T) {
	l := NewLocker(50 * time.Millisecond)
	ctx := context.Background()

	unlock, err := l.LockNode(ctx, "a", 1)
	require.Nil(t, err)

	// Same slot times out; other slots and scopes are free.
	_, err = l.LockNode(ctx, "a", 1)
	require.ErrorIs(t, err, ErrConflict)

	unlockOther, err := l.LockNode(ctx, "a", 2)
	require.Nil(t, err)
	unlockScope, err := l.LockNode(ctx, "b", 1)
	require.Nil(t, err)

	unlockOther()
	unlockScope()
	unlock()

	unlock, err = l.LockNode(ctx, "a", 1)
	require.Nil(t, err)
	unlock()

	l.mu.Lock()
	require.Empty(t, l.slots)
	l.mu.Unlock()
}

func TestLockerCollection(t *testing.T) {
	l := NewLocker(50 * time.Millisecond)
	ctx := context.Background()

	unlockA, err := l.LockShared(ctx)
	require.Nil(t, err)
	unlockB, err := l.LockShared(ctx)
	require.Nil(t, err)

	_, err = l.LockCollection(ctx)
	require.ErrorIs(t, err, ErrConflict)

	unlockA()
	unlockB()

	unlock, err := l.LockCollection(ctx)
	require.Nil(t, err)

	_, err = l.LockShared(ctx)
	require.ErrorIs(t, err, ErrConflict)
	unlock()
}

func TestLockerContext(t *testing.T) {
	l := NewLocker(0)

	unlock, err := l.LockCollection(context.Background())
	require.Nil(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.LockShared(ctx)
	require.ErrorIs(t, err, ErrConflict)
}

func TestLockerWaits(t *testing.T) {
	l := NewLocker(time.Second)
	ctx := context.Background()

	unlock, err := l.LockNode(ctx, "", 0)
	require.Nil(t, err)

	var wg sync.WaitGroup
	var got error
	wg.Add(1)
	go func() {
		defer wg.Done()
		var second func()
		second, got = l.LockNode(ctx, "", 0)
		if got == nil {
			second()
		}
	}()

	time.Sleep(20 * time.Millisecond)
	unlock()
	wg.Wait()
	require.Nil(t, got)
}
