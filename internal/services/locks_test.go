package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget/internal/core"
)

func TestParseLockMode(t *testing.T) {
	cases := map[string]LockMode{
		"":        LockQueue,
		"queue":   LockQueue,
		" QUEUE ": LockQueue,
		"reject":  LockReject,
	}
	for in, want := range cases {
		got, err := ParseLockMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLockMode("wait")
	assert.Error(t, err)
}

func TestKeyedLocksReleaseForgetsKeys(t *testing.T) {
	locks := newKeyedLocks(LockQueue)
	release, err := locks.acquire(context.Background(), "b", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 2, locks.size())

	release()
	assert.Zero(t, locks.size())
}

func TestKeyedLocksRejectMode(t *testing.T) {
	locks := newKeyedLocks(LockReject)
	release, err := locks.acquire(context.Background(), "cat:1")
	require.NoError(t, err)

	_, err = locks.acquire(context.Background(), "cat:0", "cat:1")
	var conflict *core.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "cat:1", conflict.Key)

	// cat:0 was taken before the conflict and must have been released.
	other, err := locks.acquire(context.Background(), "cat:0")
	require.NoError(t, err)
	other()

	release()
	assert.Zero(t, locks.size())
}

func TestKeyedLocksQueueWaitsForRelease(t *testing.T) {
	locks := newKeyedLocks(LockQueue)
	release, err := locks.acquire(context.Background(), "txn:1")
	require.NoError(t, err)

	got := make(chan error, 1)
	go func() {
		r, err := locks.acquire(context.Background(), "txn:1")
		if err == nil {
			r()
		}
		got <- err
	}()

	select {
	case <-got:
		t.Fatal("second acquire should wait while the key is held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case err := <-got:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired the key")
	}
	assert.Zero(t, locks.size())
}

func TestKeyedLocksQueueCancelled(t *testing.T) {
	locks := newKeyedLocks(LockQueue)
	release, err := locks.acquire(context.Background(), "txn:1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(ctx, "txn:1")

	var conflict *core.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, locks.size())
}
