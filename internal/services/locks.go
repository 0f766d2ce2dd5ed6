package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"budget/internal/core"
)

// LockMode decides what a mutation does when a key it needs is held.
type LockMode string

const (
	// LockQueue waits for the key until the context is done.
	LockQueue LockMode = "queue"
	// LockReject fails immediately with a ConflictError.
	LockReject LockMode = "reject"
)

func ParseLockMode(s string) (LockMode, error) {
	switch m := LockMode(strings.ToLower(strings.TrimSpace(s))); m {
	case LockQueue, LockReject:
		return m, nil
	case "":
		return LockQueue, nil
	default:
		return "", fmt.Errorf("invalid lock mode %q (want queue or reject)", s)
	}
}

func txnKey(id string) string { return "txn:" + id }
func catKey(id string) string { return "cat:" + id }

// nameKey guards a category name against concurrent creates and renames.
func nameKey(name string) string { return "name:" + strings.ToLower(strings.TrimSpace(name)) }

// keyedLocks is a table of per-key mutexes. Entries are reference counted
// and removed once nobody holds or waits for them.
type keyedLocks struct {
	mode  LockMode
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func newKeyedLocks(mode LockMode) *keyedLocks {
	if mode == "" {
		mode = LockQueue
	}
	return &keyedLocks{mode: mode, locks: make(map[string]*keyLock)}
}

// acquire locks every key in sorted order. On failure nothing stays held.
// Callers that take several batches must take them in a fixed order.
func (k *keyedLocks) acquire(ctx context.Context, keys ...string) (release func(), err error) {
	keys = sortedUnique(keys)
	held := make([]string, 0, len(keys))
	release = func() {
		for i := len(held) - 1; i >= 0; i-- {
			k.unlock(held[i])
		}
		held = held[:0]
	}
	for _, key := range keys {
		if err := k.lock(ctx, key); err != nil {
			release()
			return func() {}, err
		}
		held = append(held, key)
	}
	return release, nil
}

func (k *keyedLocks) lock(ctx context.Context, key string) error {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	if k.mode == LockReject {
		select {
		case l.sem <- struct{}{}:
			return nil
		default:
			k.forget(key, l)
			return &core.ConflictError{Key: key}
		}
	}

	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.forget(key, l)
		return &core.ConflictError{Key: key, Err: context.Cause(ctx)}
	}
}

func (k *keyedLocks) unlock(key string) {
	k.mu.Lock()
	l := k.locks[key]
	k.mu.Unlock()
	<-l.sem
	k.forget(key, l)
}

func (k *keyedLocks) forget(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// size reports how many keys are held or awaited.
func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func sortedUnique(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
