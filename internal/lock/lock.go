// Package lock provides per-key locking for read-modify-write sequences
// such as "read best score, compare, insert".
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// keyMutex is a one-slot semaphore with a reference count for cleanup.
// refs counts holders plus waiters and is guarded by KeyLock.mu.
type keyMutex struct {
	slot chan struct{}
	refs int
}

// KeyLock hands out one mutex per key. Entries are dropped once nobody
// holds or waits on them, so the map stays proportional to live contention.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*keyMutex
}

// NewKeyLock creates a new KeyLock instance.
func NewKeyLock() *KeyLock {
	return &KeyLock{
		locks: make(map[string]*keyMutex),
	}
}

// acquire returns the mutex for key and registers the caller on it
func (kl *KeyLock) acquire(key string) *keyMutex {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	m, ok := kl.locks[key]
	if !ok {
		m = &keyMutex{slot: make(chan struct{}, 1)}
		kl.locks[key] = m
	}
	m.refs++
	return m
}

// release drops the caller's registration and forgets idle keys
func (kl *KeyLock) release(key string, m *keyMutex) {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	m.refs--
	if m.refs == 0 {
		delete(kl.locks, key)
	}
}

// LockContext blocks until the lock for key is held or ctx is done.
func (kl *KeyLock) LockContext(ctx context.Context, key string) error {
	m := kl.acquire(key)
	select {
	case m.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		kl.release(key, m)
		return ctx.Err()
	}
}

// Unlock releases the lock for key. Unlocking a key that is not locked panics,
// like sync.Mutex.
func (kl *KeyLock) Unlock(key string) {
	kl.mu.Lock()
	m, ok := kl.locks[key]
	kl.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("lock: unlock of unlocked key %q", key))
	}

	select {
	case <-m.slot:
	default:
		panic(fmt.Sprintf("lock: unlock of unlocked key %q", key))
	}
	kl.release(key, m)
}

// WithLockContext executes fn while holding the lock for key. Waiting is
// bounded by timeout (when positive) and by ctx; if the lock is not
// obtained, the waiting context's error is returned and fn is not called.
func (kl *KeyLock) WithLockContext(ctx context.Context, key string, timeout time.Duration, fn func() error) error {
	lockCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := kl.LockContext(lockCtx, key); err != nil {
		return err
	}
	defer kl.Unlock(key)

	return fn()
}

// Len returns the number of keys currently held or waited on
func (kl *KeyLock) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.locks)
}
