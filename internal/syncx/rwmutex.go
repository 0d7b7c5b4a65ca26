// Package syncx provides a reader/writer lock with context-aware
// acquisition, usable from both blocking and cancellable call paths.
package syncx

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// maxWeight bounds concurrent readers; a writer takes the full weight.
const maxWeight = 1 << 30

// RWMutex is a multi-reader single-writer lock built on a FIFO weighted
// semaphore. Readers acquire weight 1, writers acquire the full weight.
// FIFO ordering makes the lock write-preferring: once a writer is waiting,
// later readers queue behind it, so writers cannot starve.
//
// The zero value is not usable; create with NewRWMutex.
type RWMutex struct {
	sem *semaphore.Weighted
}

// NewRWMutex returns a ready-to-use lock.
func NewRWMutex() *RWMutex {
	return &RWMutex{sem: semaphore.NewWeighted(maxWeight)}
}

// Lock acquires the write lock, blocking until it is available.
func (m *RWMutex) Lock() {
	// Background context never expires, so Acquire cannot fail here.
	_ = m.sem.Acquire(context.Background(), maxWeight)
}

// LockContext acquires the write lock, giving up with ctx.Err() when the
// context is cancelled or its deadline passes before acquisition.
func (m *RWMutex) LockContext(ctx context.Context) error {
	return m.sem.Acquire(ctx, maxWeight)
}

// Unlock releases the write lock.
func (m *RWMutex) Unlock() {
	m.sem.Release(maxWeight)
}

// RLock acquires a read lock, blocking until it is available.
func (m *RWMutex) RLock() {
	_ = m.sem.Acquire(context.Background(), 1)
}

// RLockContext acquires a read lock, giving up with ctx.Err() when the
// context is cancelled or its deadline passes before acquisition.
func (m *RWMutex) RLockContext(ctx context.Context) error {
	return m.sem.Acquire(ctx, 1)
}

// RUnlock releases a read lock.
func (m *RWMutex) RUnlock() {
	m.sem.Release(1)
}
