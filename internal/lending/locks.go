package lending

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned when a bounded lock acquisition times out. It is
// transient: the caller may retry immediately.
var ErrBusy = errors.New("resource busy, try again")

// keyedLocks serializes mutating operations per entity id. Each key gets a
// weighted semaphore of capacity one, so operations on distinct keys never
// block each other. Acquisition is bounded: a blocked caller gets ErrBusy
// instead of waiting on a racing holder indefinitely.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[uint]*semaphore.Weighted
	wait  time.Duration
}

func newKeyedLocks(wait time.Duration) *keyedLocks {
	return &keyedLocks{
		locks: make(map[uint]*semaphore.Weighted),
		wait:  wait,
	}
}

func (k *keyedLocks) lockFor(key uint) *semaphore.Weighted {
	k.mu.Lock()
	defer k.mu.Unlock()

	sem, ok := k.locks[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		k.locks[key] = sem
	}
	return sem
}

// Acquire takes the lock for key, waiting at most the configured bound.
func (k *keyedLocks) Acquire(ctx context.Context, key uint) error {
	ctx, cancel := context.WithTimeout(ctx, k.wait)
	defer cancel()

	if err := k.lockFor(key).Acquire(ctx, 1); err != nil {
		return ErrBusy
	}
	return nil
}

// Release frees the lock for key. It must only be called after a successful Acquire.
func (k *keyedLocks) Release(key uint) {
	k.lockFor(key).Release(1)
}
