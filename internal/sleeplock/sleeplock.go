// Package sleeplock provides a blocking, owner-tracked lock for long
// critical sections such as holding a buffer across device I/O.
//
// Ownership is an opaque non-zero token chosen by the caller. Release and
// HeldBy compare against the token, so a handle that was already released
// cannot release the lock on behalf of its next owner.
package sleeplock

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrNotHeld is returned by Release when the token does not own the lock.
	ErrNotHeld = errors.New("sleeplock: not held by caller")
	// ErrZeroToken is returned for the reserved token 0.
	ErrZeroToken = errors.New("sleeplock: token must be non-zero")
)

// Lock is a sleeping mutual-exclusion lock. The zero value is not usable;
// create locks with New.
type Lock struct {
	name  string
	sem   *semaphore.Weighted
	owner atomic.Uint64
}

// New returns an unlocked Lock. name is used in diagnostics only.
func New(name string) *Lock {
	return &Lock{
		name: name,
		sem:  semaphore.NewWeighted(1),
	}
}

// Name returns the diagnostic name of the lock.
func (l *Lock) Name() string {
	return l.name
}

// Acquire blocks until the lock is free or ctx is done, then records token
// as the owner.
func (l *Lock) Acquire(ctx context.Context, token uint64) error {
	if token == 0 {
		return ErrZeroToken
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("sleeplock %s: %w", l.name, err)
	}
	l.owner.Store(token)
	return nil
}

// TryAcquire takes the lock for token if it is free.
func (l *Lock) TryAcquire(token uint64) bool {
	if token == 0 || !l.sem.TryAcquire(1) {
		return false
	}
	l.owner.Store(token)
	return true
}

// Release unlocks the lock. It fails with ErrNotHeld unless token owns it.
func (l *Lock) Release(token uint64) error {
	if token == 0 || !l.owner.CompareAndSwap(token, 0) {
		return fmt.Errorf("sleeplock %s: %w", l.name, ErrNotHeld)
	}
	l.sem.Release(1)
	return nil
}

// HeldBy reports whether token currently owns the lock.
func (l *Lock) HeldBy(token uint64) bool {
	return token != 0 && l.owner.Load() == token
}

// Locked reports whether anyone holds the lock.
func (l *Lock) Locked() bool {
	return l.owner.Load() != 0
}
