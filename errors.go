package bcache

import (
	"errors"
	"fmt"

	"github.com/hupe1980/bcache/internal/cache"
	"github.com/hupe1980/bcache/internal/sleeplock"
)

var (
	// ErrNoBuffers means every buffer is referenced. It is fatal.
	ErrNoBuffers = cache.ErrNoBuffers
	// ErrNotHeld means a buffer was written or released by a caller that
	// does not hold it. It is fatal.
	ErrNotHeld = sleeplock.ErrNotHeld
	// ErrRefUnderflow means a buffer was unpinned more often than pinned.
	// It is fatal.
	ErrRefUnderflow = cache.ErrRefUnderflow
	// ErrStaleBuffer means a handle was used after its buffer was reassigned.
	// It is fatal.
	ErrStaleBuffer = cache.ErrStale

	// ErrNoDevice is returned for a device id that is not mounted.
	ErrNoDevice = errors.New("bcache: no such device")
	// ErrInvalidDevice is returned by Mount for the reserved id NoDev.
	ErrInvalidDevice = errors.New("bcache: reserved device id")
	// ErrDeviceMounted is returned by Mount for an id already in use.
	ErrDeviceMounted = errors.New("bcache: device already mounted")
	// ErrDeviceBusy is returned by Unmount while buffers of the device are held.
	ErrDeviceBusy = errors.New("bcache: device busy")
	// ErrBlockSize is returned by Mount for a device whose block size
	// differs from the cache's.
	ErrBlockSize = errors.New("bcache: block size mismatch")
	// ErrIO is matched by every TransferError.
	ErrIO = errors.New("bcache: i/o error")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("bcache: closed")
	// ErrInvalidConfig is returned by New for out-of-range options.
	ErrInvalidConfig = errors.New("bcache: invalid config")
)

// TransferError reports a failed device transfer. It matches ErrIO.
//
// The device error can be accessed via errors.Unwrap.
type TransferError struct {
	Op    Op
	Dev   uint32
	Block uint32
	cause error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("bcache: %s dev %d block %d: %v", e.Op, e.Dev, e.Block, e.cause)
}

func (e *TransferError) Unwrap() error { return e.cause }

// Is reports whether target is ErrIO.
func (e *TransferError) Is(target error) bool { return target == ErrIO }

// FatalError is the panic value for conditions the cache cannot recover
// from: exhaustion and misuse of buffer handles.
//
// The underlying error can be accessed via errors.Unwrap.
type FatalError struct {
	Op    Op
	Dev   uint32
	Block uint32
	cause error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("bcache: fatal: %s dev %d block %d: %v", e.Op, e.Dev, e.Block, e.cause)
}

func (e *FatalError) Unwrap() error { return e.cause }
