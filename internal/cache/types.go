package cache

import (
	"errors"
	"math"
	"sync/atomic"
)

// NoDev marks a slot that carries no identity. It never matches a lookup.
const NoDev = math.MaxUint32

var (
	// ErrNoBuffers is returned by Acquire when every slot is referenced.
	ErrNoBuffers = errors.New("cache: no free buffers")
	// ErrRefUnderflow is returned when a reference is dropped that was never taken.
	ErrRefUnderflow = errors.New("cache: reference count underflow")
	// ErrStale is returned when a slot no longer carries the expected identity.
	ErrStale = errors.New("cache: slot identity changed")
	// ErrInvalidSize is returned by New for non-positive sizes.
	ErrInvalidSize = errors.New("cache: slot and bucket counts must be positive")
)

// Key identifies a device block.
type Key struct {
	Dev   uint32
	Block uint32
}

// slot is the structural half of a buffer. The payload and the sleep lock
// live with the caller, indexed by the same slot number.
type slot struct {
	// key changes only under the evict lock plus the lock of every bucket
	// the slot moves between. Invalidate may clear key.Dev under the slot's
	// bucket lock alone, since misses read only key.Block without a lock.
	key Key

	// valid is owned by the holder of the buffer's sleep lock. It is reset
	// only while refs == 0.
	valid bool

	// refs is written under the slot's bucket lock. Lock-free loads are
	// advisory and must be revalidated under the lock before acting.
	refs atomic.Int32
}

type node struct {
	prev, next int
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Slots   int
	Buckets int
	Hits    int64
	Misses  int64
	Steals  int64
	// InUse counts slots with outstanding references (advisory).
	InUse int
}
