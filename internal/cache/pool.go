package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Pool is a fixed set of buffer slots indexed by hash buckets.
// It is safe for concurrent use.
type Pool struct {
	slots   []slot
	nodes   []node // len(slots) slot nodes followed by one head per bucket
	buckets []bucket

	evictMu sync.Mutex

	hits   atomic.Int64
	misses atomic.Int64
	steals atomic.Int64
}

type bucket struct {
	mu sync.Mutex
}

// New creates a pool of n slots spread over the given number of buckets.
// All slots start without identity in bucket 0.
func New(n, buckets int) (*Pool, error) {
	if n < 1 || buckets < 1 {
		return nil, fmt.Errorf("%w: slots=%d buckets=%d", ErrInvalidSize, n, buckets)
	}

	p := &Pool{
		slots:   make([]slot, n),
		nodes:   make([]node, n+buckets),
		buckets: make([]bucket, buckets),
	}

	for h := range buckets {
		head := p.head(h)
		p.nodes[head] = node{prev: head, next: head}
	}

	for i := range p.slots {
		p.slots[i].key = Key{Dev: NoDev}
		p.linkFront(0, i)
	}

	return p, nil
}

// Len returns the number of slots.
func (p *Pool) Len() int {
	return len(p.slots)
}

// Buckets returns the number of buckets.
func (p *Pool) Buckets() int {
	return len(p.buckets)
}

// BucketOf returns the home bucket of a block number.
func (p *Pool) BucketOf(block uint32) int {
	return int(block % uint32(len(p.buckets)))
}

// Key returns the identity of slot i. The caller must hold a reference.
func (p *Pool) Key(i int) Key {
	return p.slots[i].key
}

// Valid reports whether slot i holds device content.
// The caller must hold the buffer's sleep lock.
func (p *Pool) Valid(i int) bool {
	return p.slots[i].valid
}

// SetValid marks slot i as holding device content.
// The caller must hold the buffer's sleep lock.
func (p *Pool) SetValid(i int) {
	p.slots[i].valid = true
}

// Refs returns the reference count of slot i. The value is advisory.
func (p *Pool) Refs(i int) int32 {
	return p.slots[i].refs.Load()
}

// Stats returns hit/miss counters and occupancy.
func (p *Pool) Stats() Stats {
	s := Stats{
		Slots:   len(p.slots),
		Buckets: len(p.buckets),
		Hits:    p.hits.Load(),
		Misses:  p.misses.Load(),
		Steals:  p.steals.Load(),
	}
	for i := range p.slots {
		if p.slots[i].refs.Load() > 0 {
			s.InUse++
		}
	}
	return s
}

// Invalidate drops the identity of every unreferenced slot of dev so that
// it can never be hit again. It returns how many slots were dropped and
// how many were skipped because they are still referenced.
func (p *Pool) Invalidate(dev uint32) (dropped, busy int) {
	for h := range p.buckets {
		b := &p.buckets[h]
		b.mu.Lock()
		for i := p.first(h); i != p.head(h); i = p.nodes[i].next {
			s := &p.slots[i]
			if s.key.Dev != dev {
				continue
			}
			if s.refs.Load() > 0 {
				busy++
				continue
			}
			s.key.Dev = NoDev
			s.valid = false
			dropped++
		}
		b.mu.Unlock()
	}
	return dropped, busy
}

// verify checks the structural invariants of the whole pool: every slot is
// linked into exactly the bucket its block hashes to, no reference count is
// negative, and no identity appears twice.
func (p *Pool) verify() error {
	p.evictMu.Lock()
	defer p.evictMu.Unlock()

	for h := range p.buckets {
		p.buckets[h].mu.Lock()
		defer p.buckets[h].mu.Unlock()
	}

	seen := make([]bool, len(p.slots))
	keys := make(map[Key]int, len(p.slots))

	for h := range p.buckets {
		prev := p.head(h)
		for i := p.first(h); i != p.head(h); i = p.nodes[i].next {
			if i < 0 || i >= len(p.slots) {
				return fmt.Errorf("bucket %d: link to %d out of range", h, i)
			}
			if p.nodes[i].prev != prev {
				return fmt.Errorf("bucket %d: slot %d has prev %d, want %d", h, i, p.nodes[i].prev, prev)
			}
			if seen[i] {
				return fmt.Errorf("bucket %d: slot %d linked twice", h, i)
			}
			seen[i] = true

			s := &p.slots[i]
			if got := p.BucketOf(s.key.Block); got != h {
				return fmt.Errorf("slot %d (block %d) in bucket %d, want %d", i, s.key.Block, h, got)
			}
			if s.refs.Load() < 0 {
				return fmt.Errorf("slot %d: negative refs %d", i, s.refs.Load())
			}
			if s.key.Dev != NoDev {
				if j, dup := keys[s.key]; dup {
					return fmt.Errorf("key %+v held by slots %d and %d", s.key, j, i)
				}
				keys[s.key] = i
			}
			prev = i
		}
	}

	for i, ok := range seen {
		if !ok {
			return fmt.Errorf("slot %d not linked into any bucket", i)
		}
	}
	return nil
}
