package cache

// Acquire returns the slot holding key with its reference count raised by
// one. hit reports whether the slot already carried key; otherwise an
// unreferenced slot was reassigned to key and marked invalid. Acquire
// returns ErrNoBuffers when every slot is referenced.
func (p *Pool) Acquire(key Key) (i int, hit bool, err error) {
	h := p.BucketOf(key.Block)
	home := &p.buckets[h]

	home.mu.Lock()
	if i, ok := p.find(h, key); ok {
		p.slots[i].refs.Add(1)
		home.mu.Unlock()
		p.hits.Add(1)
		return i, true, nil
	}
	home.mu.Unlock()

	// The evict lock is taken with no bucket lock held. Holding home while
	// waiting here would deadlock against a miss that picked home as donor.
	p.evictMu.Lock()
	defer p.evictMu.Unlock()

	home.mu.Lock()
	defer home.mu.Unlock()

	// Another miss for the same key may have linked it in the meantime.
	if i, ok := p.find(h, key); ok {
		p.slots[i].refs.Add(1)
		p.hits.Add(1)
		return i, true, nil
	}

	p.misses.Add(1)

	for i := range p.slots {
		s := &p.slots[i]
		g := p.BucketOf(s.key.Block)

		if g == h {
			if s.refs.Load() != 0 {
				continue
			}
			p.unlink(i)
			p.claim(i, key)
			p.linkFront(h, i)
			return i, false, nil
		}

		// Unlocked read; revalidated under the donor lock.
		if s.refs.Load() != 0 {
			continue
		}
		if p.steal(g, h, i, key) {
			return i, false, nil
		}
	}

	return -1, false, ErrNoBuffers
}

// steal moves slot i from donor bucket g into bucket h under key if it is
// still unreferenced. The caller holds the evict lock and the lock of h.
func (p *Pool) steal(g, h, i int, key Key) bool {
	donor := &p.buckets[g]
	donor.mu.Lock()
	defer donor.mu.Unlock()

	if p.slots[i].refs.Load() != 0 {
		return false
	}

	p.unlink(i)
	p.claim(i, key)
	p.linkFront(h, i)
	p.steals.Add(1)
	return true
}

func (p *Pool) claim(i int, key Key) {
	s := &p.slots[i]
	s.key = key
	s.valid = false
	s.refs.Store(1)
}

// Ref raises the reference count of slot i, which must still carry key.
func (p *Pool) Ref(i int, key Key) error {
	h := p.BucketOf(key.Block)
	b := &p.buckets[h]
	b.mu.Lock()
	defer b.mu.Unlock()

	if j, ok := p.find(h, key); !ok || j != i {
		return ErrStale
	}
	p.slots[i].refs.Add(1)
	return nil
}

// Unref drops one reference of slot i, which must still carry key. The
// slot stays linked where it is; recency changes only when a slot is claimed.
func (p *Pool) Unref(i int, key Key) error {
	h := p.BucketOf(key.Block)
	b := &p.buckets[h]
	b.mu.Lock()
	defer b.mu.Unlock()

	if j, ok := p.find(h, key); !ok || j != i {
		return ErrStale
	}
	s := &p.slots[i]
	if s.refs.Load() <= 0 {
		return ErrRefUnderflow
	}
	s.refs.Add(-1)
	return nil
}
