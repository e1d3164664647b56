package cache

// head returns the sentinel node of bucket h.
func (p *Pool) head(h int) int {
	return len(p.slots) + h
}

// first returns the most recently linked slot of bucket h, or head(h) if
// the bucket is empty.
func (p *Pool) first(h int) int {
	return p.nodes[p.head(h)].next
}

// find scans bucket h for key. The caller holds the lock of bucket h.
func (p *Pool) find(h int, key Key) (int, bool) {
	for i := p.first(h); i != p.head(h); i = p.nodes[i].next {
		if p.slots[i].key == key {
			return i, true
		}
	}
	return -1, false
}

// unlink removes slot i from its bucket. The caller holds that bucket's lock.
func (p *Pool) unlink(i int) {
	n := &p.nodes[i]
	p.nodes[n.prev].next = n.next
	p.nodes[n.next].prev = n.prev
	n.prev, n.next = i, i
}

// linkFront inserts slot i at the most-recently-used end of bucket h.
// The caller holds the lock of bucket h.
func (p *Pool) linkFront(h, i int) {
	head := p.head(h)
	next := p.nodes[head].next
	p.nodes[i] = node{prev: head, next: next}
	p.nodes[next].prev = i
	p.nodes[head].next = i
}

// members lists the slots of bucket h from most to least recently linked.
// The caller holds the lock of bucket h.
func (p *Pool) members(h int) []int {
	var out []int
	for i := p.first(h); i != p.head(h); i = p.nodes[i].next {
		out = append(out, i)
	}
	return out
}
