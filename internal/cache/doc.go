// Package cache implements the slot pool behind the block buffer cache.
//
// # Layout
//
// The pool is a fixed array of slots partitioned into hash buckets by
// block number. Every bucket is a circular doubly-linked list threaded
// through an index array: nodes [0, n) belong to the slots, nodes
// [n, n+buckets) are the bucket heads. Links are plain ints, so no slot
// ever holds a pointer to another.
//
// # Locking
//
//   - bucket lock: guards the bucket's links, the refcounts of its members,
//     and identity changes of its members.
//   - evict lock: serializes misses. A miss drops the home bucket lock,
//     takes the evict lock, then re-locks the home bucket and at most one
//     donor bucket.
//
// A goroutine holds two bucket locks only while it holds the evict lock,
// and it never waits for the evict lock while holding a bucket lock. Nothing
// in this package blocks on I/O or on a buffer's sleep lock; callers take
// those after Acquire returns.
package cache
