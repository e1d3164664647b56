// Package bcache provides a concurrent block buffer cache.
//
// A Cache holds a fixed number of block-sized buffers that cache the
// content of mounted block devices. At most one buffer ever holds a given
// (device, block), and a buffer returned by Read is locked for its caller
// until Release.
//
// # Quick Start
//
//	c, _ := bcache.New(bcache.WithBuffers(64), bcache.WithBlockSize(4096))
//	defer c.Close()
//
//	disk, _ := device.OpenFile("disk.img", 4096, 1<<16, true)
//	_ = c.Mount(1, disk)
//
//	b, err := c.Read(ctx, 1, 42)
//	if err != nil { ... }
//	copy(b.Data(), "hello")
//	_ = c.Write(ctx, b)
//	c.Release(b)
//
// # Concurrency
//
// Buffers are indexed by hash buckets on the block number, each with its own
// lock, so lookups of unrelated blocks do not contend. Reassigning a free
// buffer to a new block is serialized by one eviction lock, which also
// guarantees that concurrent misses on the same block share one buffer.
// Device transfers happen under the buffer's own sleeping lock only.
//
// # Eviction
//
// A miss reuses the first unreferenced buffer in pool order and moves it to
// the front of its new bucket. Hits and releases do not reorder anything.
// Pin keeps a buffer from being reused after Release.
//
// # Failure
//
// Device errors are returned as *TransferError and match ErrIO. Running out
// of buffers and misusing a handle (writing or releasing a buffer the caller
// does not hold, unpinning more than pinned) leave the cache with no safe way
// forward: the cache logs the condition and panics with a *FatalError.
//
// # Devices
//
// Package device provides ramdisks, disk images (pread/pwrite or mmap), and
// blob-backed devices storing one compressed, checksummed object per block
// in a blobstore.BlobStore (local filesystem, MinIO, S3).
package bcache
