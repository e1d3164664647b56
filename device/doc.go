// Package device provides the block devices a cache transfers to and from.
//
// Every device moves whole blocks of a fixed size. The package ships:
//
//   - Memory: a ramdisk
//   - File: a disk image accessed with pread/pwrite
//   - Mmap: a disk image mapped into memory
//   - Blob: one object per block in a blobstore.BlobStore, compressed and
//     checksummed
//   - Throttled: a wrapper that bounds transfer throughput
//
// Devices are safe for concurrent transfers of distinct blocks. Callers
// serialize access to any single block.
package device
