// Package hash computes the CRC32-Castagnoli checksums used for blocks at
// rest: block frames store the value little endian, object store uploads
// send it big endian.
package hash
