// Package mem provides memory allocation utilities.
//
// # Aligned Allocation
//
// Buffer payloads are carved out of one aligned arena so that every block
// starts on a cache-line boundary, and on a page boundary when the block
// size is a multiple of the page size.
package mem
