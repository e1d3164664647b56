package mem

import (
	"unsafe"
)

// Alignment is the byte alignment of allocations (one cache line).
const Alignment = 64

// AllocAligned allocates a byte slice of the given size whose first byte
// sits at an address divisible by Alignment. It returns nil for size <= 0.
//
// Note: This function allocates slightly more memory than requested to ensure alignment.
// The underlying array is kept alive by the returned slice.
func AllocAligned(size int) []byte {
	return AllocAlignedTo(size, Alignment)
}

// AllocAlignedTo is AllocAligned with a caller-chosen alignment, which must
// be a power of two.
func AllocAlignedTo(size, align int) []byte {
	if size <= 0 {
		return nil
	}
	if align <= 1 || align&(align-1) != 0 {
		return make([]byte, size)
	}

	buf := make([]byte, size+align)

	addr := uintptr(unsafe.Pointer(&buf[0])) //nolint:gosec // unsafe is required for memory alignment
	offset := (uintptr(align) - (addr & uintptr(align-1))) & uintptr(align-1)

	return buf[offset : offset+uintptr(size) : offset+uintptr(size)]
}
