// Package mmap maps files into memory for zero-copy block access.
//
// Open maps a file read-only. Create maps a file of fixed size read-write
// and shared, so stores through WriteAt reach the file once Sync returns.
//
//	m, err := mmap.Create("disk.img", 1<<20)
//	if err != nil { ... }
//	defer m.Close()
//
//	_, _ = m.WriteAt(block, off)
//	_ = m.Sync()
//
// Only Unix platforms are supported. Elsewhere Open and Create return
// ErrUnsupported.
//
// Mappings are safe for concurrent access to disjoint ranges. Close is
// idempotent; callers must not touch Bytes after Close returns.
package mmap
