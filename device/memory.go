package device

import (
	"context"
	"sync"
	"sync/atomic"
)

// Memory is a ramdisk. It counts transfers, which makes it the device of
// choice for tests.
type Memory struct {
	geometry

	mu     sync.RWMutex
	data   []byte
	closed bool

	reads  atomic.Int64
	writes atomic.Int64
}

// NewMemory returns a zero-filled ramdisk.
func NewMemory(blockSize int, blocks uint32) (*Memory, error) {
	g, err := newGeometry(blockSize, blocks)
	if err != nil {
		return nil, err
	}
	return &Memory{
		geometry: g,
		data:     make([]byte, g.size()),
	}, nil
}

// ReadBlock implements Device.
func (m *Memory) ReadBlock(ctx context.Context, block uint32, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	off, err := m.check(block, p)
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	copy(p, m.data[off:])
	m.reads.Add(1)
	return nil
}

// WriteBlock implements Device.
func (m *Memory) WriteBlock(ctx context.Context, block uint32, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	off, err := m.check(block, p)
	if err != nil {
		return err
	}

	// Distinct blocks never overlap, so writers share the read lock.
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	copy(m.data[off:off+int64(m.blockSize)], p)
	m.writes.Add(1)
	return nil
}

// Reads returns the number of completed ReadBlock calls.
func (m *Memory) Reads() int64 { return m.reads.Load() }

// Writes returns the number of completed WriteBlock calls.
func (m *Memory) Writes() int64 { return m.writes.Load() }

// Close implements Device.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}
