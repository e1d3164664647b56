package device

import (
	"context"
	"sync"

	"github.com/hupe1980/bcache/internal/mmap"
)

// Mmap is a disk image mapped into memory. Writes land in the page cache;
// Sync and Close flush them to the file.
type Mmap struct {
	geometry

	mu     sync.RWMutex
	m      *mmap.Mapping
	closed bool
}

// OpenMmap maps the disk image at path, creating or resizing it to
// blockSize*blocks bytes.
func OpenMmap(path string, blockSize int, blocks uint32) (*Mmap, error) {
	g, err := newGeometry(blockSize, blocks)
	if err != nil {
		return nil, err
	}

	m, err := mmap.Create(path, int(g.size()))
	if err != nil {
		return nil, err
	}
	_ = m.Advise(mmap.AccessRandom)

	return &Mmap{geometry: g, m: m}, nil
}

// ReadBlock implements Device.
func (d *Mmap) ReadBlock(ctx context.Context, block uint32, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	off, err := d.check(block, p)
	if err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	_, err = d.m.ReadAt(p, off)
	return err
}

// WriteBlock implements Device.
func (d *Mmap) WriteBlock(ctx context.Context, block uint32, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	off, err := d.check(block, p)
	if err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	_, err = d.m.WriteAt(p, off)
	return err
}

// Sync implements Syncer.
func (d *Mmap) Sync() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return d.m.Sync()
}

// Close implements Device.
func (d *Mmap) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	err := d.m.Sync()
	if cerr := d.m.Close(); err == nil {
		err = cerr
	}
	return err
}
