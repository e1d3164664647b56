package device

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// File is a disk image on the local filesystem. With syncWrites set every
// WriteBlock reaches stable storage before it returns.
type File struct {
	geometry

	syncWrites bool

	mu     sync.RWMutex
	f      *os.File
	closed bool
}

// OpenFile opens or creates the disk image at path. A file shorter than
// blockSize*blocks is extended with zeros.
func OpenFile(path string, blockSize int, blocks uint32, syncWrites bool) (*File, error) {
	g, err := newGeometry(blockSize, blocks)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if fi.Size() < g.size() {
		if err := f.Truncate(g.size()); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("device: grow %s: %w", path, err)
		}
	}

	return &File{geometry: g, syncWrites: syncWrites, f: f}, nil
}

// ReadBlock implements Device.
func (d *File) ReadBlock(ctx context.Context, block uint32, p []byte) error {
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
	return pread(d.f, p, off)
}

// WriteBlock implements Device.
func (d *File) WriteBlock(ctx context.Context, block uint32, p []byte) error {
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
	if err := pwrite(d.f, p, off); err != nil {
		return err
	}
	if d.syncWrites {
		return fsync(d.f)
	}
	return nil
}

// Sync implements Syncer.
func (d *File) Sync() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return fsync(d.f)
}

// Close implements Device.
func (d *File) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	err := fsync(d.f)
	if cerr := d.f.Close(); err == nil {
		err = cerr
	}
	return err
}
