package device

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned for block numbers beyond the end of a device.
	ErrOutOfRange = errors.New("device: block out of range")
	// ErrBlockSize is returned when a buffer does not match the block size.
	ErrBlockSize = errors.New("device: buffer does not match block size")
	// ErrClosed is returned by operations on a closed device.
	ErrClosed = errors.New("device: closed")
	// ErrInvalidGeometry is returned by constructors for a non-positive block
	// size or block count.
	ErrInvalidGeometry = errors.New("device: invalid geometry")
)

// Device is a block device. Transfers move exactly one block.
// Implementations must be safe for concurrent use on distinct blocks.
type Device interface {
	// BlockSize returns the size of a block in bytes.
	BlockSize() int
	// ReadBlock fills p with the content of block.
	ReadBlock(ctx context.Context, block uint32, p []byte) error
	// WriteBlock stores p as the content of block.
	WriteBlock(ctx context.Context, block uint32, p []byte) error
	// Close releases the device.
	Close() error
}

// Syncer is implemented by devices that buffer writes.
type Syncer interface {
	// Sync makes every completed WriteBlock durable.
	Sync() error
}

// Sync flushes d if it buffers writes.
func Sync(d Device) error {
	if s, ok := d.(Syncer); ok {
		return s.Sync()
	}
	return nil
}

// geometry is shared by the fixed-size devices.
type geometry struct {
	blockSize int
	blocks    uint32
}

func newGeometry(blockSize int, blocks uint32) (geometry, error) {
	if blockSize <= 0 || blocks == 0 {
		return geometry{}, fmt.Errorf("%w: block size %d, blocks %d", ErrInvalidGeometry, blockSize, blocks)
	}
	return geometry{blockSize: blockSize, blocks: blocks}, nil
}

func (g geometry) BlockSize() int { return g.blockSize }

// Blocks returns the number of blocks.
func (g geometry) Blocks() uint32 { return g.blocks }

func (g geometry) size() int64 { return int64(g.blockSize) * int64(g.blocks) }

// check validates a transfer and returns the byte offset of block.
func (g geometry) check(block uint32, p []byte) (int64, error) {
	if len(p) != g.blockSize {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrBlockSize, len(p), g.blockSize)
	}
	if block >= g.blocks {
		return 0, fmt.Errorf("%w: block %d of %d", ErrOutOfRange, block, g.blocks)
	}
	return int64(block) * int64(g.blockSize), nil
}
