package device

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/bcache/blobstore"
	"github.com/hupe1980/bcache/internal/blockcodec"
)

// BlobOption configures a Blob device.
type BlobOption func(*Blob)

// WithCompression selects the codec applied to stored blocks.
// Default: CompressionLZ4.
func WithCompression(c blockcodec.Compression) BlobOption {
	return func(b *Blob) {
		b.compression = c
	}
}

// WithBlocks bounds the device to n blocks. Default: unbounded.
func WithBlocks(n uint32) BlobOption {
	return func(b *Blob) {
		b.blocks = n
	}
}

// Blob stores each block as its own object named "<name>/<block>.blk".
// Blocks that were never written read as zeros and cost no request; a
// bitmap of stored blocks is built by listing the store at open.
type Blob struct {
	store       blobstore.BlobStore
	name        string
	blockSize   int
	blocks      uint32
	compression blockcodec.Compression

	mu      sync.RWMutex
	present *roaring.Bitmap
	closed  bool
}

// OpenBlob opens the blob device called name in store.
func OpenBlob(ctx context.Context, store blobstore.BlobStore, name string, blockSize int, opts ...BlobOption) (*Blob, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("%w: block size %d", ErrInvalidGeometry, blockSize)
	}
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("device: invalid blob device name %q", name)
	}

	b := &Blob{
		store:       store,
		name:        name,
		blockSize:   blockSize,
		compression: blockcodec.CompressionLZ4,
		present:     roaring.New(),
	}
	for _, opt := range opts {
		opt(b)
	}

	names, err := store.List(ctx, name+"/")
	if err != nil {
		return nil, fmt.Errorf("device: list %s: %w", name, err)
	}
	for _, n := range names {
		if block, ok := b.parseName(n); ok {
			b.present.Add(block)
		}
	}
	b.present.RunOptimize()

	return b, nil
}

func (b *Blob) blockName(block uint32) string {
	return fmt.Sprintf("%s/%010d.blk", b.name, block)
}

func (b *Blob) parseName(n string) (uint32, bool) {
	s, ok := strings.CutPrefix(n, b.name+"/")
	if !ok {
		return 0, false
	}
	s, ok = strings.CutSuffix(s, ".blk")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// BlockSize implements Device.
func (b *Blob) BlockSize() int { return b.blockSize }

func (b *Blob) check(block uint32, p []byte) error {
	if len(p) != b.blockSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrBlockSize, len(p), b.blockSize)
	}
	if b.blocks != 0 && block >= b.blocks {
		return fmt.Errorf("%w: block %d of %d", ErrOutOfRange, block, b.blocks)
	}
	return nil
}

// ReadBlock implements Device.
func (b *Blob) ReadBlock(ctx context.Context, block uint32, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.check(block, p); err != nil {
		return err
	}

	b.mu.RLock()
	closed, stored := b.closed, b.present.Contains(block)
	b.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if !stored {
		clear(p)
		return nil
	}

	frame, err := blobstore.ReadAll(ctx, b.store, b.blockName(block))
	if errors.Is(err, blobstore.ErrNotFound) {
		// Deleted behind our back.
		clear(p)
		return nil
	}
	if err != nil {
		return err
	}

	if err := blockcodec.Decode(frame, p); err != nil {
		return fmt.Errorf("device: block %d of %s: %w", block, b.name, err)
	}
	return nil
}

// WriteBlock implements Device.
func (b *Blob) WriteBlock(ctx context.Context, block uint32, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.check(block, p); err != nil {
		return err
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	frame, err := blockcodec.Encode(p, b.compression)
	if err != nil {
		return err
	}
	if err := b.store.Put(ctx, b.blockName(block), frame); err != nil {
		return err
	}

	b.mu.Lock()
	b.present.Add(block)
	b.mu.Unlock()
	return nil
}

// Discard deletes the stored copy of block, which then reads as zeros.
func (b *Blob) Discard(ctx context.Context, block uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if !b.present.Contains(block) {
		return nil
	}
	if err := b.store.Delete(ctx, b.blockName(block)); err != nil {
		return err
	}
	b.present.Remove(block)
	return nil
}

// Stored returns the number of blocks held in the store.
func (b *Blob) Stored() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.present.GetCardinality()
}

// Close implements Device. The store itself stays open.
func (b *Blob) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
