package bcache

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/bcache/device"
	"github.com/hupe1980/bcache/internal/cache"
	"github.com/hupe1980/bcache/internal/mem"
	"github.com/hupe1980/bcache/internal/sleeplock"
)

const pageSize = 4096

// NoDev is the reserved device id carried by buffers without identity.
// It cannot be mounted.
const NoDev uint32 = cache.NoDev

// Cache is a fixed pool of block buffers shared by the mounted devices.
// It is safe for concurrent use.
type Cache struct {
	opts options

	pool  *cache.Pool
	locks []*sleeplock.Lock
	arena []byte

	devMu   sync.RWMutex
	devices map[uint32]device.Device

	tokens atomic.Uint64
	closed atomic.Bool

	transfersIn  atomic.Int64
	transfersOut atomic.Int64
}

// New creates a cache. All buffers start empty.
func New(optFns ...Option) (*Cache, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.buffers < 1 || opts.buckets < 1 || opts.blockSize < 1 {
		return nil, fmt.Errorf("%w: buffers=%d buckets=%d block_size=%d",
			ErrInvalidConfig, opts.buffers, opts.buckets, opts.blockSize)
	}

	pool, err := cache.New(opts.buffers, opts.buckets)
	if err != nil {
		return nil, err
	}

	arenaSize := int64(opts.buffers) * int64(opts.blockSize)
	if err := opts.resources.AcquireMemory(arenaSize); err != nil {
		return nil, fmt.Errorf("bcache: reserve %d bytes: %w", arenaSize, err)
	}

	c := &Cache{
		opts:    opts,
		pool:    pool,
		locks:   make([]*sleeplock.Lock, opts.buffers),
		arena:   mem.AllocAlignedTo(int(arenaSize), arenaAlignment(opts.blockSize)),
		devices: make(map[uint32]device.Device),
	}
	for i := range c.locks {
		c.locks[i] = sleeplock.New(fmt.Sprintf("buffer %d", i))
	}

	opts.logger.Info("cache created",
		"buffers", opts.buffers,
		"buckets", opts.buckets,
		"block_size", opts.blockSize,
	)
	return c, nil
}

// BlockSize returns the block size of the cache.
func (c *Cache) BlockSize() int {
	return c.opts.blockSize
}

// arenaAlignment page-aligns the arena when blocks are whole pages.
func arenaAlignment(blockSize int) int {
	if blockSize%pageSize == 0 {
		return pageSize
	}
	return mem.Alignment
}

func (c *Cache) payload(i int) []byte {
	bs := c.opts.blockSize
	return c.arena[i*bs : (i+1)*bs : (i+1)*bs]
}

// fatal logs and panics. Used for exhaustion and handle misuse, which
// leave no safe way to continue.
func (c *Cache) fatal(op Op, dev, block uint32, cause error) {
	err := &FatalError{Op: op, Dev: dev, Block: block, cause: cause}
	c.opts.logger.LogFatal(context.Background(), err)
	panic(err)
}

// Mount attaches d under id dev. The device's block size must match the
// cache's. If the cache has a resource controller, transfers are charged
// against its I/O budget.
func (c *Cache) Mount(dev uint32, d device.Device) error {
	err := c.mount(dev, d)
	c.opts.logger.LogMount(context.Background(), dev, true, err)
	return err
}

func (c *Cache) mount(dev uint32, d device.Device) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if dev == NoDev {
		return ErrInvalidDevice
	}
	if d.BlockSize() != c.opts.blockSize {
		return fmt.Errorf("%w: device %d has %d, cache has %d", ErrBlockSize, dev, d.BlockSize(), c.opts.blockSize)
	}

	c.devMu.Lock()
	defer c.devMu.Unlock()

	if _, ok := c.devices[dev]; ok {
		return fmt.Errorf("%w: %d", ErrDeviceMounted, dev)
	}
	c.devices[dev] = device.Throttled(d, c.opts.resources)
	return nil
}

// Unmount drops every cached block of dev, detaches it and closes it.
// It fails with ErrDeviceBusy while any buffer of dev is held or pinned.
func (c *Cache) Unmount(dev uint32) error {
	ctx := context.Background()

	c.devMu.Lock()
	d, ok := c.devices[dev]
	if !ok {
		c.devMu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoDevice, dev)
	}

	// Holding the registry lock keeps new lookups for dev out.
	dropped, busy := c.pool.Invalidate(dev)
	c.opts.logger.LogInvalidate(ctx, dev, dropped, busy)
	if busy > 0 {
		c.devMu.Unlock()
		err := fmt.Errorf("%w: %d buffers of device %d in use", ErrDeviceBusy, busy, dev)
		c.opts.logger.LogMount(ctx, dev, false, err)
		return err
	}
	delete(c.devices, dev)
	c.devMu.Unlock()

	err := d.Close()
	c.opts.logger.LogMount(ctx, dev, false, err)
	return err
}

// Invalidate drops every cached block of dev that nobody holds, so the next
// Read goes to the device. Held buffers are left alone. It returns the
// number of buffers dropped.
func (c *Cache) Invalidate(dev uint32) int {
	if dev == NoDev {
		return 0
	}
	dropped, busy := c.pool.Invalidate(dev)
	c.opts.logger.LogInvalidate(context.Background(), dev, dropped, busy)
	return dropped
}

// Sync flushes the write buffers of dev, if it has any.
func (c *Cache) Sync(dev uint32) error {
	c.devMu.RLock()
	d, ok := c.devices[dev]
	c.devMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoDevice, dev)
	}
	return device.Sync(d)
}

// Read returns the buffer for block of dev, locked for the caller. If the
// buffer does not hold the block's content yet it is read from the device.
//
// ctx bounds the wait for the buffer lock and the device read. Read panics
// with a *FatalError wrapping ErrNoBuffers if every buffer is in use.
func (c *Cache) Read(ctx context.Context, dev, block uint32) (*Buf, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	key := cache.Key{Dev: dev, Block: block}

	c.devMu.RLock()
	d, ok := c.devices[dev]
	if !ok {
		c.devMu.RUnlock()
		return nil, fmt.Errorf("%w: %d", ErrNoDevice, dev)
	}
	i, hit, err := c.pool.Acquire(key)
	c.devMu.RUnlock()

	if err != nil {
		c.fatal(OpRead, dev, block, err)
	}
	if hit {
		c.opts.metricsCollector.RecordHit()
	} else {
		c.opts.metricsCollector.RecordMiss()
		c.opts.logger.LogMiss(ctx, dev, block, i)
	}

	b := &Buf{c: c, idx: i, token: c.tokens.Add(1), dev: dev, block: block}

	if err := c.locks[i].Acquire(ctx, b.token); err != nil {
		c.unref(OpRead, b)
		return nil, fmt.Errorf("bcache: read dev %d block %d: %w", dev, block, err)
	}

	if !c.pool.Valid(i) {
		if err := c.transfer(ctx, OpRead, d, b); err != nil {
			c.release(b)
			return nil, err
		}
		c.pool.SetValid(i)
	}

	return b, nil
}

// Write stores the payload of b on its device. The caller must hold b.
func (c *Cache) Write(ctx context.Context, b *Buf) error {
	c.mustHold(OpWrite, b)

	c.devMu.RLock()
	d, ok := c.devices[b.dev]
	c.devMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoDevice, b.dev)
	}

	return c.transfer(ctx, OpWrite, d, b)
}

// Release unlocks b and drops the reference Read took. b must not be used
// afterwards. Releasing a buffer the caller does not hold is fatal.
func (c *Cache) Release(b *Buf) {
	c.mustHold(OpRelease, b)
	c.release(b)
}

// Pin keeps the buffer of b from being reassigned, even after Release,
// until the matching Unpin. It does not lock the buffer.
func (c *Cache) Pin(b *Buf) {
	if err := c.pool.Ref(b.idx, cache.Key{Dev: b.dev, Block: b.block}); err != nil {
		c.fatal(OpPin, b.dev, b.block, err)
	}
}

// Unpin undoes one Pin.
func (c *Cache) Unpin(b *Buf) {
	c.unref(OpUnpin, b)
}

func (c *Cache) mustHold(op Op, b *Buf) {
	if !c.locks[b.idx].HeldBy(b.token) {
		c.fatal(op, b.dev, b.block, ErrNotHeld)
	}
}

func (c *Cache) release(b *Buf) {
	if err := c.locks[b.idx].Release(b.token); err != nil {
		c.fatal(OpRelease, b.dev, b.block, err)
	}
	c.unref(OpRelease, b)
}

func (c *Cache) unref(op Op, b *Buf) {
	if err := c.pool.Unref(b.idx, cache.Key{Dev: b.dev, Block: b.block}); err != nil {
		c.fatal(op, b.dev, b.block, err)
	}
}

// transfer moves the payload of b to or from d. The caller holds b.
func (c *Cache) transfer(ctx context.Context, op Op, d device.Device, b *Buf) error {
	p := c.payload(b.idx)
	start := time.Now()

	var err error
	if op == OpRead {
		err = d.ReadBlock(ctx, b.block, p)
		c.transfersIn.Add(1)
	} else {
		err = d.WriteBlock(ctx, b.block, p)
		c.transfersOut.Add(1)
	}

	elapsed := time.Since(start)
	c.opts.metricsCollector.RecordTransfer(op, len(p), elapsed, err)
	c.opts.logger.LogTransfer(ctx, op, b.dev, b.block, elapsed, err)

	if err != nil {
		return &TransferError{Op: op, Dev: b.dev, Block: b.block, cause: err}
	}
	return nil
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Buffers   int
	Buckets   int
	BlockSize int
	Devices   int
	// InUse counts buffers that are held or pinned.
	InUse        int
	Hits         int64
	Misses       int64
	Steals       int64
	TransfersIn  int64
	TransfersOut int64
}

// Stats returns counters and occupancy.
func (c *Cache) Stats() Stats {
	ps := c.pool.Stats()

	c.devMu.RLock()
	devices := len(c.devices)
	c.devMu.RUnlock()

	return Stats{
		Buffers:      ps.Slots,
		Buckets:      ps.Buckets,
		BlockSize:    c.opts.blockSize,
		Devices:      devices,
		InUse:        ps.InUse,
		Hits:         ps.Hits,
		Misses:       ps.Misses,
		Steals:       ps.Steals,
		TransfersIn:  c.transfersIn.Load(),
		TransfersOut: c.transfersOut.Load(),
	}
}

// Devices returns the mounted device ids in ascending order.
func (c *Cache) Devices() []uint32 {
	c.devMu.RLock()
	defer c.devMu.RUnlock()
	return slices.Sorted(maps.Keys(c.devices))
}

// Close detaches and closes every device and returns the arena to the
// resource controller. Buffers still held must not be used afterwards.
// Close is idempotent.
func (c *Cache) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.devMu.Lock()
	devices := c.devices
	c.devices = make(map[uint32]device.Device)
	c.devMu.Unlock()

	var errs []error
	for _, dev := range slices.Sorted(maps.Keys(devices)) {
		dropped, busy := c.pool.Invalidate(dev)
		c.opts.logger.LogInvalidate(context.Background(), dev, dropped, busy)
		if err := devices[dev].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close device %d: %w", dev, err))
		}
	}

	c.opts.resources.ReleaseMemory(int64(len(c.arena)))
	return errors.Join(errs...)
}
