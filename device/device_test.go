package device

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/bcache/blobstore"
	"github.com/hupe1980/bcache/internal/blockcodec"
	"github.com/hupe1980/bcache/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBlockSize = 512
	testBlocks    = 16
)

func fill(b byte) []byte {
	return bytes.Repeat([]byte{b}, testBlockSize)
}

func devices(t *testing.T) map[string]Device {
	t.Helper()
	dir := t.TempDir()

	mem, err := NewMemory(testBlockSize, testBlocks)
	require.NoError(t, err)

	file, err := OpenFile(filepath.Join(dir, "file.img"), testBlockSize, testBlocks, true)
	require.NoError(t, err)

	mm, err := OpenMmap(filepath.Join(dir, "mmap.img"), testBlockSize, testBlocks)
	require.NoError(t, err)

	blob, err := OpenBlob(context.Background(), blobstore.NewMemoryStore(), "disk", testBlockSize, WithBlocks(testBlocks))
	require.NoError(t, err)

	devs := map[string]Device{
		"memory": mem,
		"file":   file,
		"mmap":   mm,
		"blob":   blob,
	}
	t.Cleanup(func() {
		for _, d := range devs {
			_ = d.Close()
		}
	})
	return devs
}

func TestDevice_ReadWrite(t *testing.T) {
	for name, d := range devices(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.Equal(t, testBlockSize, d.BlockSize())

			p := make([]byte, testBlockSize)
			require.NoError(t, d.ReadBlock(ctx, 3, p))
			assert.Equal(t, make([]byte, testBlockSize), p, "fresh blocks read as zeros")

			require.NoError(t, d.WriteBlock(ctx, 3, fill('a')))
			require.NoError(t, d.WriteBlock(ctx, 4, fill('b')))

			require.NoError(t, d.ReadBlock(ctx, 3, p))
			assert.Equal(t, fill('a'), p)
			require.NoError(t, d.ReadBlock(ctx, 4, p))
			assert.Equal(t, fill('b'), p)

			require.NoError(t, Sync(d))
		})
	}
}

func TestDevice_Errors(t *testing.T) {
	for name, d := range devices(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			assert.ErrorIs(t, d.ReadBlock(ctx, 0, make([]byte, 10)), ErrBlockSize)
			assert.ErrorIs(t, d.WriteBlock(ctx, testBlocks, fill('x')), ErrOutOfRange)

			canceled, cancel := context.WithCancel(ctx)
			cancel()
			assert.ErrorIs(t, d.ReadBlock(canceled, 0, make([]byte, testBlockSize)), context.Canceled)

			require.NoError(t, d.Close())
			assert.ErrorIs(t, d.ReadBlock(ctx, 0, make([]byte, testBlockSize)), ErrClosed)
		})
	}
}

func TestNewMemory_InvalidGeometry(t *testing.T) {
	_, err := NewMemory(0, 1)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
	_, err = NewMemory(512, 0)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestMemory_Counters(t *testing.T) {
	m, err := NewMemory(testBlockSize, testBlocks)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.WriteBlock(ctx, 1, fill('z')))
	require.NoError(t, m.ReadBlock(ctx, 1, make([]byte, testBlockSize)))
	require.NoError(t, m.ReadBlock(ctx, 2, make([]byte, testBlockSize)))

	assert.EqualValues(t, 2, m.Reads())
	assert.EqualValues(t, 1, m.Writes())
	assert.EqualValues(t, testBlocks, m.Blocks())
}

func TestFile_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	ctx := context.Background()

	d, err := OpenFile(path, testBlockSize, testBlocks, false)
	require.NoError(t, err)
	require.NoError(t, d.WriteBlock(ctx, 7, fill('q')))
	require.NoError(t, d.Close())

	d, err = OpenFile(path, testBlockSize, testBlocks, false)
	require.NoError(t, err)
	defer d.Close()

	p := make([]byte, testBlockSize)
	require.NoError(t, d.ReadBlock(ctx, 7, p))
	assert.Equal(t, fill('q'), p)
}

func TestMmap_PersistsThroughFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	ctx := context.Background()

	d, err := OpenMmap(path, testBlockSize, testBlocks)
	require.NoError(t, err)
	require.NoError(t, d.WriteBlock(ctx, 2, fill('m')))
	require.NoError(t, d.Close())

	f, err := OpenFile(path, testBlockSize, testBlocks, false)
	require.NoError(t, err)
	defer f.Close()

	p := make([]byte, testBlockSize)
	require.NoError(t, f.ReadBlock(ctx, 2, p))
	assert.Equal(t, fill('m'), p)
}

func TestBlob_ReopenAndDiscard(t *testing.T) {
	store := blobstore.NewMemoryStore()
	ctx := context.Background()

	d, err := OpenBlob(ctx, store, "disk", testBlockSize, WithCompression(blockcodec.CompressionZSTD))
	require.NoError(t, err)

	require.NoError(t, d.WriteBlock(ctx, 100000, fill('r')))
	require.NoError(t, d.WriteBlock(ctx, 5, fill('s')))
	assert.EqualValues(t, 2, d.Stored())
	require.NoError(t, d.Close())

	names, err := store.List(ctx, "disk/")
	require.NoError(t, err)
	assert.Equal(t, []string{"disk/0000000005.blk", "disk/0000100000.blk"}, names)

	// Foreign objects under the prefix are ignored.
	require.NoError(t, store.Put(ctx, "disk/README", []byte("hi")))

	d, err = OpenBlob(ctx, store, "disk", testBlockSize)
	require.NoError(t, err)
	assert.EqualValues(t, 2, d.Stored())

	p := make([]byte, testBlockSize)
	require.NoError(t, d.ReadBlock(ctx, 100000, p))
	assert.Equal(t, fill('r'), p)

	require.NoError(t, d.Discard(ctx, 100000))
	assert.EqualValues(t, 1, d.Stored())
	require.NoError(t, d.ReadBlock(ctx, 100000, p))
	assert.Equal(t, make([]byte, testBlockSize), p)
}

func TestBlob_CorruptBlock(t *testing.T) {
	store := blobstore.NewMemoryStore()
	ctx := context.Background()

	d, err := OpenBlob(ctx, store, "disk", testBlockSize, WithCompression(blockcodec.CompressionNone))
	require.NoError(t, err)
	require.NoError(t, d.WriteBlock(ctx, 1, fill('c')))

	frame, err := blobstore.ReadAll(ctx, store, "disk/0000000001.blk")
	require.NoError(t, err)
	frame[len(frame)-1] ^= 0xff
	require.NoError(t, store.Put(ctx, "disk/0000000001.blk", frame))

	err = d.ReadBlock(ctx, 1, make([]byte, testBlockSize))
	assert.ErrorIs(t, err, blockcodec.ErrChecksum)
}

func TestOpenBlob_InvalidName(t *testing.T) {
	_, err := OpenBlob(context.Background(), blobstore.NewMemoryStore(), "a/b", testBlockSize)
	assert.Error(t, err)
}

func TestThrottled(t *testing.T) {
	mem, err := NewMemory(testBlockSize, testBlocks)
	require.NoError(t, err)

	assert.Same(t, mem, Throttled(mem, nil))

	// Burst of two blocks, refilled at two blocks per second.
	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 2 * testBlockSize})
	d := Throttled(mem, rc)
	ctx := context.Background()

	for range 2 {
		require.NoError(t, d.WriteBlock(ctx, 0, fill('t')))
	}

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.Error(t, d.ReadBlock(short, 0, make([]byte, testBlockSize)), "budget exhausted")

	assert.EqualValues(t, 2, mem.Writes())
	assert.Zero(t, mem.Reads())
	require.NoError(t, Sync(d))
}

func TestFaulty(t *testing.T) {
	mem, err := NewMemory(testBlockSize, testBlocks)
	require.NoError(t, err)

	ctx := context.Background()
	d := NewFaulty(mem)
	p := make([]byte, testBlockSize)

	require.NoError(t, d.WriteBlock(ctx, 0, fill(1)), "no rules: pass through")

	d.AddRule(3, Fault{FailReads: 1})
	assert.ErrorIs(t, d.ReadBlock(ctx, 3, p), ErrInjected)
	require.NoError(t, d.ReadBlock(ctx, 3, p), "one failure only")
	require.NoError(t, d.ReadBlock(ctx, 4, p), "rule is per block")

	boom := errors.New("boom")
	d.SetDefault(Fault{FailWrites: -1, FailOnSync: true, Err: boom})
	for range 3 {
		assert.ErrorIs(t, d.WriteBlock(ctx, 5, p), boom)
	}
	assert.ErrorIs(t, Sync(d), boom)
	assert.EqualValues(t, 1, mem.Writes())
	assert.Same(t, mem, d.Unwrap())
}
