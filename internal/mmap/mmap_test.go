package mmap

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_ReadAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob")
	content := []byte("Hello, Mmap!")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, len(content), m.Size())
	assert.Equal(t, content, m.Bytes())
	assert.False(t, m.Writable())
	require.NoError(t, m.Advise(AccessRandom))

	buf := make([]byte, 5)
	n, err := m.ReadAt(buf, 7)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "Mmap!", string(buf))

	n, err = m.ReadAt(make([]byte, 10), 100)
	assert.Zero(t, n)
	assert.Equal(t, io.EOF, err)

	buf = make([]byte, 10)
	n, err = m.ReadAt(buf, 7)
	assert.Equal(t, 5, n)
	assert.Equal(t, io.EOF, err)

	_, err = m.ReadAt(buf, -1)
	assert.ErrorIs(t, err, ErrInvalidOffset)

	_, err = m.WriteAt([]byte("x"), 0)
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, m.Sync(), ErrReadOnly)
}

func TestOpen_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	assert.Zero(t, m.Size())
}

func TestCreate_WriteSyncReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")

	m, err := Create(path, 4096)
	require.NoError(t, err)
	assert.True(t, m.Writable())

	n, err := m.WriteAt([]byte("block"), 1024)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = m.WriteAt([]byte("overflow"), 4093)
	assert.ErrorIs(t, err, io.ErrShortWrite)

	require.NoError(t, m.Sync())
	require.NoError(t, m.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, raw, 4096)
	assert.Equal(t, "block", string(raw[1024:1029]))

	// Reopening keeps content.
	m, err = Create(path, 4096)
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, "block", string(m.Bytes()[1024:1029]))
}

func TestCreate_InvalidSize(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "x"), 0)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestMapping_AfterClose(t *testing.T) {
	m, err := Create(filepath.Join(t.TempDir(), "x"), 64)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "idempotent")

	assert.Nil(t, m.Bytes())
	assert.ErrorIs(t, m.Advise(AccessRandom), ErrClosed)
	assert.ErrorIs(t, m.Sync(), ErrClosed)
	_, err = m.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrClosed)
}
