package blockcodec

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compressible(n int) []byte {
	return bytes.Repeat([]byte("block cache "), n/12+1)[:n]
}

func random(n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(1)).Read(b)
	return b
}

func TestEncodeDecode(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			data := compressible(1024)

			frame, err := Encode(data, c)
			require.NoError(t, err)
			assert.Equal(t, byte(c), frame[0])
			if c != CompressionNone {
				assert.Less(t, len(frame), len(data))
			}

			out := make([]byte, len(data))
			require.NoError(t, Decode(frame, out))
			assert.Equal(t, data, out)
		})
	}
}

func TestEncode_IncompressibleIsStored(t *testing.T) {
	data := random(1024)

	frame, err := Encode(data, CompressionZSTD)
	require.NoError(t, err)
	assert.Equal(t, byte(CompressionNone), frame[0])
	assert.Len(t, frame, headerSize+len(data))

	out := make([]byte, len(data))
	require.NoError(t, Decode(frame, out))
	assert.Equal(t, data, out)
}

func TestEncode_UnknownCompression(t *testing.T) {
	_, err := Encode([]byte("x"), Compression(9))
	assert.Error(t, err)
}

func TestDecode_Checksum(t *testing.T) {
	data := random(512)
	frame, err := Encode(data, CompressionNone)
	require.NoError(t, err)

	frame[headerSize+10] ^= 0xff

	err = Decode(frame, make([]byte, len(data)))
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestDecode_Corrupt(t *testing.T) {
	frame, err := Encode(compressible(512), CompressionLZ4)
	require.NoError(t, err)

	assert.ErrorIs(t, Decode(frame[:5], make([]byte, 512)), ErrCorrupt)
	assert.ErrorIs(t, Decode(frame[:len(frame)-1], make([]byte, 512)), ErrCorrupt)
	assert.ErrorIs(t, Decode(frame, make([]byte, 256)), ErrSize)
}

func TestDecode_ZstdInflationRejected(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	stored := enc.EncodeAll(make([]byte, 1<<20), nil)
	require.NoError(t, enc.Close())

	// A small block whose stored payload would inflate to 1 MiB.
	dst := make([]byte, 64)
	frame := make([]byte, headerSize+len(stored))
	frame[0] = byte(CompressionZSTD)
	binary.LittleEndian.PutUint32(frame[1:], uint32(len(dst)))
	binary.LittleEndian.PutUint32(frame[5:], uint32(len(stored)))
	copy(frame[headerSize:], stored)

	assert.ErrorIs(t, Decode(frame, dst), ErrSize)

	frame[headerSize] ^= 0xff // break the zstd magic
	assert.ErrorIs(t, Decode(frame, dst), ErrCorrupt)
}

func TestEncode_TooLarge(t *testing.T) {
	_, err := Encode(make([]byte, MaxBlockSize+1), CompressionNone)
	assert.ErrorIs(t, err, ErrSize)
}
