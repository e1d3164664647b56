// Package blockcodec frames device blocks for object storage: optional
// LZ4 or ZSTD compression plus a CRC32C of the uncompressed payload.
//
// Frame layout (little endian):
//
//	[0]     compression (Compression)
//	[1:5]   uncompressed size
//	[5:9]   stored size
//	[9:13]  CRC32C of the uncompressed payload
//	[13:]   stored payload
package blockcodec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/bcache/internal/hash"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the algorithm applied to a block.
type Compression uint8

const (
	// CompressionNone stores blocks verbatim.
	CompressionNone Compression = 0
	// CompressionLZ4 favours speed.
	CompressionLZ4 Compression = 1
	// CompressionZSTD favours ratio.
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

const headerSize = 13

// MaxBlockSize bounds the blocks Encode accepts and the memory a decoder
// may use for one frame.
const MaxBlockSize = 16 << 20

var (
	// ErrCorrupt is returned for frames that cannot be parsed.
	ErrCorrupt = errors.New("blockcodec: corrupt frame")
	// ErrChecksum is returned when the payload does not match its CRC32C.
	ErrChecksum = errors.New("blockcodec: checksum mismatch")
	// ErrSize is returned when the decoded block does not fit the destination.
	ErrSize = errors.New("blockcodec: block size mismatch")
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(MaxBlockSize),
		zstd.WithDecoderMaxWindow(MaxBlockSize),
	)
	return dec
}

// Encode frames data with the requested compression. If compression saves
// less than 10% the block is stored uncompressed.
func Encode(data []byte, c Compression) ([]byte, error) {
	if len(data) > MaxBlockSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrSize, len(data), MaxBlockSize)
	}

	var stored []byte

	switch c {
	case CompressionNone:
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("blockcodec: lz4: %w", err)
		}
		stored = buf[:n] // n == 0 means incompressible
	case CompressionZSTD:
		enc := getZstdEncoder()
		stored = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("blockcodec: unknown compression %d", c)
	}

	if len(stored) == 0 || float64(len(stored)) > float64(len(data))*0.9 {
		c = CompressionNone
		stored = data
	}

	frame := make([]byte, headerSize+len(stored))
	frame[0] = byte(c)
	binary.LittleEndian.PutUint32(frame[1:], uint32(len(data)))
	binary.LittleEndian.PutUint32(frame[5:], uint32(len(stored)))
	binary.LittleEndian.PutUint32(frame[9:], hash.CRC32C(data))
	copy(frame[headerSize:], stored)
	return frame, nil
}

// Decode unpacks frame into dst, whose length must equal the framed
// block size.
func Decode(frame, dst []byte) error {
	if len(frame) < headerSize {
		return ErrCorrupt
	}

	c := Compression(frame[0])
	size := binary.LittleEndian.Uint32(frame[1:])
	storedSize := binary.LittleEndian.Uint32(frame[5:])
	sum := binary.LittleEndian.Uint32(frame[9:])

	if uint64(len(frame)) != headerSize+uint64(storedSize) {
		return ErrCorrupt
	}
	if int(size) != len(dst) {
		return fmt.Errorf("%w: framed %d, want %d", ErrSize, size, len(dst))
	}

	stored := frame[headerSize:]

	switch c {
	case CompressionNone:
		if len(stored) != len(dst) {
			return ErrCorrupt
		}
		copy(dst, stored)
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(stored, dst)
		if err != nil {
			return fmt.Errorf("%w: lz4: %w", ErrCorrupt, err)
		}
		if n != len(dst) {
			return ErrCorrupt
		}
	case CompressionZSTD:
		// A frame announcing more than dst holds is rejected before any
		// output is produced.
		var h zstd.Header
		if err := h.Decode(stored); err != nil {
			return fmt.Errorf("%w: zstd header: %w", ErrCorrupt, err)
		}
		if h.HasFCS && h.FrameContentSize != uint64(len(dst)) {
			return fmt.Errorf("%w: zstd content size %d, want %d", ErrSize, h.FrameContentSize, len(dst))
		}

		dec := getZstdDecoder()
		out, err := dec.DecodeAll(stored, dst[:0])
		zstdDecoderPool.Put(dec)
		if err != nil {
			return fmt.Errorf("%w: zstd: %w", ErrCorrupt, err)
		}
		if len(out) != len(dst) {
			return ErrCorrupt
		}
		if &out[0] != &dst[0] {
			copy(dst, out)
		}
	default:
		return fmt.Errorf("%w: unknown compression %d", ErrCorrupt, c)
	}

	if hash.CRC32C(dst) != sum {
		return ErrChecksum
	}
	return nil
}
