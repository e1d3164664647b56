package hash

import (
	"encoding/binary"
	"hash/crc32"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C returns the Castagnoli checksum of data, as stored in block frames.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// CRC32CBytes returns the checksum of data in network byte order, the form
// object stores carry in checksum headers.
func CRC32CBytes(data []byte) [4]byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], CRC32C(data))
	return b
}
