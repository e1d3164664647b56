package bcache

// Buf is a handle to a locked buffer returned by Read. It is valid until
// Release. The holder has exclusive access to Data.
type Buf struct {
	c     *Cache
	idx   int
	token uint64
	dev   uint32
	block uint32
}

// Dev returns the device id of the cached block.
func (b *Buf) Dev() uint32 { return b.dev }

// BlockNo returns the block number.
func (b *Buf) BlockNo() uint32 { return b.block }

// Data returns the block payload. The slice aliases the cache and must not
// be used after Release.
func (b *Buf) Data() []byte {
	return b.c.payload(b.idx)
}
