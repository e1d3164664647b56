package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, n, buckets int) *Pool {
	t.Helper()
	p, err := New(n, buckets)
	require.NoError(t, err)
	return p
}

func TestNew_InvalidSize(t *testing.T) {
	_, err := New(0, 13)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = New(4, 0)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestNew_AllSlotsInFirstBucket(t *testing.T) {
	p := newTestPool(t, 5, 3)

	assert.Equal(t, 5, p.Len())
	assert.Equal(t, 3, p.Buckets())
	assert.Equal(t, []int{4, 3, 2, 1, 0}, p.members(0))
	assert.Empty(t, p.members(1))
	assert.Empty(t, p.members(2))

	for i := range p.Len() {
		assert.Equal(t, Key{Dev: NoDev}, p.Key(i))
		assert.False(t, p.Valid(i))
		assert.Zero(t, p.Refs(i))
	}
	require.NoError(t, p.verify())
}

func TestBucketOf(t *testing.T) {
	p := newTestPool(t, 1, 13)

	assert.Equal(t, 0, p.BucketOf(0))
	assert.Equal(t, 12, p.BucketOf(12))
	assert.Equal(t, 0, p.BucketOf(13))
	assert.Equal(t, 12, p.BucketOf(1000))
}

func TestAcquire_MissThenHit(t *testing.T) {
	p := newTestPool(t, 4, 2)
	key := Key{Dev: 1, Block: 10}

	i, hit, err := p.Acquire(key)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, key, p.Key(i))
	assert.False(t, p.Valid(i))
	assert.EqualValues(t, 1, p.Refs(i))

	p.SetValid(i)
	require.NoError(t, p.Unref(i, key))

	j, hit, err := p.Acquire(key)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, i, j)
	assert.True(t, p.Valid(j), "a hit keeps the content")

	stats := p.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.Equal(t, 1, stats.InUse)
	require.NoError(t, p.verify())
}

func TestAcquire_ClaimInHomeBucket(t *testing.T) {
	p := newTestPool(t, 4, 2)

	// Block 2 hashes to bucket 0, where every slot starts.
	i, hit, err := p.Acquire(Key{Dev: 1, Block: 2})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 0, i, "first fit in array order")
	assert.Equal(t, []int{0, 3, 2, 1}, p.members(0))
	assert.Zero(t, p.Stats().Steals)
	require.NoError(t, p.verify())
}

func TestAcquire_StealFromDonorBucket(t *testing.T) {
	p := newTestPool(t, 4, 2)

	i, hit, err := p.Acquire(Key{Dev: 1, Block: 11})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 0, i)
	assert.Equal(t, []int{0}, p.members(1))
	assert.Equal(t, []int{3, 2, 1}, p.members(0))
	assert.EqualValues(t, 1, p.Stats().Steals)

	j, _, err := p.Acquire(Key{Dev: 1, Block: 13})
	require.NoError(t, err)
	assert.Equal(t, 1, j)
	assert.Equal(t, []int{1, 0}, p.members(1), "claimed slots go to the front")
	require.NoError(t, p.verify())
}

func TestAcquire_SameBlockOtherDevice(t *testing.T) {
	p := newTestPool(t, 4, 2)

	a, _, err := p.Acquire(Key{Dev: 1, Block: 7})
	require.NoError(t, err)
	b, hit, err := p.Acquire(Key{Dev: 2, Block: 7})
	require.NoError(t, err)

	assert.False(t, hit)
	assert.NotEqual(t, a, b)
	require.NoError(t, p.verify())
}

func TestAcquire_Exhausted(t *testing.T) {
	p := newTestPool(t, 2, 2)

	_, _, err := p.Acquire(Key{Dev: 1, Block: 1})
	require.NoError(t, err)
	_, _, err = p.Acquire(Key{Dev: 1, Block: 2})
	require.NoError(t, err)

	i, _, err := p.Acquire(Key{Dev: 1, Block: 3})
	assert.ErrorIs(t, err, ErrNoBuffers)
	assert.Equal(t, -1, i)

	// A hit needs no free slot.
	_, hit, err := p.Acquire(Key{Dev: 1, Block: 1})
	require.NoError(t, err)
	assert.True(t, hit)
	require.NoError(t, p.verify())
}

func TestAcquire_NeverReusesReferencedSlot(t *testing.T) {
	p := newTestPool(t, 2, 1)

	a := Key{Dev: 1, Block: 1}
	b := Key{Dev: 1, Block: 2}
	c := Key{Dev: 1, Block: 3}

	ia, _, err := p.Acquire(a)
	require.NoError(t, err)
	ib, _, err := p.Acquire(b)
	require.NoError(t, err)
	require.NoError(t, p.Unref(ib, b))

	ic, hit, err := p.Acquire(c)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, ib, ic)
	assert.Equal(t, a, p.Key(ia), "held slot keeps its identity")
	require.NoError(t, p.verify())
}

func TestAcquire_SingleSlotReclaim(t *testing.T) {
	p := newTestPool(t, 1, 13)

	k1 := Key{Dev: 1, Block: 1}
	i, _, err := p.Acquire(k1)
	require.NoError(t, err)
	p.SetValid(i)
	require.NoError(t, p.Unref(i, k1))

	k2 := Key{Dev: 1, Block: 2}
	j, hit, err := p.Acquire(k2)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, i, j)
	assert.False(t, p.Valid(j))
	assert.Equal(t, k2, p.Key(j))
	require.NoError(t, p.verify())
}

func TestRefUnref(t *testing.T) {
	p := newTestPool(t, 2, 2)
	key := Key{Dev: 1, Block: 4}

	i, _, err := p.Acquire(key)
	require.NoError(t, err)

	require.NoError(t, p.Ref(i, key))
	assert.EqualValues(t, 2, p.Refs(i))

	require.NoError(t, p.Unref(i, key))
	require.NoError(t, p.Unref(i, key))
	assert.Zero(t, p.Refs(i))

	assert.ErrorIs(t, p.Unref(i, key), ErrRefUnderflow)
	assert.ErrorIs(t, p.Ref(i, Key{Dev: 1, Block: 5}), ErrStale)
	assert.ErrorIs(t, p.Unref(1-i, key), ErrStale)
	require.NoError(t, p.verify())
}

func TestPinBlocksEviction(t *testing.T) {
	p := newTestPool(t, 1, 2)
	a := Key{Dev: 1, Block: 1}
	b := Key{Dev: 1, Block: 2}

	i, _, err := p.Acquire(a)
	require.NoError(t, err)
	require.NoError(t, p.Ref(i, a)) // pin
	require.NoError(t, p.Unref(i, a))

	_, _, err = p.Acquire(b)
	require.ErrorIs(t, err, ErrNoBuffers)
	assert.Equal(t, a, p.Key(i))

	require.NoError(t, p.Unref(i, a)) // unpin

	j, hit, err := p.Acquire(b)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, i, j)
	require.NoError(t, p.verify())
}

func TestInvalidate(t *testing.T) {
	p := newTestPool(t, 4, 2)
	idle := Key{Dev: 1, Block: 1}
	held := Key{Dev: 1, Block: 2}
	other := Key{Dev: 2, Block: 3}

	slots := make(map[Key]int)
	for _, k := range []Key{idle, held, other} {
		i, _, err := p.Acquire(k)
		require.NoError(t, err)
		p.SetValid(i)
		slots[k] = i
	}
	require.NoError(t, p.Unref(slots[idle], idle))
	require.NoError(t, p.Unref(slots[other], other))

	dropped, busy := p.Invalidate(1)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1, busy)

	_, hit, err := p.Acquire(idle)
	require.NoError(t, err)
	assert.False(t, hit, "invalidated block must be re-read")

	_, hit, err = p.Acquire(other)
	require.NoError(t, err)
	assert.True(t, hit)
	require.NoError(t, p.verify())
}
