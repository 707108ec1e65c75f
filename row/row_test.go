package row

import (
	"testing"

	"github.com/stretchr/testify/require"

	sl "github.com/skiplgr/skipledger"
	"github.com/skiplgr/skipledger/geom"
	"github.com/skiplgr/skipledger/skiphash"
)

// testBag is a trivial in-memory Bag that computes row hashes on demand
// from a chain of input hashes, used only to exercise LazyRow/MemoRow.
type testBag struct {
	inputs  map[uint64]sl.Hash
	rows    map[uint64]*LazyRow
	funnels map[uint64][]sl.Hash
	levelOf map[uint64]int
}

func newTestBag(n uint64) *testBag {
	b := &testBag{
		inputs:  make(map[uint64]sl.Hash),
		rows:    make(map[uint64]*LazyRow),
		funnels: make(map[uint64][]sl.Hash),
		levelOf: make(map[uint64]int),
	}
	for rn := uint64(1); rn <= n; rn++ {
		var ih sl.Hash
		ih[0] = byte(rn)
		b.inputs[rn] = ih
		b.rows[rn] = NewFullLazyRow(b, rn)
	}
	return b
}

func (b *testBag) InputHash(rn uint64) (sl.Hash, bool) {
	h, ok := b.inputs[rn]
	return h, ok
}

func (b *testBag) RowHash(rn uint64) (sl.Hash, bool) {
	if rn == 0 {
		return skiphash.Sentinel(), true
	}
	r, ok := b.rows[rn]
	if !ok {
		return sl.Hash{}, false
	}
	h, err := r.Hash()
	if err != nil {
		return sl.Hash{}, false
	}
	return h, true
}

func (b *testBag) FullRowNumbers() []uint64 {
	out := make([]uint64, 0, len(b.rows))
	for rn := range b.rows {
		out = append(out, rn)
	}
	return out
}

func (b *testBag) GetRow(rn uint64) (Row, bool) {
	r, ok := b.rows[rn]
	return r, ok
}

func (b *testBag) GetFunnel(rn uint64, level int) ([]sl.Hash, bool) {
	f, ok := b.funnels[rn]
	if !ok || b.levelOf[rn] != level {
		return nil, false
	}
	return f, true
}

func TestFullLazyRowHashChains(t *testing.T) {
	bag := newTestBag(16)
	r1, _ := bag.GetRow(1)
	h1, err := r1.Hash()
	require.NoError(t, err)

	expected := skiphash.RowHash(bag.inputs[1], skiphash.Sentinel())
	require.Equal(t, expected, h1)

	r16, _ := bag.GetRow(16)
	h16, err := r16.Hash()
	require.NoError(t, err)

	independent, ok := bag.RowHash(16)
	require.True(t, ok)
	require.Equal(t, independent, h16)
}

func TestIsCompressedForAlwaysAllLevels(t *testing.T) {
	bag := newTestBag(16)
	for _, rn := range []uint64{1, 2, 4} {
		r, ok := bag.GetRow(rn)
		require.True(t, ok)
		compressed, err := r.IsCompressed()
		require.NoError(t, err)
		require.True(t, compressed, "rn=%d must be always-all-levels", rn)
		cond, err := r.IsCondensed()
		require.NoError(t, err)
		require.False(t, cond)
	}
}

func TestHashAtCoversReferencedRows(t *testing.T) {
	bag := newTestBag(16)
	r16, _ := bag.GetRow(16)
	sc := geom.SkipCount(16)
	for level := 0; level < sc; level++ {
		refRn := uint64(16) - (uint64(1) << uint(level))
		h, ok, err := r16.HashAt(refRn)
		require.NoError(t, err)
		require.True(t, ok)
		want, _ := bag.RowHash(refRn)
		require.Equal(t, want, h)
	}
	_, ok, err := r16.HashAt(3)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCondensedLazyRowMatchesFull(t *testing.T) {
	bag := newTestBag(16)
	fullRow, _ := bag.GetRow(16)
	fullHash, err := fullRow.Hash()
	require.NoError(t, err)

	lp, err := fullRow.LevelsPointer()
	require.NoError(t, err)

	for level := 0; level < lp.SkipCount(); level++ {
		cp, err := lp.CompressToLevel(level)
		require.NoError(t, err)
		funnel, ok := cp.Funnel()
		require.True(t, ok)

		bag.funnels[16] = funnel
		bag.levelOf[16] = level

		cr := NewCondensedLazyRow(bag, 16, level)
		h, err := cr.Hash()
		require.NoError(t, err)
		require.Equal(t, fullHash, h, "level %d", level)

		cond, err := cr.IsCondensed()
		require.NoError(t, err)
		require.True(t, cond)
	}
}

func TestMemoRowCachesHash(t *testing.T) {
	bag := newTestBag(16)
	inner, _ := bag.GetRow(8)
	memo := NewMemoRow(inner)

	h1, err := memo.Hash()
	require.NoError(t, err)

	// Mutate the bag's underlying input so a non-cached recomputation
	// would diverge; MemoRow must still return the first value.
	bag.inputs[8] = sl.Hash{0xff}

	h2, err := memo.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	lp1, err := memo.LevelsPointer()
	require.NoError(t, err)
	lp2, err := memo.LevelsPointer()
	require.NoError(t, err)
	require.Same(t, lp1, lp2)
}

func TestMemoRowHasAllLevelsAndPrevHash(t *testing.T) {
	bag := newTestBag(16)
	inner, _ := bag.GetRow(16)
	memo := NewMemoRow(inner)

	all, err := memo.HasAllLevels()
	require.NoError(t, err)
	require.True(t, all)

	h, ok, err := memo.PrevHash(0)
	require.NoError(t, err)
	require.True(t, ok)
	want, _ := bag.RowHash(15)
	require.Equal(t, want, h)
}

var _ Row = (*LazyRow)(nil)
var _ Row = (*MemoRow)(nil)
