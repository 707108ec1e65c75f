package builder

import (
	"testing"

	"github.com/stretchr/testify/require"

	sl "github.com/skiplgr/skipledger"
	"github.com/skiplgr/skipledger/pack"
	"github.com/skiplgr/skipledger/path"
	"github.com/skiplgr/skipledger/row"
	"github.com/skiplgr/skipledger/skiphash"
)

// chain is a trivial Bag over rows 1..n with deterministic input hashes,
// used to hand the builder externally supplied rows.
type chain struct {
	inputs map[uint64]sl.Hash
	rows   map[uint64]*row.LazyRow
}

func newChain(n uint64) *chain {
	c := &chain{inputs: make(map[uint64]sl.Hash), rows: make(map[uint64]*row.LazyRow)}
	for rn := uint64(1); rn <= n; rn++ {
		var ih sl.Hash
		ih[0] = byte(rn)
		ih[1] = byte(rn >> 8)
		c.inputs[rn] = ih
		c.rows[rn] = row.NewFullLazyRow(c, rn)
	}
	return c
}

func (c *chain) InputHash(rn uint64) (sl.Hash, bool) { h, ok := c.inputs[rn]; return h, ok }
func (c *chain) RowHash(rn uint64) (sl.Hash, bool) {
	if rn == 0 {
		return skiphash.Sentinel(), true
	}
	r, ok := c.rows[rn]
	if !ok {
		return sl.Hash{}, false
	}
	h, err := r.Hash()
	if err != nil {
		return sl.Hash{}, false
	}
	return h, true
}
func (c *chain) FullRowNumbers() []uint64 {
	out := make([]uint64, 0, len(c.rows))
	for rn := range c.rows {
		out = append(out, rn)
	}
	return out
}
func (c *chain) GetRow(rn uint64) (row.Row, bool)                 { r, ok := c.rows[rn]; return r, ok }
func (c *chain) GetFunnel(rn uint64, level int) ([]sl.Hash, bool) { return nil, false }

func rowsFor(t *testing.T, c *chain, nos ...uint64) []row.Row {
	t.Helper()
	out := make([]row.Row, len(nos))
	for i, rn := range nos {
		r, ok := c.GetRow(rn)
		require.True(t, ok)
		out[i] = r
	}
	return out
}

func TestAddRowBuildsUpASequence(t *testing.T) {
	c := newChain(16)
	b := New()

	for _, rn := range []uint64{1, 2, 4} {
		r, ok := c.GetRow(rn)
		require.True(t, ok)
		n, err := b.AddRow(r)
		require.NoError(t, err)
		require.Greater(t, n, 0)
	}

	require.Equal(t, []uint64{1, 2, 4}, b.FullRowNumbers())

	p, err := b.Path()
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 4}, p.RowNumbers())
}

func TestAddRowRejectsConflictingHash(t *testing.T) {
	c := newChain(16)
	b := New()

	r1, _ := c.GetRow(1)
	_, err := b.AddRow(r1)
	require.NoError(t, err)

	// A different chain gives row 1 a different input hash: conflict.
	c2 := newChain(16)
	ih := c2.inputs[1]
	ih[2] = 0xFF
	c2.inputs[1] = ih
	bad, _ := c2.GetRow(1)
	_, err = b.AddRow(bad)
	require.Error(t, err)
}

func TestAddRowRejectsUnlinkedAppend(t *testing.T) {
	c := newChain(16)
	b := New()

	r1, _ := c.GetRow(1)
	_, err := b.AddRow(r1)
	require.NoError(t, err)

	r3, _ := c.GetRow(3) // diff=2, skipCount(3)=1: not linked to 1
	_, err = b.AddRow(r3)
	require.Error(t, err)
}

func TestAddRowRecordsReferencesAndLaterPromotesThem(t *testing.T) {
	c := newChain(16)
	b := New()

	r8, _ := c.GetRow(8)
	_, err := b.AddRow(r8)
	require.NoError(t, err)

	h, ok := b.RowHash(4)
	require.True(t, ok, "row 8's coverage should include row 4 as a reference")

	r4, _ := c.GetRow(4)
	wantHash, err := r4.Hash()
	require.NoError(t, err)
	require.Equal(t, wantHash, h)

	_, err = b.AddRow(r4)
	require.NoError(t, err)
	require.Contains(t, b.FullRowNumbers(), uint64(4))
}

func TestAddPathOnEmptyBuilder(t *testing.T) {
	c := newChain(16)
	b := New()

	rows := rowsFor(t, c, 1, 2, 4, 8, 16)
	p, err := path.NewPath(rows)
	require.NoError(t, err)

	n, err := b.AddPath(p)
	require.NoError(t, err)
	require.Greater(t, n, 0)
	require.Equal(t, []uint64{1, 2, 4, 8, 16}, b.FullRowNumbers())
}

func TestAddPathExtendsExistingRows(t *testing.T) {
	c := newChain(16)
	b := New()

	first, err := path.NewPath(rowsFor(t, c, 1, 2, 4))
	require.NoError(t, err)
	_, err = b.AddPath(first)
	require.NoError(t, err)

	second, err := path.NewPath(rowsFor(t, c, 1, 2, 4, 8, 16))
	require.NoError(t, err)
	n, err := b.AddPath(second)
	require.NoError(t, err)
	require.Greater(t, n, 0)
	require.Equal(t, []uint64{1, 2, 4, 8, 16}, b.FullRowNumbers())
}

func TestAddPackDelegatesToAddPath(t *testing.T) {
	c := newChain(16)
	b := New()

	p, err := path.NewPath(rowsFor(t, c, 1, 2, 4, 8, 16))
	require.NoError(t, err)
	pp, err := pack.FromPath(p)
	require.NoError(t, err)

	n, err := b.AddPack(pp)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	built, err := b.Pack()
	require.NoError(t, err)
	require.NotNil(t, built)
}

func TestPathErrorsWhenEmpty(t *testing.T) {
	b := New()
	_, err := b.Path()
	require.Error(t, err)
}
