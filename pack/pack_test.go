package pack

import (
	"testing"

	"github.com/stretchr/testify/require"

	sl "github.com/skiplgr/skipledger"
	"github.com/skiplgr/skipledger/path"
	"github.com/skiplgr/skipledger/row"
	"github.com/skiplgr/skipledger/skiphash"
)

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
func (c *chain) GetRow(rn uint64) (row.Row, bool)                  { r, ok := c.rows[rn]; return r, ok }
func (c *chain) GetFunnel(rn uint64, level int) ([]sl.Hash, bool) { return nil, false }

func buildPath(t *testing.T, c *chain, nos ...uint64) *path.Path {
	t.Helper()
	rows := make([]row.Row, len(nos))
	for i, rn := range nos {
		r, ok := c.GetRow(rn)
		require.True(t, ok)
		rows[i] = r
	}
	p, err := path.NewPath(rows)
	require.NoError(t, err)
	return p
}

func TestFullPackRoundTrip(t *testing.T) {
	c := newChain(16)
	p := buildPath(t, c, 1, 2, 4, 8, 16)

	pp, err := FromPath(p)
	require.NoError(t, err)

	data := pp.Serialize()
	loaded, err := Load(data)
	require.NoError(t, err)

	reconstructed, err := loaded.Path()
	require.NoError(t, err)
	require.True(t, p.Equal(reconstructed))
	require.Equal(t, p.RowNumbers(), reconstructed.RowNumbers())
}

func TestCondensedPackRoundTrip(t *testing.T) {
	c := newChain(16)
	p := buildPath(t, c, 1, 2, 4, 8, 16)
	compressed, err := p.Compress()
	require.NoError(t, err)

	pp, err := FromPath(compressed)
	require.NoError(t, err)

	data := pp.Serialize()
	loaded, err := Load(data)
	require.NoError(t, err)

	reconstructed, err := loaded.Path()
	require.NoError(t, err)
	require.True(t, compressed.Equal(reconstructed))

	cond, err := reconstructed.IsCondensed()
	require.NoError(t, err)
	require.True(t, cond)
}

func TestMemoPathPackMatchesPlain(t *testing.T) {
	c := newChain(16)
	p := buildPath(t, c, 1, 2, 4, 8, 16)
	pp, err := FromPath(p)
	require.NoError(t, err)

	memo, err := NewMemoPathPack(pp)
	require.NoError(t, err)

	for _, rn := range pp.GetFullRowNumbers() {
		want, ok := pp.RowHash(rn)
		require.True(t, ok)
		got, ok := memo.RowHash(rn)
		require.True(t, ok)
		require.Equal(t, want, got, "rn=%d", rn)
	}
}

func TestLoadRejectsTruncatedData(t *testing.T) {
	c := newChain(16)
	p := buildPath(t, c, 1, 2, 4, 8, 16)
	pp, err := FromPath(p)
	require.NoError(t, err)

	data := pp.Serialize()
	_, err = Load(data[:len(data)-1])
	require.Error(t, err)
}

func TestLoadRejectsBadTypeByte(t *testing.T) {
	c := newChain(16)
	p := buildPath(t, c, 1, 2, 4)
	pp, err := FromPath(p)
	require.NoError(t, err)

	data := pp.Serialize()
	// header is 4 + count*8 bytes; the type byte follows immediately.
	headerLen := 4 + len(pp.stitchedRns)*8
	data[headerLen] = 0xAB
	_, err = Load(data)
	require.Error(t, err)
}

func TestRefOnlyHashForNonFullRow(t *testing.T) {
	c := newChain(16)
	p := buildPath(t, c, 16)
	pp, err := FromPath(p)
	require.NoError(t, err)

	h, ok := pp.RefOnlyHash(15)
	require.True(t, ok)
	want, _ := c.RowHash(15)
	require.Equal(t, want, h)

	_, ok = pp.InputHash(15)
	require.False(t, ok)
}
