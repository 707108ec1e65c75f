package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	sl "github.com/skiplgr/skipledger"
)

func rowBlock(n int) []byte {
	out := make([]byte, 0, n*rowWidth)
	for i := 0; i < n; i++ {
		row := make([]byte, rowWidth)
		row[0] = byte(i + 1)
		out = append(out, row...)
	}
	return out
}

func TestMemTableWriteAndRead(t *testing.T) {
	tbl := NewMemTable()
	require.Equal(t, 0, tbl.Size())

	size, err := tbl.WriteRows(rowBlock(3), 0)
	require.NoError(t, err)
	require.Equal(t, 3, size)
	require.Equal(t, 3, tbl.Size())

	row, err := tbl.ReadRow(1)
	require.NoError(t, err)
	require.Equal(t, byte(2), row[0])

	_, err = tbl.ReadRow(3)
	require.Error(t, err)
}

func TestMemTableRejectsBadStartIndex(t *testing.T) {
	tbl := NewMemTable()
	_, err := tbl.WriteRows(rowBlock(1), 1)
	require.Error(t, err)
}

func TestMemTableRejectsBadBlockLength(t *testing.T) {
	tbl := NewMemTable()
	_, err := tbl.WriteRows(make([]byte, rowWidth-1), 0)
	require.Error(t, err)
}

func TestMemTableGrowsAcrossManyWrites(t *testing.T) {
	tbl := NewMemTable()
	total := 0
	for i := 0; i < 50; i++ {
		n, err := tbl.WriteRows(rowBlock(7), total)
		require.NoError(t, err)
		total += 7
		require.Equal(t, total, n)
	}
	require.Equal(t, total, tbl.Size())
	row, err := tbl.ReadRow(total - 1)
	require.NoError(t, err)
	require.Equal(t, byte(7), row[0])
}

func TestMemTableTrimSize(t *testing.T) {
	tbl := NewMemTable()
	_, err := tbl.WriteRows(rowBlock(5), 0)
	require.NoError(t, err)

	require.NoError(t, tbl.TrimSize(5)) // no-op
	require.Equal(t, 5, tbl.Size())

	require.NoError(t, tbl.TrimSize(2))
	require.Equal(t, 2, tbl.Size())

	require.Error(t, tbl.TrimSize(0))
	require.Error(t, tbl.TrimSize(3))
}

func TestTxnTableReadsThroughAndCommits(t *testing.T) {
	primary := NewMemTable()
	_, err := primary.WriteRows(rowBlock(2), 0)
	require.NoError(t, err)

	txn := NewTxnTable(primary)
	require.Equal(t, 2, txn.Size())

	_, err = txn.WriteRows(rowBlock(3), 2)
	require.NoError(t, err)
	require.Equal(t, 5, txn.Size())
	require.Equal(t, 2, primary.Size())

	row, err := txn.ReadRow(0) // below snapshot: primary
	require.NoError(t, err)
	require.Equal(t, byte(1), row[0])

	row, err = txn.ReadRow(3) // in pending buffer
	require.NoError(t, err)
	require.Equal(t, byte(2), row[0])

	newSize, err := txn.Commit()
	require.NoError(t, err)
	require.Equal(t, 5, newSize)
	require.Equal(t, 5, primary.Size())
}

func TestTxnTableRejectsTrimSize(t *testing.T) {
	txn := NewTxnTable(NewMemTable())
	require.Error(t, txn.TrimSize(1))
}

func TestRowCacheRowOneAndLastRow(t *testing.T) {
	c := NewRowCache(DefaultRowCacheLevel, 3)
	var h1 sl.Hash
	h1[0] = 1
	c.PutRowOne(h1)

	got, ok := c.Get(1)
	require.True(t, ok)
	require.Equal(t, h1, got)

	var h2 sl.Hash
	h2[0] = 2
	c.SetLastRow(17, h2)
	got, ok = c.Get(17)
	require.True(t, ok)
	require.Equal(t, h2, got)
}

func TestRowCacheTreeCandidateRoundTrips(t *testing.T) {
	c := NewRowCache(DefaultRowCacheLevel, 2)
	var h sl.Hash
	h[0] = 9
	c.Put(8, h) // trailingZeros(8)=3 >= minLevel 2

	got, ok := c.Get(8)
	require.True(t, ok)
	require.Equal(t, h, got)
}

func TestRowCacheMissForUnknownRow(t *testing.T) {
	c := NewRowCache(DefaultRowCacheLevel, 2)
	_, ok := c.Get(123456)
	require.False(t, ok)
}

func TestRowCacheOverflowCatchesLowLevelRows(t *testing.T) {
	c := NewRowCache(DefaultRowCacheLevel, 5) // minLevel high: row 6 won't enter the tree
	var h sl.Hash
	h[0] = 42
	c.Put(6, h)

	got, ok := c.Get(6)
	require.True(t, ok)
	require.Equal(t, h, got)
}
