package kvadaptor

import (
	"testing"

	"github.com/iotaledger/hive.go/core/kvstore/mapdb"
	"github.com/stretchr/testify/require"
)

func rowBlock(n int, seed byte) []byte {
	out := make([]byte, n*rowWidth)
	for i := 0; i < n; i++ {
		out[i*rowWidth] = seed + byte(i)
	}
	return out
}

func TestKVTableWriteReadAndReopen(t *testing.T) {
	kvs := mapdb.NewMapDB()
	prefix := []byte("skipledger/rows/")

	tbl, err := NewKVTable(kvs, prefix)
	require.NoError(t, err)
	require.Equal(t, 0, tbl.Size())

	size, err := tbl.WriteRows(rowBlock(4, 1), 0)
	require.NoError(t, err)
	require.Equal(t, 4, size)

	row, err := tbl.ReadRow(2)
	require.NoError(t, err)
	require.Equal(t, byte(3), row[0])

	// A fresh table over the same kvs/prefix recovers its size.
	reopened, err := NewKVTable(kvs, prefix)
	require.NoError(t, err)
	require.Equal(t, 4, reopened.Size())
	row, err = reopened.ReadRow(0)
	require.NoError(t, err)
	require.Equal(t, byte(1), row[0])
}

func TestKVTableRejectsBadStartIndex(t *testing.T) {
	tbl, err := NewKVTable(mapdb.NewMapDB(), []byte("p"))
	require.NoError(t, err)
	_, err = tbl.WriteRows(rowBlock(1, 1), 1)
	require.Error(t, err)
}

func TestKVTableRejectsBadBlockLength(t *testing.T) {
	tbl, err := NewKVTable(mapdb.NewMapDB(), []byte("p"))
	require.NoError(t, err)
	_, err = tbl.WriteRows(make([]byte, rowWidth-1), 0)
	require.Error(t, err)
}

func TestKVTableTrimSize(t *testing.T) {
	tbl, err := NewKVTable(mapdb.NewMapDB(), []byte("p"))
	require.NoError(t, err)
	_, err = tbl.WriteRows(rowBlock(5, 1), 0)
	require.NoError(t, err)

	require.NoError(t, tbl.TrimSize(5)) // no-op
	require.Equal(t, 5, tbl.Size())

	require.NoError(t, tbl.TrimSize(2))
	require.Equal(t, 2, tbl.Size())

	require.Error(t, tbl.TrimSize(0))
	require.Error(t, tbl.TrimSize(3))

	_, err = tbl.ReadRow(2)
	require.Error(t, err)
}

func TestKVTablePartitionsByPrefix(t *testing.T) {
	kvs := mapdb.NewMapDB()
	a, err := NewKVTable(kvs, []byte("a/"))
	require.NoError(t, err)
	b, err := NewKVTable(kvs, []byte("b/"))
	require.NoError(t, err)

	_, err = a.WriteRows(rowBlock(2, 9), 0)
	require.NoError(t, err)

	require.Equal(t, 2, a.Size())
	require.Equal(t, 0, b.Size())
	_, err = b.ReadRow(0)
	require.Error(t, err)
}
