package skiphash

import (
	"testing"

	"github.com/stretchr/testify/require"

	sl "github.com/skiplgr/skipledger"
	"github.com/skiplgr/skipledger/geom"
)

func h(b byte) (r sl.Hash) {
	r[0] = b
	return r
}

func TestRowHashSingleLevelIsSentinel(t *testing.T) {
	input := H([]byte("row1"))
	levels := RowHash(input, Sentinel())
	require.Equal(t, H(append(append([]byte{}, input[:]...), Sentinel()[:]...)), levels)
}

func TestLevelsMerkleHashSingleElement(t *testing.T) {
	only := H([]byte("x"))
	require.Equal(t, only, LevelsMerkleHash([]sl.Hash{only}))
}

func TestFunnelRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 15, 16, 63} {
		leaves := make([]sl.Hash, n)
		for i := range leaves {
			leaves[i] = h(byte(i + 1))
		}
		root := LevelsMerkleHash(leaves)
		for leaf := 0; leaf < n; leaf++ {
			funnel := BuildFunnel(leaves, leaf)
			require.Equal(t, geom.FunnelLength(n, leaf), len(funnel), "n=%d leaf=%d", n, leaf)
			got := RootFromFunnel(leaves[leaf], leaf, n, funnel)
			require.Equal(t, root, got, "n=%d leaf=%d", n, leaf)
		}
	}
}

func TestOddNodeCarryUp(t *testing.T) {
	a, b, c := h(1), h(2), h(3)
	parentAB := H(append(append([]byte{}, a[:]...), b[:]...))
	expected := H(append(append([]byte{}, parentAB[:]...), c[:]...))
	require.Equal(t, expected, LevelsMerkleHash([]sl.Hash{a, b, c}))
}
