package geom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSkipCountIdentity(t *testing.T) {
	cases := map[uint64]int{
		1: 1, 2: 2, 3: 1, 4: 3, 5: 1, 6: 2, 7: 1, 8: 4, 12: 3, 16: 5,
	}
	for rn, want := range cases {
		require.Equal(t, want, SkipCount(rn), "rn=%d", rn)
	}
}

func TestLinkedSymmetryAndReflexivity(t *testing.T) {
	for a := uint64(0); a < 20; a++ {
		require.True(t, Linked(a, a))
		for b := a + 1; b < 20; b++ {
			require.Equal(t, Linked(a, b), Linked(b, a), "a=%d b=%d", a, b)
		}
	}
	require.True(t, Linked(0, 1))
	require.True(t, Linked(0, 8))
	require.False(t, Linked(1, 3))
}

func TestSkipPathNumbers(t *testing.T) {
	got := SkipPathNumbers(1, 8)
	require.Equal(t, []uint64{1, 2, 4, 8}, got)
	for i := 1; i < len(got); i++ {
		require.True(t, Linked(got[i-1], got[i]))
	}
	require.Equal(t, []uint64{5}, SkipPathNumbers(5, 5))
}

func TestCoverageMonotonicity(t *testing.T) {
	l := []uint64{1, 8, 12}
	st := Stitch(l)
	for _, x := range l {
		found := false
		for _, y := range st {
			if x == y {
				found = true
			}
		}
		require.True(t, found, "stitch must contain %d", x)
	}
	require.Equal(t, Stitch(st), st, "stitch(stitch(L)) == stitch(L)")
}

func TestStitchCompressRoundTrip(t *testing.T) {
	for _, hi := range []uint64{1, 2, 4, 8, 16, 32, 100} {
		sp := SkipPathNumbers(0, hi)
		compressed := StitchCompress(sp)
		require.Equal(t, sp, Stitch(compressed), "round trip for hi=%d", hi)
	}
}

func TestIsCondensable(t *testing.T) {
	require.False(t, IsCondensable(1))
	require.False(t, IsCondensable(2))
	require.False(t, IsCondensable(4))
	require.True(t, IsCondensable(8))
	require.True(t, IsCondensable(16))
}

func TestFunnelLength(t *testing.T) {
	require.Equal(t, 0, FunnelLength(1, 0))
	require.Equal(t, 1, FunnelLength(2, 0))
	require.Equal(t, 1, FunnelLength(2, 1))
	for leaf := 0; leaf < 8; leaf++ {
		require.GreaterOrEqual(t, FunnelLength(8, leaf), 2)
	}
}

func TestStitchPathFailsWhenUnknown(t *testing.T) {
	known := map[uint64]bool{1: true, 2: true, 4: true, 8: true}
	require.Equal(t, []uint64{1, 2, 4, 8}, StitchPath(known, []uint64{1, 8}))
	delete(known, 2)
	require.Nil(t, StitchPath(known, []uint64{1, 8}))
}
