// Package geom implements the row-numbering and skip-pointer geometry of
// the skip ledger: skip counts, linkage, funnel lengths, coverage sets,
// and the stitch / skip-path algorithms that connect two row numbers.
//
// Everything here is pure integer arithmetic over row numbers — no
// hashing and no I/O.
package geom

import (
	"math/bits"
	"sort"

	sl "github.com/skiplgr/skipledger"
)

// MaxSkipCount is the invariant ceiling on skipCount(rn) (spec.md §3 invariant 4).
const MaxSkipCount = 63

// SkipCount returns the number of back-references row rn carries:
// 1 + trailing_zero_bits(rn). rn must be >= 1; row 0 is virtual.
func SkipCount(rn uint64) int {
	sl.Assert(rn >= 1, "SkipCount: rn must be >= 1, got %d", rn)
	sc := 1 + bits.TrailingZeros64(rn)
	sl.Assert(sc <= MaxSkipCount, "SkipCount: rn %d exceeds max skip count", rn)
	return sc
}

// IsCondensable reports whether rn's levels pointer can be condensed:
// skipCount(rn) > 2 and rn != 4 (spec.md §3 invariant 5).
func IsCondensable(rn uint64) bool {
	return SkipCount(rn) > 2 && rn != 4
}

// Linked reports whether a and b are linked: reflexively true when equal,
// otherwise true iff |a-b| is a power of two and its log2 is within the
// skip count of the higher row number.
func Linked(a, b uint64) bool {
	if a == b {
		return true
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	diff := hi - lo
	if diff&(diff-1) != 0 {
		return false // not a power of two
	}
	level := bits.TrailingZeros64(diff)
	return level < SkipCount(hi)
}

// offsetFor returns the row number rn references at the given level:
// rn - 2^level. Row 0 is a valid result (the sentinel row).
func offsetFor(rn uint64, level int) uint64 {
	return rn - (uint64(1) << uint(level))
}

// FunnelLength returns the number of sibling hashes needed to reconstruct
// the root of the fixed-leaf Merkle tree over n leaves from leaf index
// leaf (0-based, reverse-level order). Mirrors the odd-node carry-up rule
// of the levels-merkle-hash construction (spec.md §4.1, §9).
func FunnelLength(n, leaf int) int {
	sl.Assert(n >= 1 && leaf >= 0 && leaf < n, "FunnelLength: bad n=%d leaf=%d", n, leaf)
	count, idx, length := n, leaf, 0
	for count > 1 {
		if idx%2 == 0 {
			if idx+1 < count {
				length++
			}
			// else: unpaired node, carried up unchanged, no sibling
		} else {
			length++
		}
		idx /= 2
		count = (count + 1) / 2
	}
	return length
}

// Coverage returns, for a bag of row numbers all assumed to be *full* rows
// (every skip level known), the ascending deduplicated set of row numbers
// whose hashes the bag implicitly knows: the full rns themselves plus
// every row each one references.
func Coverage(fullRns []uint64) []uint64 {
	set := make(map[uint64]struct{}, len(fullRns)*2)
	for _, rn := range fullRns {
		set[rn] = struct{}{}
		sc := SkipCount(rn)
		for level := 0; level < sc; level++ {
			set[offsetFor(rn, level)] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// RefOnlyCoverage is Coverage(fullRns) minus fullRns itself.
func RefOnlyCoverage(fullRns []uint64) []uint64 {
	return setMinus(Coverage(fullRns), fullRns)
}

// CondensedCoverage is like Coverage, but a condensable row contributes
// only itself: its single retained level points at its immediate
// predecessor in fullRns, already a member of the set, and its other
// levels are only provable through an opaque Merkle funnel, not as
// standalone row hashes. Only always-all-levels rows contribute extra
// back-references.
func CondensedCoverage(fullRns []uint64) []uint64 {
	set := make(map[uint64]struct{}, len(fullRns)*2)
	for _, rn := range fullRns {
		set[rn] = struct{}{}
		if IsCondensable(rn) {
			continue
		}
		sc := SkipCount(rn)
		for level := 0; level < sc; level++ {
			set[offsetFor(rn, level)] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// RefOnlyCondensedCoverage is CondensedCoverage(fullRns) minus fullRns itself.
func RefOnlyCondensedCoverage(fullRns []uint64) []uint64 {
	return setMinus(CondensedCoverage(fullRns), fullRns)
}

// SkipPathNumbers returns the unique shortest ascending row-number
// sequence from lo to hi such that every adjacent pair is linked: starting
// at hi, repeatedly descend to the largest allowed offset that does not
// underflow lo, then reverse.
func SkipPathNumbers(lo, hi uint64) []uint64 {
	sl.Assert(lo <= hi, "SkipPathNumbers: lo %d > hi %d", lo, hi)
	if lo == hi {
		return []uint64{lo}
	}
	path := []uint64{hi}
	cur := hi
	for cur > lo {
		sc := SkipCount(cur)
		chosen := -1
		for level := sc - 1; level >= 0; level-- {
			if offsetFor(cur, level) >= lo {
				chosen = level
				break
			}
		}
		sl.Assert(chosen >= 0, "SkipPathNumbers: no valid descent from %d toward %d", cur, lo)
		cur = offsetFor(cur, chosen)
		path = append(path, cur)
	}
	reverse(path)
	return path
}

// Stitch returns the unique minimal ascending list containing all of L,
// in which every adjacent pair is linked. Gaps are filled with the
// skip-path between the two endpoints of the gap.
func Stitch(l []uint64) []uint64 {
	if len(l) == 0 {
		return nil
	}
	l = sortedDedup(l)
	result := make([]uint64, 0, len(l))
	result = append(result, l[0])
	for i := 1; i < len(l); i++ {
		prev, cur := l[i-1], l[i]
		if Linked(prev, cur) {
			result = append(result, cur)
			continue
		}
		sp := SkipPathNumbers(prev, cur)
		result = append(result, sp[1:]...)
	}
	return result
}

// StitchCompress is the inverse of Stitch: it returns a minimal subset of
// an already-stitched ascending list l from which Stitch reproduces l
// exactly. l is assumed to satisfy Stitch(l) == l (every adjacent pair
// linked); callers that violate this get undefined results.
func StitchCompress(l []uint64) []uint64 {
	if len(l) <= 1 {
		return append([]uint64{}, l...)
	}
	result := []uint64{l[0]}
	i := 0
	for i < len(l)-1 {
		best := i + 1
		for k := i + 1; k < len(l); k++ {
			sp := SkipPathNumbers(l[i], l[k])
			if equalSlices(sp, l[i:k+1]) {
				best = k
			} else {
				break
			}
		}
		result = append(result, l[best])
		i = best
	}
	return result
}

// StitchPath attempts to build a stitched path connecting the ascending
// targets using only row numbers present in known. Returns nil if any
// required intermediate row number is not known.
func StitchPath(known map[uint64]bool, targets []uint64) []uint64 {
	if len(targets) == 0 {
		return nil
	}
	targets = sortedDedup(targets)
	if !known[targets[0]] {
		return nil
	}
	result := []uint64{targets[0]}
	for i := 1; i < len(targets); i++ {
		prev := result[len(result)-1]
		cur := targets[i]
		if Linked(prev, cur) {
			if !known[cur] {
				return nil
			}
			result = append(result, cur)
			continue
		}
		sp := SkipPathNumbers(prev, cur)
		for _, x := range sp[1:] {
			if !known[x] {
				return nil
			}
			result = append(result, x)
		}
	}
	return result
}

func sortedKeys(set map[uint64]struct{}) []uint64 {
	ret := make([]uint64, 0, len(set))
	for k := range set {
		ret = append(ret, k)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

func setMinus(a, b []uint64) []uint64 {
	excl := make(map[uint64]struct{}, len(b))
	for _, x := range b {
		excl[x] = struct{}{}
	}
	ret := make([]uint64, 0, len(a))
	for _, x := range a {
		if _, ok := excl[x]; !ok {
			ret = append(ret, x)
		}
	}
	return ret
}

func sortedDedup(l []uint64) []uint64 {
	cp := append([]uint64{}, l...)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	out := cp[:0]
	var prev uint64
	havePrev := false
	for _, v := range cp {
		if havePrev && v == prev {
			continue
		}
		out = append(out, v)
		prev = v
		havePrev = true
	}
	return out
}

func equalSlices(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func reverse(l []uint64) {
	for i, j := 0, len(l)-1; i < j; i, j = i+1, j-1 {
		l[i], l[j] = l[j], l[i]
	}
}
