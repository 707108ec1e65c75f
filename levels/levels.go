// Package levels implements the levels pointer (spec.md §4.2): the
// commitment a row makes to its skip-referenced predecessors, in either
// full (every level hash present) or condensed (one level hash plus a
// Merkle funnel) form. Both forms produce the same levels-merkle-hash.
//
// A full pointer stores its skipCount(rn) hashes in reverse-level order:
// array index 0 is the deepest level (the largest offset, i.e. the
// smallest referenced row number), array index skipCount(rn)-1 is level 0
// (offset 1, the immediate predecessor). Because the deepest level always
// refers to the smallest row number, this storage order is also ascending
// row-number order, which Coverage relies on directly.
package levels

import (
	sl "github.com/skiplgr/skipledger"
	"github.com/skiplgr/skipledger/geom"
	"github.com/skiplgr/skipledger/skiphash"
)

// Pointer is a row's levels pointer, either full or condensed.
type Pointer struct {
	rn        uint64
	full      []sl.Hash // reverse-level order; nil if condensed
	condensed bool
	level     int     // meaningful only if condensed
	levelHash sl.Hash // meaningful only if condensed
	funnel    []sl.Hash
}

// ArrIndex converts a level number to its index in the reverse-level
// storage array (and is its own inverse). Exported so callers building a
// full pointer's hash vector (row.LazyRow, ledger.Ledger) or sizing a
// funnel (pack.Load) can use the same position without duplicating the
// convention.
func ArrIndex(sc, level int) int { return sc - 1 - level }

func arrIndex(sc, level int) int { return ArrIndex(sc, level) }

// NewFull builds a full levels pointer: prevHashes must have exactly
// skipCount(rn) entries in reverse-level order (index 0 deepest level).
func NewFull(rn uint64, prevHashes []sl.Hash) (*Pointer, error) {
	sc := geom.SkipCount(rn)
	if len(prevHashes) != sc {
		return nil, sl.Errorf(sl.ErrInvalidArgument, rn, -1,
			"full levels pointer needs %d hashes, got %d", sc, len(prevHashes))
	}
	cp := make([]sl.Hash, sc)
	copy(cp, prevHashes)
	return &Pointer{rn: rn, full: cp}, nil
}

// NewCondensed builds a condensed levels pointer pointing at level,
// carrying its level hash and a funnel of the required length.
func NewCondensed(rn uint64, level int, levelHash sl.Hash, funnel []sl.Hash) (*Pointer, error) {
	sc := geom.SkipCount(rn)
	if !geom.IsCondensable(rn) {
		return nil, sl.Errorf(sl.ErrUnsupported, rn, level, "row %d is always-all-levels, cannot condense", rn)
	}
	if level < 0 || level >= sc {
		return nil, sl.Errorf(sl.ErrOutOfBounds, rn, level, "level %d out of range [0,%d)", level, sc)
	}
	want := geom.FunnelLength(sc, arrIndex(sc, level))
	if len(funnel) != want {
		return nil, sl.Errorf(sl.ErrInvalidArgument, rn, level,
			"funnel length mismatch: want %d got %d", want, len(funnel))
	}
	cp := make([]sl.Hash, len(funnel))
	copy(cp, funnel)
	return &Pointer{rn: rn, condensed: true, level: level, levelHash: levelHash, funnel: cp}, nil
}

// RowNo returns the row number this pointer belongs to.
func (p *Pointer) RowNo() uint64 { return p.rn }

// SkipCount returns skipCount(rn).
func (p *Pointer) SkipCount() int { return geom.SkipCount(p.rn) }

// IsCondensed reports whether this pointer is in condensed form.
func (p *Pointer) IsCondensed() bool { return p.condensed }

// Level returns the retained level of a condensed pointer, and ok=false
// for a full pointer.
func (p *Pointer) Level() (int, bool) {
	if !p.condensed {
		return 0, false
	}
	return p.level, true
}

// Hash returns the levels-merkle-hash, reconstructed through the funnel
// for a condensed pointer.
func (p *Pointer) Hash() sl.Hash {
	if !p.condensed {
		return skiphash.LevelsMerkleHash(p.full)
	}
	sc := p.SkipCount()
	return skiphash.RootFromFunnel(p.levelHash, arrIndex(sc, p.level), sc, p.funnel)
}

// Coverage returns the ascending row numbers this pointer directly
// references: all skipCount(rn) predecessors for a full pointer, or the
// single retained level's predecessor for a condensed one.
func (p *Pointer) Coverage() []uint64 {
	if p.condensed {
		return []uint64{p.rn - (uint64(1) << uint(p.level))}
	}
	sc := len(p.full)
	out := make([]uint64, sc)
	for i := 0; i < sc; i++ {
		level := arrIndex(sc, i)
		out[i] = p.rn - (uint64(1) << uint(level))
	}
	return out
}

// CoversRow reports whether rn is among the rows this pointer references.
func (p *Pointer) CoversRow(rn uint64) bool {
	for _, c := range p.Coverage() {
		if c == rn {
			return true
		}
	}
	return false
}

// CoversLevel reports whether level is directly retained by this pointer.
func (p *Pointer) CoversLevel(level int) bool {
	if p.condensed {
		return level == p.level
	}
	return level >= 0 && level < len(p.full)
}

// LevelHash returns the hash stored at the given level, if retained.
func (p *Pointer) LevelHash(level int) (sl.Hash, bool) {
	if !p.CoversLevel(level) {
		return sl.Hash{}, false
	}
	if p.condensed {
		return p.levelHash, true
	}
	return p.full[arrIndex(len(p.full), level)], true
}

// RowHash returns the hash of refRn if this pointer covers it.
func (p *Pointer) RowHash(refRn uint64) (sl.Hash, bool) {
	sc := p.SkipCount()
	for level := 0; level < sc; level++ {
		if p.rn-(uint64(1)<<uint(level)) == refRn {
			return p.LevelHash(level)
		}
	}
	return sl.Hash{}, false
}

// Funnel returns the funnel of a condensed pointer, or nil/false if full.
func (p *Pointer) Funnel() ([]sl.Hash, bool) {
	if !p.condensed {
		return nil, false
	}
	cp := make([]sl.Hash, len(p.funnel))
	copy(cp, p.funnel)
	return cp, true
}

// CompressToLevel returns a condensed variant pointing at level. If this
// pointer is already condensed at a different level, it fails: a
// condensed pointer cannot be re-condensed at another level without the
// full level hashes.
func (p *Pointer) CompressToLevel(level int) (*Pointer, error) {
	if p.condensed {
		if level == p.level {
			return p, nil
		}
		return nil, sl.Errorf(sl.ErrUnsupported, p.rn, level,
			"already condensed at level %d, cannot re-condense at %d", p.level, level)
	}
	if !geom.IsCondensable(p.rn) {
		return nil, sl.Errorf(sl.ErrUnsupported, p.rn, level, "row %d is always-all-levels", p.rn)
	}
	sc := len(p.full)
	if level < 0 || level >= sc {
		return nil, sl.Errorf(sl.ErrOutOfBounds, p.rn, level, "level %d out of range [0,%d)", level, sc)
	}
	idx := arrIndex(sc, level)
	funnel := skiphash.BuildFunnel(p.full, idx)
	return NewCondensed(p.rn, level, p.full[idx], funnel)
}

// CompressToLevelRowNo is CompressToLevel for the level whose predecessor
// row number is refRn.
func (p *Pointer) CompressToLevelRowNo(refRn uint64) (*Pointer, error) {
	if refRn >= p.rn {
		return nil, sl.Errorf(sl.ErrInvalidArgument, p.rn, -1, "refRn %d must be < rn %d", refRn, p.rn)
	}
	diff := p.rn - refRn
	if diff&(diff-1) != 0 {
		return nil, sl.Errorf(sl.ErrNotLinked, p.rn, -1, "row %d does not reference row %d", p.rn, refRn)
	}
	level := trailingZeros(diff)
	return p.CompressToLevel(level)
}

func trailingZeros(v uint64) int {
	n := 0
	for v&1 == 0 {
		v >>= 1
		n++
	}
	return n
}
