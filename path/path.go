// Package path implements Path (spec.md §4.4): a validated, immutable
// sequence of linked rows, built once through a single forward pass and
// then only resliced or recombined — never re-verified — by its
// combinators. This mirrors the teacher's "copy once, trust thereafter"
// treatment of a committed node set.
package path

import (
	"math/bits"
	"sort"

	sl "github.com/skiplgr/skipledger"
	"github.com/skiplgr/skipledger/geom"
	"github.com/skiplgr/skipledger/row"
	"github.com/skiplgr/skipledger/skiphash"
)

// MaxRowsPerPath bounds the number of rows a single Path may hold.
const MaxRowsPerPath = 256 * 256

// Path is a non-empty, strictly ascending, pairwise-linked sequence of
// rows, along with every (rn, hash) binding the sequence proves.
type Path struct {
	rows       []row.Row
	bindings   map[uint64]sl.Hash
	nosCovered []uint64
}

// NewPath validates rows in a single forward pass (spec.md §4.4) and
// returns the resulting Path. rows is defensively copied; the input
// slice is never retained.
func NewPath(rows []row.Row) (*Path, error) {
	return buildPath(rows, true)
}

func newPathTrusted(rows []row.Row) (*Path, error) {
	return buildPath(rows, false)
}

func buildPath(rows []row.Row, validate bool) (*Path, error) {
	if len(rows) == 0 {
		return nil, sl.Errorf(sl.ErrInvalidArgument, 0, -1, "path needs at least one row")
	}
	if len(rows) > MaxRowsPerPath {
		return nil, sl.Errorf(sl.ErrInvalidArgument, 0, -1, "path exceeds max length %d", MaxRowsPerPath)
	}

	cp := make([]row.Row, len(rows))
	copy(cp, rows)

	bindings := make(map[uint64]sl.Hash, len(cp)*2)
	prevNo := cp[0].No() - 1

	for i, r := range cp {
		rn := r.No()

		if validate {
			if i > 0 && rn <= prevNo {
				return nil, sl.Errorf(sl.ErrInvalidArgument, rn, -1, "path rows must be strictly ascending")
			}
			if !geom.Linked(prevNo, rn) {
				return nil, sl.Errorf(sl.ErrNotLinked, rn, -1, "row %d not linked to preceding row %d", rn, prevNo)
			}
		}

		lp, err := r.LevelsPointer()
		if err != nil {
			return nil, err
		}

		if validate && lp.IsCondensed() {
			level, _ := lp.Level()
			if prevNo+(uint64(1)<<uint(level)) != rn {
				return nil, sl.Errorf(sl.ErrInvalidArgument, rn, level,
					"condensed level %d does not target predecessor row %d", level, prevNo)
			}
		}

		levelsToCheck := condensedLevelsOf(lp)
		for _, level := range levelsToCheck {
			refRn := rn - (uint64(1) << uint(level))
			h, ok := lp.LevelHash(level)
			sl.Assert(ok, "buildPath: levels pointer does not cover its own retained level %d", level)

			if refRn == 0 && h != skiphash.Sentinel() {
				return nil, sl.Errorf(sl.ErrInvalidArgument, rn, level,
					"level referencing row 0 must carry the sentinel hash")
			}
			if err := bind(bindings, refRn, h); err != nil {
				return nil, err
			}
		}

		ownHash, err := r.Hash()
		if err != nil {
			return nil, err
		}
		if err := bind(bindings, rn, ownHash); err != nil {
			return nil, err
		}

		if validate {
			recomputed := skiphash.RowHash(r.InputHash(), lp.Hash())
			if recomputed != ownHash {
				return nil, sl.Errorf(sl.ErrHashConflict, rn, -1, "row %d hash disagrees with its input/levels hash", rn)
			}
		}

		prevNo = rn
	}

	nos := make([]uint64, 0, len(bindings))
	for rn := range bindings {
		nos = append(nos, rn)
	}
	sort.Slice(nos, func(i, j int) bool { return nos[i] < nos[j] })

	return &Path{rows: cp, bindings: bindings, nosCovered: nos}, nil
}

func condensedLevelsOf(lp interface {
	IsCondensed() bool
	Level() (int, bool)
	SkipCount() int
}) []int {
	if lp.IsCondensed() {
		level, _ := lp.Level()
		return []int{level}
	}
	sc := lp.SkipCount()
	out := make([]int, sc)
	for i := range out {
		out[i] = i
	}
	return out
}

func bind(bindings map[uint64]sl.Hash, rn uint64, h sl.Hash) error {
	if existing, ok := bindings[rn]; ok {
		if existing != h {
			return sl.Errorf(sl.ErrHashConflict, rn, -1, "conflicting hash bindings for row %d", rn)
		}
		return nil
	}
	bindings[rn] = h
	return nil
}

// Rows returns the path's row list. Callers must not mutate it.
func (p *Path) Rows() []row.Row { return p.rows }

// First returns the path's lowest-numbered row.
func (p *Path) First() row.Row { return p.rows[0] }

// Last returns the path's highest-numbered row.
func (p *Path) Last() row.Row { return p.rows[len(p.rows)-1] }

// Lo is the row number of First().
func (p *Path) Lo() uint64 { return p.rows[0].No() }

// Hi is the row number of Last().
func (p *Path) Hi() uint64 { return p.rows[len(p.rows)-1].No() }

// Length is the number of rows in the path.
func (p *Path) Length() int { return len(p.rows) }

// RowNumbers returns the ascending row numbers of the rows in the path.
func (p *Path) RowNumbers() []uint64 {
	out := make([]uint64, len(p.rows))
	for i, r := range p.rows {
		out[i] = r.No()
	}
	return out
}

// IsSkipPath reports whether the path is exactly the minimal skip path
// between its low and high row numbers.
func (p *Path) IsSkipPath() bool {
	return p.Length() == len(geom.SkipPathNumbers(p.Lo(), p.Hi()))
}

// IsCondensed reports whether any row in the path is condensed.
func (p *Path) IsCondensed() (bool, error) {
	for _, r := range p.rows {
		c, err := r.IsCondensed()
		if err != nil {
			return false, err
		}
		if c {
			return true, nil
		}
	}
	return false, nil
}

// IsCompressed reports whether every row is always-all-levels or condensed.
func (p *Path) IsCompressed() (bool, error) {
	for _, r := range p.rows {
		c, err := r.IsCompressed()
		if err != nil {
			return false, err
		}
		if !c {
			return false, nil
		}
	}
	return true, nil
}

// Compress returns a path where every condensable row but the first has
// its levels pointer condensed to the level targeting the preceding row
// in this path. Always-all-levels rows keep their full pointers, and the
// first row, having no predecessor within the path, is left unchanged.
func (p *Path) Compress() (*Path, error) {
	newRows := make([]row.Row, len(p.rows))
	newRows[0] = p.rows[0]
	for i := 1; i < len(p.rows); i++ {
		r := p.rows[i]
		if !geom.IsCondensable(r.No()) {
			newRows[i] = r
			continue
		}
		cond, err := r.IsCondensed()
		if err != nil {
			return nil, err
		}
		if cond {
			newRows[i] = r
			continue
		}
		lp, err := r.LevelsPointer()
		if err != nil {
			return nil, err
		}
		diff := r.No() - p.rows[i-1].No()
		sl.Assert(diff&(diff-1) == 0, "Compress: adjacent rows %d, %d are not linked", p.rows[i-1].No(), r.No())
		level := bits.TrailingZeros64(diff)
		condensedLP, err := lp.CompressToLevel(level)
		if err != nil {
			return nil, err
		}
		sr, err := row.NewStaticRow(r.No(), r.InputHash(), condensedLP)
		if err != nil {
			return nil, err
		}
		newRows[i] = sr
	}
	return newPathTrusted(newRows)
}

func (p *Path) indexOf(rn uint64) (int, bool) {
	i := sort.Search(len(p.rows), func(i int) bool { return p.rows[i].No() >= rn })
	if i < len(p.rows) && p.rows[i].No() == rn {
		return i, true
	}
	return 0, false
}

// SubPath returns the contiguous slice of rows numbered in [from, to].
// If the resulting first row is condensed, its levels pointer must cover
// the row immediately preceding it in the original path.
func (p *Path) SubPath(from, to uint64) (*Path, error) {
	startIdx, ok := p.indexOf(from)
	if !ok {
		return nil, sl.Errorf(sl.ErrOutOfBounds, from, -1, "row %d is not a member of this path", from)
	}
	endIdx, ok := p.indexOf(to)
	if !ok {
		return nil, sl.Errorf(sl.ErrOutOfBounds, to, -1, "row %d is not a member of this path", to)
	}
	if startIdx > endIdx {
		return nil, sl.Errorf(sl.ErrInvalidArgument, from, -1, "from %d comes after to %d", from, to)
	}
	if startIdx > 0 {
		predecessor := p.rows[startIdx-1].No()
		first := p.rows[startIdx]
		cond, err := first.IsCondensed()
		if err != nil {
			return nil, err
		}
		if cond {
			lp, err := first.LevelsPointer()
			if err != nil {
				return nil, err
			}
			if !lp.CoversRow(predecessor) {
				return nil, sl.Errorf(sl.ErrUnsupported, first.No(), -1,
					"condensed row %d does not cover its predecessor %d, cannot start a subpath here", first.No(), predecessor)
			}
		}
	}
	return newPathTrusted(p.rows[startIdx : endIdx+1])
}

// SubPathFrom is SubPath(from, p.Hi()).
func (p *Path) SubPathFrom(from uint64) (*Path, error) { return p.SubPath(from, p.Hi()) }

// HeadPath is SubPath(p.Lo(), rn).
func (p *Path) HeadPath(rn uint64) (*Path, error) { return p.SubPath(p.Lo(), rn) }

// TailPath is SubPath(rn, p.Hi()).
func (p *Path) TailPath(rn uint64) (*Path, error) { return p.SubPath(rn, p.Hi()) }

// NosCovered returns the ordered union of every row number this path
// proves a hash for: each row's own number plus its levels pointer's
// coverage.
func (p *Path) NosCovered() []uint64 {
	out := make([]uint64, len(p.nosCovered))
	copy(out, p.nosCovered)
	return out
}

// HasRow reports whether rn is a literal member of the path's row list.
func (p *Path) HasRow(rn uint64) bool {
	_, ok := p.indexOf(rn)
	return ok
}

// HasRowCovered reports whether rn's hash is provable from this path,
// whether or not rn is a literal row member.
func (p *Path) HasRowCovered(rn uint64) bool {
	_, ok := p.bindings[rn]
	return ok
}

// GetRowHash returns the hash bound to rn, for any rn in NosCovered().
func (p *Path) GetRowHash(rn uint64) (sl.Hash, error) {
	h, ok := p.bindings[rn]
	if !ok {
		return sl.Hash{}, sl.Errorf(sl.ErrNotFound, rn, -1, "row %d is not covered by this path", rn)
	}
	return h, nil
}

// GetRowByNumber returns the literal row rn, if present.
func (p *Path) GetRowByNumber(rn uint64) (row.Row, bool) {
	i, ok := p.indexOf(rn)
	if !ok {
		return nil, false
	}
	return p.rows[i], true
}

// GetRowOrReferringRow returns rn itself if it is a literal row, or
// otherwise the first (lowest-numbered) row whose levels pointer covers
// rn.
func (p *Path) GetRowOrReferringRow(rn uint64) (row.Row, bool) {
	if r, ok := p.GetRowByNumber(rn); ok {
		return r, true
	}
	for _, r := range p.rows {
		lp, err := r.LevelsPointer()
		if err != nil {
			continue
		}
		if lp.CoversRow(rn) {
			return r, true
		}
	}
	return nil, false
}

func (p *Path) mustSelectRows(targets []uint64) []row.Row {
	out := make([]row.Row, len(targets))
	for i, rn := range targets {
		idx, ok := p.indexOf(rn)
		sl.Assert(ok, "path: expected row %d to be a literal member", rn)
		out[i] = p.rows[idx]
	}
	return out
}

func (p *Path) trySelectRows(targets []uint64) ([]row.Row, bool) {
	out := make([]row.Row, len(targets))
	for i, rn := range targets {
		idx, ok := p.indexOf(rn)
		if !ok {
			return nil, false
		}
		out[i] = p.rows[idx]
	}
	return out, true
}

// SkipPath returns the unique shortest path equivalent to this one: the
// subsequence of rows at the minimal skip-path row numbers between Lo()
// and Hi().
func (p *Path) SkipPath() (*Path, error) {
	targets := geom.SkipPathNumbers(p.Lo(), p.Hi())
	return newPathTrusted(p.mustSelectRows(targets))
}

// SkipPathThrough returns the shortest path that is covered by this path
// and passes through every rn in targets, ascending. If trim is false,
// Lo() and Hi() are also included as endpoints even if absent from
// targets. Returns (nil, nil) if any requested rn is not covered by this
// path.
func (p *Path) SkipPathThrough(trim bool, targets ...uint64) (*Path, error) {
	if len(targets) == 0 {
		return nil, sl.Errorf(sl.ErrInvalidArgument, 0, -1, "SkipPathThrough needs at least one target")
	}
	waypoints := sortedDedup(targets)
	for _, t := range waypoints {
		if !p.HasRowCovered(t) {
			return nil, nil
		}
	}
	if !trim {
		if waypoints[0] != p.Lo() {
			waypoints = append([]uint64{p.Lo()}, waypoints...)
		}
		if waypoints[len(waypoints)-1] != p.Hi() {
			waypoints = append(waypoints, p.Hi())
		}
	}

	full := []uint64{waypoints[0]}
	for i := 1; i < len(waypoints); i++ {
		sp := geom.SkipPathNumbers(waypoints[i-1], waypoints[i])
		full = append(full, sp[1:]...)
	}

	rows, ok := p.trySelectRows(full)
	if !ok {
		return nil, nil
	}
	return newPathTrusted(rows)
}

// AppendTail returns this path extended by other's rows strictly after
// Hi(), provided other agrees with this path on the hash of Hi().
func (p *Path) AppendTail(other *Path) (*Path, error) {
	mine, err := p.GetRowHash(p.Hi())
	if err != nil {
		return nil, err
	}
	theirs, err := other.GetRowHash(p.Hi())
	if err != nil {
		return nil, sl.Errorf(sl.ErrInvalidArgument, p.Hi(), -1, "other path does not cover %d", p.Hi())
	}
	if mine != theirs {
		return nil, sl.Errorf(sl.ErrHashConflict, p.Hi(), -1, "paths disagree on the hash of row %d", p.Hi())
	}
	tail, err := other.TailPath(p.Hi() + 1)
	if err != nil {
		return nil, err
	}
	merged := make([]row.Row, 0, p.Length()+tail.Length())
	merged = append(merged, p.rows...)
	merged = append(merged, tail.rows...)
	return newPathTrusted(merged)
}

// HighestCommonNo returns the largest row number covered by both paths,
// after verifying they agree on its hash.
func (p *Path) HighestCommonNo(other *Path) (uint64, bool, error) {
	for i := len(p.nosCovered) - 1; i >= 0; i-- {
		rn := p.nosCovered[i]
		if !other.HasRowCovered(rn) {
			continue
		}
		mine, _ := p.GetRowHash(rn)
		theirs, _ := other.GetRowHash(rn)
		if mine != theirs {
			return 0, false, sl.Errorf(sl.ErrHashConflict, rn, -1, "paths disagree on the hash of row %d", rn)
		}
		return rn, true, nil
	}
	return 0, false, nil
}

// HighestCommonFullNo is HighestCommonNo restricted to row numbers that
// are literal members of both paths.
func (p *Path) HighestCommonFullNo(other *Path) (uint64, bool, error) {
	rows := p.RowNumbers()
	for i := len(rows) - 1; i >= 0; i-- {
		rn := rows[i]
		if !other.HasRow(rn) {
			continue
		}
		mine, _ := p.GetRowHash(rn)
		theirs, _ := other.GetRowHash(rn)
		if mine != theirs {
			return 0, false, sl.Errorf(sl.ErrHashConflict, rn, -1, "paths disagree on the hash of row %d", rn)
		}
		return rn, true, nil
	}
	return 0, false, nil
}

// Equal reports whether two paths have the same row-number list and
// agree on the hash of their last row.
func (p *Path) Equal(other *Path) bool {
	if other == nil {
		return false
	}
	mine, theirs := p.RowNumbers(), other.RowNumbers()
	if len(mine) != len(theirs) {
		return false
	}
	for i := range mine {
		if mine[i] != theirs[i] {
			return false
		}
	}
	h1, err1 := p.Last().Hash()
	h2, err2 := other.Last().Hash()
	return err1 == nil && err2 == nil && h1 == h2
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
