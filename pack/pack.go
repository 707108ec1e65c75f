// Package pack implements PathPack (spec.md §4.5 / §6): a byte-layout
// encoding of a Path that stores only what cannot be recomputed — input
// hashes of its full rows, funnels for condensed rows, and the hashes of
// rows referenced but not carried as full rows — preceded by a small
// header identifying the pre-stitched row-number skeleton.
package pack

import (
	"bytes"
	"io"
	"math/bits"
	"sort"

	sl "github.com/skiplgr/skipledger"
	"github.com/skiplgr/skipledger/geom"
	"github.com/skiplgr/skipledger/levels"
	"github.com/skiplgr/skipledger/path"
	"github.com/skiplgr/skipledger/row"
	"github.com/skiplgr/skipledger/skiphash"
)

// Pack is the common read surface of a path-pack, satisfied by both
// PathPack and MemoPathPack.
type Pack interface {
	InputHash(rn uint64) (sl.Hash, bool)
	RefOnlyHash(rn uint64) (sl.Hash, bool)
	RowHash(rn uint64) (sl.Hash, bool)
	GetFunnel(rn uint64, level int) ([]sl.Hash, bool)
	GetFullRowNumbers() []uint64
	Path() (*path.Path, error)
	Serialize() []byte
}

const typeFull = 0x00
const typeCondensed = 0x01

// PathPack is the plain pack: row hashes of full rows are recomputed on
// every lookup via a Bag view over the pack's own stored hashes.
type PathPack struct {
	stitchedRns []uint64
	fullRns     []uint64
	condensed   bool
	inputs      []sl.Hash // parallel to fullRns
	funnels     map[uint64][]sl.Hash
	refRns      []uint64
	refs        map[uint64]sl.Hash

	cachedPath *path.Path
}

var _ Pack = (*PathPack)(nil)
var _ row.Bag = (*PathPack)(nil)

// FromPath builds a PathPack encoding p. p is encoded condensed iff it is
// fully compressed (spec.md §3 invariant 6); otherwise every row is
// stored full.
func FromPath(p *path.Path) (*PathPack, error) {
	fullRns := p.RowNumbers()
	stitched := geom.StitchCompress(fullRns)

	condensed, err := p.IsCompressed()
	if err != nil {
		return nil, err
	}

	inputs := make([]sl.Hash, len(fullRns))
	for i, rn := range fullRns {
		r, ok := p.GetRowByNumber(rn)
		sl.Assert(ok, "FromPath: row %d missing from its own path", rn)
		inputs[i] = r.InputHash()
	}

	funnels := make(map[uint64][]sl.Hash)
	if condensed {
		for i := 1; i < len(fullRns); i++ {
			rn := fullRns[i]
			if !geom.IsCondensable(rn) {
				continue
			}
			r, _ := p.GetRowByNumber(rn)
			lp, err := r.LevelsPointer()
			if err != nil {
				return nil, err
			}
			if !lp.IsCondensed() {
				return nil, sl.Errorf(sl.ErrInvalidArgument, rn, -1,
					"path is reported compressed but row %d is not condensed", rn)
			}
			f, _ := lp.Funnel()
			funnels[rn] = f
		}
	}

	var refCoverage []uint64
	if condensed {
		refCoverage = geom.RefOnlyCondensedCoverage(fullRns)
	} else {
		refCoverage = geom.RefOnlyCoverage(fullRns)
	}

	refRns := make([]uint64, 0, len(refCoverage))
	refs := make(map[uint64]sl.Hash, len(refCoverage))
	for _, rn := range refCoverage {
		if rn == 0 {
			continue
		}
		h, err := p.GetRowHash(rn)
		if err != nil {
			return nil, err
		}
		refRns = append(refRns, rn)
		refs[rn] = h
	}

	return &PathPack{
		stitchedRns: stitched,
		fullRns:     fullRns,
		condensed:   condensed,
		inputs:      inputs,
		funnels:     funnels,
		refRns:      refRns,
		refs:        refs,
		cachedPath:  p,
	}, nil
}

func indexOfSorted(l []uint64, v uint64) (int, bool) {
	i := sort.Search(len(l), func(i int) bool { return l[i] >= v })
	if i < len(l) && l[i] == v {
		return i, true
	}
	return 0, false
}

// levelOf returns the level a condensed row's single retained level
// targets, derived purely from its position among fullRns: the level
// whose offset equals the gap to the preceding full row.
func (pp *PathPack) levelOf(rn uint64) (int, bool) {
	if !pp.condensed || !geom.IsCondensable(rn) {
		return 0, false
	}
	idx, ok := indexOfSorted(pp.fullRns, rn)
	if !ok || idx == 0 {
		return 0, false
	}
	diff := rn - pp.fullRns[idx-1]
	return bits.TrailingZeros64(diff), true
}

// InputHash returns the input hash of rn, if rn is a full row.
func (pp *PathPack) InputHash(rn uint64) (sl.Hash, bool) {
	idx, ok := indexOfSorted(pp.fullRns, rn)
	if !ok {
		return sl.Hash{}, false
	}
	return pp.inputs[idx], true
}

// RefOnlyHash returns the explicitly stored hash of rn, if it is a
// ref-only row (referenced but not carried as a full row).
func (pp *PathPack) RefOnlyHash(rn uint64) (sl.Hash, bool) {
	h, ok := pp.refs[rn]
	return h, ok
}

// RowHash returns rn's hash: the ref-only hash if stored, the sentinel
// for row 0, or else the recomputed hash of a full row.
func (pp *PathPack) RowHash(rn uint64) (sl.Hash, bool) {
	if rn == 0 {
		return skiphash.Sentinel(), true
	}
	if h, ok := pp.refs[rn]; ok {
		return h, true
	}
	if _, ok := indexOfSorted(pp.fullRns, rn); ok {
		return pp.fullRowHash(rn)
	}
	return sl.Hash{}, false
}

func (pp *PathPack) fullRowHash(rn uint64) (sl.Hash, bool) {
	r, ok := pp.GetRow(rn)
	if !ok {
		return sl.Hash{}, false
	}
	h, err := r.Hash()
	if err != nil {
		return sl.Hash{}, false
	}
	return h, true
}

// GetFunnel returns the funnel stored for rn's condensed level, if any.
func (pp *PathPack) GetFunnel(rn uint64, level int) ([]sl.Hash, bool) {
	want, ok := pp.levelOf(rn)
	if !ok || want != level {
		return nil, false
	}
	f, ok := pp.funnels[rn]
	return f, ok
}

// GetFullRowNumbers returns the ascending list of full row numbers.
func (pp *PathPack) GetFullRowNumbers() []uint64 {
	out := make([]uint64, len(pp.fullRns))
	copy(out, pp.fullRns)
	return out
}

// GetRow returns a lazy row backed by this pack's hashes, in full or
// condensed form per the pack's type.
func (pp *PathPack) GetRow(rn uint64) (row.Row, bool) {
	return pp.getRowWithBag(pp, rn)
}

func (pp *PathPack) getRowWithBag(bag row.Bag, rn uint64) (row.Row, bool) {
	if _, ok := indexOfSorted(pp.fullRns, rn); !ok {
		return nil, false
	}
	if level, ok := pp.levelOf(rn); ok {
		return row.NewCondensedLazyRow(bag, rn, level), true
	}
	return row.NewFullLazyRow(bag, rn), true
}

// Path lazily constructs the Path this pack encodes. Repeated calls
// return the same instance.
func (pp *PathPack) Path() (*path.Path, error) {
	if pp.cachedPath != nil {
		return pp.cachedPath, nil
	}
	rows := make([]row.Row, len(pp.fullRns))
	for i, rn := range pp.fullRns {
		r, ok := pp.GetRow(rn)
		sl.Assert(ok, "Path: full row %d missing from pack", rn)
		rows[i] = r
	}
	p, err := path.NewPath(rows)
	if err != nil {
		return nil, err
	}
	pp.cachedPath = p
	return p, nil
}

// Serialize encodes the pack deterministically per spec.md §6.
func (pp *PathPack) Serialize() []byte {
	var buf bytes.Buffer

	sl.WriteInt32(&buf, int32(len(pp.stitchedRns)))
	for _, rn := range pp.stitchedRns {
		sl.WriteInt64(&buf, int64(rn))
	}

	if pp.condensed {
		buf.WriteByte(typeCondensed)
	} else {
		buf.WriteByte(typeFull)
	}

	for _, h := range pp.inputs {
		sl.WriteHash(&buf, sl.Hash(h))
	}

	if pp.condensed {
		for i := 1; i < len(pp.fullRns); i++ {
			rn := pp.fullRns[i]
			if !geom.IsCondensable(rn) {
				continue
			}
			for _, h := range pp.funnels[rn] {
				sl.WriteHash(&buf, sl.Hash(h))
			}
		}
	}

	for _, rn := range pp.refRns {
		sl.WriteHash(&buf, sl.Hash(pp.refs[rn]))
	}

	return buf.Bytes()
}

// Load parses a serialized PathPack, validating every region length
// exactly; any mismatch fails with a byte-format error.
func Load(data []byte) (*PathPack, error) {
	r := bytes.NewReader(data)

	count, err := sl.ReadInt32(r)
	if err != nil || count < 0 {
		return nil, sl.Errorf(sl.ErrByteFormat, 0, -1, "pack: missing or invalid header count")
	}
	stitched := make([]uint64, count)
	for i := range stitched {
		v, err := sl.ReadInt64(r)
		if err != nil {
			return nil, sl.Errorf(sl.ErrByteFormat, 0, -1, "pack: truncated header row number %d", i)
		}
		stitched[i] = uint64(v)
	}
	for i := 1; i < len(stitched); i++ {
		if stitched[i] <= stitched[i-1] {
			return nil, sl.Errorf(sl.ErrByteFormat, 0, -1, "pack: header row numbers must be strictly ascending")
		}
	}

	var typeByte [1]byte
	if _, err := io.ReadFull(r, typeByte[:]); err != nil {
		return nil, sl.Errorf(sl.ErrByteFormat, 0, -1, "pack: missing type byte")
	}
	var condensed bool
	switch typeByte[0] {
	case typeFull:
		condensed = false
	case typeCondensed:
		condensed = true
	default:
		return nil, sl.Errorf(sl.ErrByteFormat, 0, -1, "pack: unrecognized type byte 0x%02x", typeByte[0])
	}

	fullRns := geom.Stitch(stitched)

	inputs := make([]sl.Hash, len(fullRns))
	for i := range inputs {
		h, err := sl.ReadHash(r)
		if err != nil {
			return nil, sl.Errorf(sl.ErrByteFormat, 0, -1, "pack: truncated inputs block at index %d", i)
		}
		inputs[i] = h
	}

	funnels := make(map[uint64][]sl.Hash)
	if condensed {
		for i := 1; i < len(fullRns); i++ {
			rn := fullRns[i]
			if !geom.IsCondensable(rn) {
				continue
			}
			level := bits.TrailingZeros64(rn - fullRns[i-1])
			sc := geom.SkipCount(rn)
			flen := geom.FunnelLength(sc, levels.ArrIndex(sc, level))
			funnel := make([]sl.Hash, flen)
			for j := range funnel {
				h, err := sl.ReadHash(r)
				if err != nil {
					return nil, sl.Errorf(sl.ErrByteFormat, rn, level, "pack: truncated funnel for row %d", rn)
				}
				funnel[j] = h
			}
			funnels[rn] = funnel
		}
	}

	var refCoverage []uint64
	if condensed {
		refCoverage = geom.RefOnlyCondensedCoverage(fullRns)
	} else {
		refCoverage = geom.RefOnlyCoverage(fullRns)
	}
	refRns := make([]uint64, 0, len(refCoverage))
	for _, rn := range refCoverage {
		if rn != 0 {
			refRns = append(refRns, rn)
		}
	}
	refs := make(map[uint64]sl.Hash, len(refRns))
	for _, rn := range refRns {
		h, err := sl.ReadHash(r)
		if err != nil {
			return nil, sl.Errorf(sl.ErrByteFormat, rn, -1, "pack: truncated refs block at row %d", rn)
		}
		refs[rn] = h
	}

	if r.Len() != 0 {
		return nil, sl.Errorf(sl.ErrByteFormat, 0, -1, "pack: %d trailing bytes after refs block", r.Len())
	}

	return &PathPack{
		stitchedRns: stitched,
		fullRns:     fullRns,
		condensed:   condensed,
		inputs:      inputs,
		funnels:     funnels,
		refRns:      refRns,
		refs:        refs,
	}, nil
}

// MemoPathPack wraps a PathPack and precomputes the row hash of every
// full row bottom-up, since each only references already-written rns;
// RowHash lookups on full rows become O(log N) via binary search into a
// flat hash slice instead of recursive Bag traversal.
type MemoPathPack struct {
	pp   *PathPack
	memo []sl.Hash // parallel to pp.fullRns
}

var _ Pack = (*MemoPathPack)(nil)
var _ row.Bag = (*MemoPathPack)(nil)

// NewMemoPathPack precomputes every full row's hash from pp.
func NewMemoPathPack(pp *PathPack) (*MemoPathPack, error) {
	mp := &MemoPathPack{pp: pp, memo: make([]sl.Hash, len(pp.fullRns))}
	for i, rn := range pp.fullRns {
		r, ok := mp.GetRow(rn)
		sl.Assert(ok, "NewMemoPathPack: full row %d missing from pack", rn)
		h, err := r.Hash()
		if err != nil {
			return nil, err
		}
		mp.memo[i] = h
	}
	return mp, nil
}

func (mp *MemoPathPack) InputHash(rn uint64) (sl.Hash, bool)   { return mp.pp.InputHash(rn) }
func (mp *MemoPathPack) RefOnlyHash(rn uint64) (sl.Hash, bool) { return mp.pp.RefOnlyHash(rn) }
func (mp *MemoPathPack) GetFullRowNumbers() []uint64           { return mp.pp.GetFullRowNumbers() }
func (mp *MemoPathPack) GetFunnel(rn uint64, level int) ([]sl.Hash, bool) {
	return mp.pp.GetFunnel(rn, level)
}
func (mp *MemoPathPack) Serialize() []byte { return mp.pp.Serialize() }

// RowHash returns rn's hash via binary search into the precomputed
// memo slice for full rows, falling back to ref hashes and the sentinel.
func (mp *MemoPathPack) RowHash(rn uint64) (sl.Hash, bool) {
	if rn == 0 {
		return skiphash.Sentinel(), true
	}
	if h, ok := mp.pp.refs[rn]; ok {
		return h, true
	}
	if idx, ok := indexOfSorted(mp.pp.fullRns, rn); ok {
		return mp.memo[idx], true
	}
	return sl.Hash{}, false
}

// GetRow returns a row backed by this memoized pack's hash lookups.
func (mp *MemoPathPack) GetRow(rn uint64) (row.Row, bool) {
	return mp.pp.getRowWithBag(mp, rn)
}

// Path lazily constructs the Path this pack encodes, using memoized
// hashes for every full row.
func (mp *MemoPathPack) Path() (*path.Path, error) {
	rows := make([]row.Row, len(mp.pp.fullRns))
	for i, rn := range mp.pp.fullRns {
		r, ok := mp.GetRow(rn)
		sl.Assert(ok, "Path: full row %d missing from pack", rn)
		rows[i] = r
	}
	return path.NewPath(rows)
}
