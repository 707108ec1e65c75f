// Package builder implements the path-pack builder (spec.md §4.6): a
// thread-safe accumulator that incrementally absorbs externally supplied
// rows, verifying each against what it already knows, and emits a Path
// or Pack on demand. State is three maps guarded by one mutex, in the
// teacher's nodeStoreBuffered style (cache map + a map of rows known
// only by reference, "fast path when empty", promote-on-add).
package builder

import (
	"sort"
	"sync"

	sl "github.com/skiplgr/skipledger"
	"github.com/skiplgr/skipledger/geom"
	"github.com/skiplgr/skipledger/pack"
	"github.com/skiplgr/skipledger/path"
	"github.com/skiplgr/skipledger/row"
	"github.com/skiplgr/skipledger/skiphash"
)

// Builder incrementally assembles a consistent bag of full rows from
// externally supplied Rows, Paths, or Packs, detecting any hash conflict
// or stitchability violation as it goes.
type Builder struct {
	mu sync.Mutex

	fullRns     []uint64 // ascending
	inputHashes map[uint64]sl.Hash
	refHashes   map[uint64]sl.Hash
	memoHashes  map[uint64]sl.Hash
}

var _ row.Bag = (*Builder)(nil)

// New returns an empty builder.
func New() *Builder {
	return &Builder{
		inputHashes: make(map[uint64]sl.Hash),
		refHashes:   make(map[uint64]sl.Hash),
		memoHashes:  make(map[uint64]sl.Hash),
	}
}

// InputHash implements row.Bag.
func (b *Builder) InputHash(rn uint64) (sl.Hash, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.inputHashes[rn]
	return h, ok
}

// RowHash implements row.Bag: row 0 is the sentinel; otherwise a known
// full row's memoized hash, or a known reference's hash.
func (b *Builder) RowHash(rn uint64) (sl.Hash, bool) {
	if rn == 0 {
		return skiphash.Sentinel(), true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if h, ok := b.memoHashes[rn]; ok {
		return h, true
	}
	if h, ok := b.refHashes[rn]; ok {
		return h, true
	}
	return sl.Hash{}, false
}

// FullRowNumbers implements row.Bag.
func (b *Builder) FullRowNumbers() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint64, len(b.fullRns))
	copy(out, b.fullRns)
	return out
}

// GetRow implements row.Bag: only full rows can be materialized.
func (b *Builder) GetRow(rn uint64) (row.Row, bool) {
	b.mu.Lock()
	_, ok := b.inputHashes[rn]
	b.mu.Unlock()
	if !ok {
		return nil, false
	}
	return row.NewFullLazyRow(b, rn), true
}

// GetFunnel implements row.Bag: the builder never retains condensed
// funnels, only full rows.
func (b *Builder) GetFunnel(rn uint64, level int) ([]sl.Hash, bool) { return nil, false }

// AddRow absorbs a single externally supplied row, verifying it against
// whatever the builder already knows, and returns the number of new
// hash entries recorded.
func (b *Builder) AddRow(r row.Row) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addRow(r, true)
}

func (b *Builder) addRow(r row.Row, validate bool) (int, error) {
	rn := r.No()
	ownHash, err := r.Hash()
	if err != nil {
		return 0, err
	}

	if existing, ok := b.memoHashes[rn]; ok {
		if existing != ownHash {
			return 0, sl.Errorf(sl.ErrHashConflict, rn, -1, "row %d already known with a different hash", rn)
		}
		return 0, nil
	}

	if validate {
		idx := sort.Search(len(b.fullRns), func(i int) bool { return b.fullRns[i] >= rn })
		atHighEnd := idx == len(b.fullRns)

		if len(b.fullRns) > 0 {
			if atHighEnd {
				hi := b.fullRns[len(b.fullRns)-1]
				if !geom.Linked(hi, rn) {
					return 0, sl.Errorf(sl.ErrNotLinked, rn, -1, "row %d not linked to current high row %d", rn, hi)
				}
				gotHiHash, ok, err := r.HashAt(hi)
				if err != nil {
					return 0, err
				}
				if !ok || gotHiHash != b.memoHashes[hi] {
					return 0, sl.Errorf(sl.ErrHashConflict, rn, -1, "row %d disagrees with known hash of row %d", rn, hi)
				}
			} else {
				refHash, ok := b.refHashes[rn]
				if !ok || refHash != ownHash {
					return 0, sl.Errorf(sl.ErrHashConflict, rn, -1, "row %d is not a recognized reference, or disagrees with it", rn)
				}
				if idx > 0 {
					below := b.fullRns[idx-1]
					if !geom.Linked(below, rn) {
						return 0, sl.Errorf(sl.ErrNotLinked, rn, -1, "row %d not linked to preceding row %d", rn, below)
					}
				}
			}
		}
	}

	lp, err := r.LevelsPointer()
	if err != nil {
		return 0, err
	}

	added := 0
	for _, refRn := range lp.Coverage() {
		if refRn == 0 {
			continue
		}
		h, ok := lp.RowHash(refRn)
		sl.Assert(ok, "addRow: levels pointer does not cover its own referenced row %d", refRn)

		if existingFull, isFull := b.memoHashes[refRn]; isFull {
			if existingFull != h {
				return 0, sl.Errorf(sl.ErrHashConflict, refRn, -1, "row %d disagrees with an already-known full row", refRn)
			}
			continue
		}
		if existingRef, ok := b.refHashes[refRn]; ok {
			if existingRef != h {
				return 0, sl.Errorf(sl.ErrHashConflict, refRn, -1, "row %d disagrees with an already-known reference", refRn)
			}
			continue
		}
		b.refHashes[refRn] = h
		added++
	}

	b.inputHashes[rn] = r.InputHash()
	b.memoHashes[rn] = ownHash
	delete(b.refHashes, rn)
	added++ // the input entry itself

	b.fullRns = insertSorted(b.fullRns, rn)
	return added, nil
}

// AddPath absorbs every row of p not already known to the builder. When
// the builder is empty, rows are added high-to-low with no redundant
// link checks (each already verifies against the ones below it);
// otherwise the union of existing and new row numbers must already be
// stitched, and the two must agree on the hash of their highest common
// row number. New rows above the builder's current high row are then
// appended low-to-high, each linked to the row before it; the remaining
// new rows are added high-to-low, each promoted from a reference
// recorded by a row above it.
func (b *Builder) AddPath(p *path.Path) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pathRns := p.RowNumbers()

	if len(b.fullRns) == 0 {
		added := 0
		for i := len(pathRns) - 1; i >= 0; i-- {
			r, ok := p.GetRowByNumber(pathRns[i])
			sl.Assert(ok, "AddPath: row %d missing from its own path", pathRns[i])
			n, err := b.addRow(r, false)
			if err != nil {
				return 0, err
			}
			added += n
		}
		return added, nil
	}

	union := sortedDedupMerge(b.fullRns, pathRns)
	if !equalUint64(geom.Stitch(union), union) {
		return 0, sl.Errorf(sl.ErrNotLinked, 0, -1,
			"path does not stitch with the builder's rows without introducing new row numbers")
	}

	if commonRn, ok := highestCommon(b.fullRns, pathRns); ok {
		mine := b.memoHashes[commonRn]
		theirs, err := p.GetRowHash(commonRn)
		if err != nil {
			return 0, err
		}
		if mine != theirs {
			return 0, sl.Errorf(sl.ErrHashConflict, commonRn, -1,
				"path disagrees with the builder on the hash of row %d", commonRn)
		}
	}

	unknown := setMinusSorted(pathRns, b.fullRns)
	hi := b.fullRns[len(b.fullRns)-1]
	split := sort.Search(len(unknown), func(i int) bool { return unknown[i] > hi })
	order := make([]uint64, 0, len(unknown))
	order = append(order, unknown[split:]...)
	for i := split - 1; i >= 0; i-- {
		order = append(order, unknown[i])
	}
	added := 0
	for _, rn := range order {
		r, ok := p.GetRowByNumber(rn)
		sl.Assert(ok, "AddPath: row %d missing from its own path", rn)
		n, err := b.addRow(r, true)
		if err != nil {
			return 0, err
		}
		added += n
	}
	return added, nil
}

// AddPack delegates to AddPath(pack.Path()).
func (b *Builder) AddPack(pk pack.Pack) (int, error) {
	p, err := pk.Path()
	if err != nil {
		return 0, err
	}
	return b.AddPath(p)
}

// Path assembles a validating Path from every full row the builder
// currently holds.
func (b *Builder) Path() (*path.Path, error) {
	b.mu.Lock()
	rns := make([]uint64, len(b.fullRns))
	copy(rns, b.fullRns)
	b.mu.Unlock()

	if len(rns) == 0 {
		return nil, sl.Errorf(sl.ErrInvalidArgument, 0, -1, "builder has no rows yet")
	}
	rows := make([]row.Row, len(rns))
	for i, rn := range rns {
		r, ok := b.GetRow(rn)
		sl.Assert(ok, "Path: full row %d missing from builder", rn)
		rows[i] = r
	}
	return path.NewPath(rows)
}

// Pack is Path() encoded as a PathPack.
func (b *Builder) Pack() (*pack.PathPack, error) {
	p, err := b.Path()
	if err != nil {
		return nil, err
	}
	return pack.FromPath(p)
}

func insertSorted(l []uint64, v uint64) []uint64 {
	idx := sort.Search(len(l), func(i int) bool { return l[i] >= v })
	l = append(l, 0)
	copy(l[idx+1:], l[idx:])
	l[idx] = v
	return l
}

func sortedDedupMerge(a, b []uint64) []uint64 {
	set := make(map[uint64]struct{}, len(a)+len(b))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := make([]uint64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func setMinusSorted(a, b []uint64) []uint64 {
	excl := make(map[uint64]struct{}, len(b))
	for _, v := range b {
		excl[v] = struct{}{}
	}
	out := make([]uint64, 0, len(a))
	for _, v := range a {
		if _, ok := excl[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}

func equalUint64(a, b []uint64) bool {
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

// highestCommon returns the largest value present in both ascending a
// and b.
func highestCommon(a, b []uint64) (uint64, bool) {
	i, j := len(a)-1, len(b)-1
	for i >= 0 && j >= 0 {
		switch {
		case a[i] == b[j]:
			return a[i], true
		case a[i] > b[j]:
			i--
		default:
			j--
		}
	}
	return 0, false
}
