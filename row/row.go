// Package row implements the abstract Row and Bag interfaces (spec.md
// §4.3): a Row is an input hash plus a levels pointer; a Bag is the
// storage-agnostic lookup surface that Path (package path) and Pack
// (package pack) are built on top of. Three concrete Row implementations
// are provided: LazyRow, which derives its levels pointer from Bag
// lookups on every call; StaticRow, which holds its input hash and levels
// pointer directly; and MemoRow, which wraps any Row and caches its
// Hash() after the first computation — mirroring the teacher's
// read-only-view-plus-caching-wrapper split (bufferedNode / nodeReadOnly).
package row

import (
	sl "github.com/skiplgr/skipledger"
	"github.com/skiplgr/skipledger/geom"
	"github.com/skiplgr/skipledger/levels"
	"github.com/skiplgr/skipledger/skiphash"
)

// Row is a single entry in the skip ledger: an input hash and the levels
// pointer committing to its skip-referenced predecessors.
type Row interface {
	// No is the row number.
	No() uint64
	// InputHash is the row's own opaque input hash.
	InputHash() sl.Hash
	// LevelsPointer is the row's full or condensed levels pointer.
	LevelsPointer() (*levels.Pointer, error)
	// Hash is H(InputHash() || LevelsPointer().Hash()).
	Hash() (sl.Hash, error)
	// PrevHash returns the hash at the given level, if retained.
	PrevHash(level int) (sl.Hash, bool, error)
	// IsCondensed reports whether the levels pointer is condensed.
	IsCondensed() (bool, error)
	// IsCompressed reports whether the row is always-all-levels or condensed.
	IsCompressed() (bool, error)
	// HasAllLevels reports whether every skip level is directly retained.
	HasAllLevels() (bool, error)
	// HashAt returns the hash of rn if it is within this row's coverage
	// (its own number or any row its levels pointer references).
	HashAt(rn uint64) (sl.Hash, bool, error)
}

// Bag is the generic, storage-agnostic interface consumed by Path and
// Pack: a pool of rows and the hashes they collectively know.
type Bag interface {
	// InputHash returns the input hash of rn, required for every full row
	// the bag owns.
	InputHash(rn uint64) (sl.Hash, bool)
	// RowHash returns the hash of rn; required for every rn in the
	// coverage of the bag's full rows. rn==0 must return the sentinel.
	RowHash(rn uint64) (sl.Hash, bool)
	// FullRowNumbers is the ascending list of rns the bag holds as full rows.
	FullRowNumbers() []uint64
	// GetRow returns a Row view of rn backed by this bag.
	GetRow(rn uint64) (Row, bool)
	// GetFunnel returns the funnel for rn's condensed level, present only
	// for bags backed by a condensed pack.
	GetFunnel(rn uint64, level int) ([]sl.Hash, bool)
}

// LazyRow is a Row view backed by a Bag: it recomputes its levels
// pointer (and consequently its own hash) from Bag lookups on every call
// rather than storing anything beyond the row number and, for a
// condensed row, the single retained level.
type LazyRow struct {
	bag   Bag
	rn    uint64
	level int // -1 for full; the retained level for condensed
}

var _ Row = (*LazyRow)(nil)

// NewFullLazyRow returns a Row whose levels pointer is reconstructed in
// full form from bag.RowHash lookups at every skip level.
func NewFullLazyRow(bag Bag, rn uint64) *LazyRow {
	return &LazyRow{bag: bag, rn: rn, level: -1}
}

// NewCondensedLazyRow returns a Row whose levels pointer is reconstructed
// in condensed form: a single level hash plus a funnel, both pulled from
// the bag.
func NewCondensedLazyRow(bag Bag, rn uint64, level int) *LazyRow {
	return &LazyRow{bag: bag, rn: rn, level: level}
}

func (r *LazyRow) No() uint64 { return r.rn }

func (r *LazyRow) InputHash() sl.Hash {
	h, ok := r.bag.InputHash(r.rn)
	sl.Assert(ok, "LazyRow: bag has no input hash for row %d", r.rn)
	return h
}

// LevelsPointer derives the pointer from the bag: for a full row, one
// RowHash lookup per skip level; for a condensed row, the retained
// level's hash plus its funnel.
func (r *LazyRow) LevelsPointer() (*levels.Pointer, error) {
	if r.level >= 0 {
		refRn := r.rn - (uint64(1) << uint(r.level))
		levelHash, ok := r.bag.RowHash(refRn)
		if !ok {
			return nil, sl.Errorf(sl.ErrNotFound, r.rn, r.level, "bag missing hash for referenced row %d", refRn)
		}
		funnel, ok := r.bag.GetFunnel(r.rn, r.level)
		if !ok {
			return nil, sl.Errorf(sl.ErrNotFound, r.rn, r.level, "bag has no funnel for condensed row")
		}
		return levels.NewCondensed(r.rn, r.level, levelHash, funnel)
	}

	sc := geom.SkipCount(r.rn)
	hashes := make([]sl.Hash, sc)
	for level := 0; level < sc; level++ {
		refRn := r.rn - (uint64(1) << uint(level))
		h, ok := r.bag.RowHash(refRn)
		if !ok {
			return nil, sl.Errorf(sl.ErrNotFound, r.rn, level, "bag missing hash for referenced row %d", refRn)
		}
		hashes[levels.ArrIndex(sc, level)] = h
	}
	return levels.NewFull(r.rn, hashes)
}

func (r *LazyRow) Hash() (sl.Hash, error) {
	lp, err := r.LevelsPointer()
	if err != nil {
		return sl.Hash{}, err
	}
	return skiphash.RowHash(r.InputHash(), lp.Hash()), nil
}

func (r *LazyRow) PrevHash(level int) (sl.Hash, bool, error) {
	lp, err := r.LevelsPointer()
	if err != nil {
		return sl.Hash{}, false, err
	}
	h, ok := lp.LevelHash(level)
	return h, ok, nil
}

func (r *LazyRow) IsCondensed() (bool, error) {
	lp, err := r.LevelsPointer()
	if err != nil {
		return false, err
	}
	return lp.IsCondensed(), nil
}

func (r *LazyRow) IsCompressed() (bool, error) {
	if !geom.IsCondensable(r.rn) {
		return true, nil
	}
	return r.IsCondensed()
}

func (r *LazyRow) HasAllLevels() (bool, error) {
	cond, err := r.IsCondensed()
	if err != nil {
		return false, err
	}
	return !cond, nil
}

func (r *LazyRow) HashAt(rn uint64) (sl.Hash, bool, error) {
	if rn == r.rn {
		h, err := r.Hash()
		return h, err == nil, err
	}
	lp, err := r.LevelsPointer()
	if err != nil {
		return sl.Hash{}, false, err
	}
	h, ok := lp.RowHash(rn)
	return h, ok, nil
}

// StaticRow is a Row with its input hash and levels pointer fully in
// hand; no Bag lookups are ever performed. Path.Compress uses it for the
// rows it condenses.
type StaticRow struct {
	rn        uint64
	inputHash sl.Hash
	lp        *levels.Pointer
	hash      sl.Hash
}

var _ Row = (*StaticRow)(nil)

// NewStaticRow builds a row from an already-computed levels pointer.
func NewStaticRow(rn uint64, inputHash sl.Hash, lp *levels.Pointer) (*StaticRow, error) {
	if lp.RowNo() != rn {
		return nil, sl.Errorf(sl.ErrInvalidArgument, rn, -1, "levels pointer belongs to row %d, not %d", lp.RowNo(), rn)
	}
	return &StaticRow{
		rn:        rn,
		inputHash: inputHash,
		lp:        lp,
		hash:      skiphash.RowHash(inputHash, lp.Hash()),
	}, nil
}

func (r *StaticRow) No() uint64                      { return r.rn }
func (r *StaticRow) InputHash() sl.Hash               { return r.inputHash }
func (r *StaticRow) LevelsPointer() (*levels.Pointer, error) { return r.lp, nil }
func (r *StaticRow) Hash() (sl.Hash, error)           { return r.hash, nil }

func (r *StaticRow) PrevHash(level int) (sl.Hash, bool, error) {
	h, ok := r.lp.LevelHash(level)
	return h, ok, nil
}

func (r *StaticRow) IsCondensed() (bool, error) { return r.lp.IsCondensed(), nil }

func (r *StaticRow) IsCompressed() (bool, error) {
	if !geom.IsCondensable(r.rn) {
		return true, nil
	}
	return r.lp.IsCondensed(), nil
}

func (r *StaticRow) HasAllLevels() (bool, error) { return !r.lp.IsCondensed(), nil }

func (r *StaticRow) HashAt(rn uint64) (sl.Hash, bool, error) {
	if rn == r.rn {
		return r.hash, true, nil
	}
	h, ok := r.lp.RowHash(rn)
	return h, ok, nil
}

// MemoRow wraps any Row and caches its Hash() and LevelsPointer() after
// the first successful computation, so a path built from lazy rows pays
// the Bag-lookup cost at most once per row.
type MemoRow struct {
	inner     Row
	hashed    bool
	hash      sl.Hash
	hashErr   error
	lp        *levels.Pointer
	lpErr     error
	lpFetched bool
}

var _ Row = (*MemoRow)(nil)

// NewMemoRow wraps inner with a one-time hash/pointer cache.
func NewMemoRow(inner Row) *MemoRow {
	return &MemoRow{inner: inner}
}

func (r *MemoRow) No() uint64 { return r.inner.No() }

func (r *MemoRow) InputHash() sl.Hash { return r.inner.InputHash() }

func (r *MemoRow) LevelsPointer() (*levels.Pointer, error) {
	if !r.lpFetched {
		r.lp, r.lpErr = r.inner.LevelsPointer()
		r.lpFetched = true
	}
	return r.lp, r.lpErr
}

func (r *MemoRow) Hash() (sl.Hash, error) {
	if !r.hashed {
		r.hash, r.hashErr = r.inner.Hash()
		r.hashed = true
	}
	return r.hash, r.hashErr
}

func (r *MemoRow) PrevHash(level int) (sl.Hash, bool, error) {
	lp, err := r.LevelsPointer()
	if err != nil {
		return sl.Hash{}, false, err
	}
	h, ok := lp.LevelHash(level)
	return h, ok, nil
}

func (r *MemoRow) IsCondensed() (bool, error) {
	lp, err := r.LevelsPointer()
	if err != nil {
		return false, err
	}
	return lp.IsCondensed(), nil
}

func (r *MemoRow) IsCompressed() (bool, error) {
	if !geom.IsCondensable(r.No()) {
		return true, nil
	}
	return r.IsCondensed()
}

func (r *MemoRow) HasAllLevels() (bool, error) {
	cond, err := r.IsCondensed()
	if err != nil {
		return false, err
	}
	return !cond, nil
}

func (r *MemoRow) HashAt(rn uint64) (sl.Hash, bool, error) {
	if rn == r.No() {
		h, err := r.Hash()
		return h, err == nil, err
	}
	lp, err := r.LevelsPointer()
	if err != nil {
		return sl.Hash{}, false, err
	}
	h, ok := lp.RowHash(rn)
	return h, ok, nil
}
