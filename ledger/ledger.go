// Package ledger implements the append-only ledger engine (spec.md
// §4.7): CompactSkipLedger wires a store.Table plus an optional bounded
// store.RowCache into the row.Bag surface that path construction is
// built on, so GetRow returns a lazy row deriving its levels pointer
// from table/cache lookups, exactly as the teacher's read-only trie
// view derives nodes from its backing KVReader.
package ledger

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	sl "github.com/skiplgr/skipledger"
	"github.com/skiplgr/skipledger/geom"
	"github.com/skiplgr/skipledger/levels"
	"github.com/skiplgr/skipledger/path"
	"github.com/skiplgr/skipledger/row"
	"github.com/skiplgr/skipledger/skiphash"
	"github.com/skiplgr/skipledger/store"
)

// Ledger is the CompactSkipLedger engine.
type Ledger struct {
	table store.Table
	cache *store.RowCache
	log   zerolog.Logger
}

var _ row.Bag = (*Ledger)(nil)

// New wires a Ledger onto table, optionally backed by cache (nil disables
// caching).
func New(table store.Table, cache *store.RowCache) *Ledger {
	return &Ledger{
		table: table,
		cache: cache,
		log:   log.With().Str("component", "ledger").Logger(),
	}
}

// Size is the number of committed rows.
func (l *Ledger) Size() int { return l.table.Size() }

// InputHash implements row.Bag.
func (l *Ledger) InputHash(rn uint64) (sl.Hash, bool) {
	if rn == 0 || rn > uint64(l.Size()) {
		return sl.Hash{}, false
	}
	block, err := l.table.ReadRow(int(rn) - 1)
	if err != nil {
		return sl.Hash{}, false
	}
	var h sl.Hash
	copy(h[:], block[:sl.W])
	return h, true
}

// RowHash implements row.Bag: rn==0 is the sentinel; otherwise the cache
// is consulted first, falling back to the table and populating the
// cache on a hit.
func (l *Ledger) RowHash(rn uint64) (sl.Hash, bool) {
	if rn == 0 {
		return skiphash.Sentinel(), true
	}
	if l.cache != nil {
		if h, ok := l.cache.Get(rn); ok {
			return h, true
		}
	}
	if rn > uint64(l.Size()) {
		return sl.Hash{}, false
	}
	block, err := l.table.ReadRow(int(rn) - 1)
	if err != nil {
		return sl.Hash{}, false
	}
	var h sl.Hash
	copy(h[:], block[sl.W:])
	if l.cache != nil {
		l.cache.Put(rn, h)
	}
	return h, true
}

// FullRowNumbers implements row.Bag.
func (l *Ledger) FullRowNumbers() []uint64 {
	n := l.Size()
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = uint64(i + 1)
	}
	return out
}

// GetFunnel implements row.Bag: the ledger only ever stores full rows.
func (l *Ledger) GetFunnel(rn uint64, level int) ([]sl.Hash, bool) { return nil, false }

// GetRow implements row.Bag.
func (l *Ledger) GetRow(rn uint64) (row.Row, bool) {
	if rn == 0 || rn > uint64(l.Size()) {
		return nil, false
	}
	return row.NewFullLazyRow(l, rn), true
}

// AppendRows commits one or more new rows from a byte block whose length
// is a positive multiple of W (spec.md §4.7 appendRows). A single row
// is written directly; a batch opens a TxnTable snapshot so each row's
// skip levels can reference rows written earlier in the same batch.
func (l *Ledger) AppendRows(inputHashes []byte) (int, error) {
	if len(inputHashes) == 0 || len(inputHashes)%sl.W != 0 {
		return 0, sl.Errorf(sl.ErrInvalidArgument, 0, -1,
			"appendRows: input length %d is not a positive multiple of %d", len(inputHashes), sl.W)
	}
	count := len(inputHashes) / sl.W
	startRn := uint64(l.Size()) + 1

	if count == 1 {
		var input sl.Hash
		copy(input[:], inputHashes)
		rn := startRn
		rowHash, err := l.computeRowHash(rn, input, l.RowHash)
		if err != nil {
			return 0, err
		}
		newSize, err := l.table.WriteRows(packRow(input, rowHash), l.Size())
		if err != nil {
			return 0, err
		}
		l.cacheRow(rn, rowHash)
		return newSize, nil
	}

	txn := store.NewTxnTable(l.table)
	var lastRn uint64
	var lastHash sl.Hash
	for i := 0; i < count; i++ {
		var input sl.Hash
		copy(input[:], inputHashes[i*sl.W:(i+1)*sl.W])
		rn := startRn + uint64(i)
		rh, err := l.computeRowHash(rn, input, func(refRn uint64) (sl.Hash, bool) { return rowHashFromTable(txn, refRn) })
		if err != nil {
			return 0, err
		}
		if _, err := txn.WriteRows(packRow(input, rh), txn.Size()); err != nil {
			return 0, err
		}
		lastRn, lastHash = rn, rh
	}
	newSize, err := txn.Commit()
	if err != nil {
		return 0, err
	}
	l.cacheRow(lastRn, lastHash)
	l.log.Debug().Uint64("lastRn", lastRn).Int("size", newSize).Msg("committed append batch")
	return newSize, nil
}

func (l *Ledger) computeRowHash(rn uint64, input sl.Hash, lookup func(uint64) (sl.Hash, bool)) (sl.Hash, error) {
	sc := geom.SkipCount(rn)
	hashes := make([]sl.Hash, sc)
	for level := 0; level < sc; level++ {
		refRn := rn - (uint64(1) << uint(level))
		h, ok := lookup(refRn)
		if !ok {
			return sl.Hash{}, sl.Errorf(sl.ErrNotFound, rn, level, "missing hash for referenced row %d", refRn)
		}
		hashes[levels.ArrIndex(sc, level)] = h
	}
	lp, err := levels.NewFull(rn, hashes)
	if err != nil {
		return sl.Hash{}, err
	}
	return skiphash.RowHash(input, lp.Hash()), nil
}

func (l *Ledger) cacheRow(rn uint64, hash sl.Hash) {
	if l.cache == nil {
		return
	}
	l.cache.SetLastRow(rn, hash)
	l.cache.Put(rn, hash)
}

func packRow(input, rowHash sl.Hash) []byte {
	block := make([]byte, 2*sl.W)
	copy(block[:sl.W], input[:])
	copy(block[sl.W:], rowHash[:])
	return block
}

func rowHashFromTable(t store.Table, rn uint64) (sl.Hash, bool) {
	if rn == 0 {
		return skiphash.Sentinel(), true
	}
	if rn > uint64(t.Size()) {
		return sl.Hash{}, false
	}
	block, err := t.ReadRow(int(rn) - 1)
	if err != nil {
		return sl.Hash{}, false
	}
	var h sl.Hash
	copy(h[:], block[sl.W:])
	return h, true
}

// TrimSize truncates the ledger in place; 1 <= newSize <= Size().
func (l *Ledger) TrimSize(newSize int) error {
	if err := l.table.TrimSize(newSize); err != nil {
		return err
	}
	l.log.Debug().Int("newSize", newSize).Msg("ledger trimmed")
	return nil
}

func (l *Ledger) getRows(rns []uint64) ([]row.Row, error) {
	rows := make([]row.Row, len(rns))
	for i, rn := range rns {
		r, ok := l.GetRow(rn)
		if !ok {
			return nil, sl.Errorf(sl.ErrOutOfBounds, rn, -1, "row %d does not exist (size=%d)", rn, l.Size())
		}
		rows[i] = r
	}
	return rows, nil
}

// GetPath returns the validating Path built from the stitched closure of
// targets.
func (l *Ledger) GetPath(targets []uint64) (*path.Path, error) {
	rows, err := l.getRows(geom.Stitch(targets))
	if err != nil {
		return nil, err
	}
	return path.NewPath(rows)
}

// SkipPath returns the Path built from the skip-path row numbers between
// lo and hi.
func (l *Ledger) SkipPath(lo, hi uint64) (*path.Path, error) {
	rows, err := l.getRows(geom.SkipPathNumbers(lo, hi))
	if err != nil {
		return nil, err
	}
	return path.NewPath(rows)
}

// StatePath is SkipPath(1, Size()); an empty ledger returns (nil, nil).
func (l *Ledger) StatePath() (*path.Path, error) {
	size := l.Size()
	if size == 0 {
		return nil, nil
	}
	return l.SkipPath(1, uint64(size))
}

// StateHash is the hash of the last row, or the sentinel if empty.
func (l *Ledger) StateHash() (sl.Hash, error) {
	size := l.Size()
	if size == 0 {
		return skiphash.Sentinel(), nil
	}
	h, ok := l.RowHash(uint64(size))
	if !ok {
		return sl.Hash{}, sl.Errorf(sl.ErrOutOfBounds, uint64(size), -1, "state row %d missing", size)
	}
	return h, nil
}
