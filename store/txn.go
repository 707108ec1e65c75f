package store

import (
	sl "github.com/skiplgr/skipledger"
)

// TxnTable is a read-through transaction view over a primary Table: reads
// at or above a snapshot size are served from a private pending buffer,
// letting a multi-row append compute later rows' hash pointers against
// earlier rows in the same uncommitted batch. Used by one writer thread
// only (spec.md §5).
type TxnTable struct {
	primary      Table
	snapshotSize int
	pending      []byte // rows snapshotSize, snapshotSize+1, ...
}

// NewTxnTable opens a transaction view against primary's current size.
func NewTxnTable(primary Table) *TxnTable {
	return &TxnTable{primary: primary, snapshotSize: primary.Size()}
}

// Size is the snapshot size plus however many rows are pending.
func (t *TxnTable) Size() int {
	return t.snapshotSize + len(t.pending)/rowWidth
}

// ReadRow reads through to the primary below the snapshot size, or from
// the pending buffer at or above it.
func (t *TxnTable) ReadRow(index int) ([]byte, error) {
	if index < t.snapshotSize {
		return t.primary.ReadRow(index)
	}
	offset := index - t.snapshotSize
	size := len(t.pending) / rowWidth
	if offset < 0 || offset >= size {
		return nil, sl.Errorf(sl.ErrOutOfBounds, uint64(index), -1, "row index %d out of range [0,%d)", index, t.Size())
	}
	row := make([]byte, rowWidth)
	copy(row, t.pending[offset*rowWidth:(offset+1)*rowWidth])
	return row, nil
}

// WriteRows appends to the pending buffer; startIndex must equal the
// view's current (snapshot + pending) size.
func (t *TxnTable) WriteRows(block []byte, startIndex int) (int, error) {
	if len(block) == 0 || len(block)%rowWidth != 0 {
		return 0, sl.Errorf(sl.ErrInvalidArgument, 0, -1, "block length %d is not a positive multiple of %d", len(block), rowWidth)
	}
	if startIndex != t.Size() {
		return 0, sl.Errorf(sl.ErrInvalidArgument, uint64(startIndex), -1,
			"startIndex %d does not match current view size %d", startIndex, t.Size())
	}
	t.pending = append(t.pending, block...)
	return t.Size(), nil
}

// TrimSize is unsupported on a transaction view: trimming belongs to the
// committed primary, not an in-flight batch.
func (t *TxnTable) TrimSize(newSize int) error {
	return sl.Errorf(sl.ErrUnsupported, uint64(newSize), -1, "TrimSize is not supported on a transaction view")
}

func (t *TxnTable) Close() error { return nil }

// Commit flushes the pending buffer to the primary in a single WriteRows
// call, the transaction's single linearization point (spec.md §5), and
// resets the view onto the new snapshot.
func (t *TxnTable) Commit() (int, error) {
	if len(t.pending) == 0 {
		return t.primary.Size(), nil
	}
	newSize, err := t.primary.WriteRows(t.pending, t.snapshotSize)
	if err != nil {
		return 0, err
	}
	t.snapshotSize = newSize
	t.pending = nil
	return newSize, nil
}

var _ Table = (*TxnTable)(nil)
