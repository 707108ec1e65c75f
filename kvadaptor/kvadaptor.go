// Package kvadaptor adapts a github.com/iotaledger/hive.go/core/kvstore
// KVStore into a store.Table, so a ledger can be backed by any of
// hive.go's storage engines (badger, mapdb, ...) instead of an
// in-memory MemTable. Grounded on hive_adaptor/hiveadaptor.go's
// HiveKVStoreAdaptor: same prefix-partitioning and batched-mutation
// discipline, adapted from a panic-on-error KVStore contract (the
// teacher's own trie.KVStore has no error returns at all) to the
// explicit error returns store.Table requires.
package kvadaptor

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/iotaledger/hive.go/core/kvstore"

	sl "github.com/skiplgr/skipledger"
	"github.com/skiplgr/skipledger/store"
)

const rowWidth = 2 * sl.W

const (
	rowKeyTag  byte = 'r'
	sizeKeyTag byte = 's'
)

// KVTable is a store.Table backed by a partition of a hive.go KVStore.
// Rows are keyed by big-endian index under prefix‖'r'; the current size
// is tracked at prefix‖'s' and updated atomically with every batch.
type KVTable struct {
	kvs    kvstore.KVStore
	prefix []byte

	mu   sync.Mutex
	size int
}

var _ store.Table = (*KVTable)(nil)

// NewKVTable opens (or initializes) a table over the given prefix of
// kvs, recovering its size from the stored size key.
func NewKVTable(kvs kvstore.KVStore, prefix []byte) (*KVTable, error) {
	t := &KVTable{kvs: kvs, prefix: append([]byte(nil), prefix...)}
	v, err := kvs.Get(t.sizeKey())
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return t, nil
		}
		return nil, err
	}
	t.size = int(binary.BigEndian.Uint64(v))
	return t, nil
}

func (t *KVTable) rowKey(index int) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(index))
	return sl.Concat(t.prefix, rowKeyTag, buf[:])
}

func (t *KVTable) sizeKey() []byte {
	return sl.Concat(t.prefix, sizeKeyTag)
}

// Size returns the current row count.
func (t *KVTable) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// ReadRow returns the 2W-byte row at index.
func (t *KVTable) ReadRow(index int) ([]byte, error) {
	t.mu.Lock()
	size := t.size
	t.mu.Unlock()
	if index < 0 || index >= size {
		return nil, sl.Errorf(sl.ErrOutOfBounds, uint64(index), -1, "row index %d out of range [0,%d)", index, size)
	}
	v, err := t.kvs.Get(t.rowKey(index))
	if err != nil {
		return nil, err
	}
	if len(v) != rowWidth {
		return nil, sl.Errorf(sl.ErrByteFormat, uint64(index), -1, "stored row %d has width %d, want %d", index, len(v), rowWidth)
	}
	out := make([]byte, rowWidth)
	copy(out, v)
	return out, nil
}

// WriteRows appends block, a positive multiple of 2W bytes, in a single
// batched mutation covering every new row plus the updated size key.
func (t *KVTable) WriteRows(block []byte, startIndex int) (int, error) {
	if len(block) == 0 || len(block)%rowWidth != 0 {
		return 0, sl.Errorf(sl.ErrInvalidArgument, 0, -1, "block length %d is not a positive multiple of %d", len(block), rowWidth)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if startIndex != t.size {
		return 0, sl.Errorf(sl.ErrInvalidArgument, uint64(startIndex), -1,
			"startIndex %d does not match current size %d", startIndex, t.size)
	}

	batch, err := t.kvs.Batched()
	if err != nil {
		return 0, err
	}
	count := len(block) / rowWidth
	for i := 0; i < count; i++ {
		row := block[i*rowWidth : (i+1)*rowWidth]
		if err := batch.Set(t.rowKey(startIndex+i), row); err != nil {
			return 0, err
		}
	}
	newSize := startIndex + count
	var sizeBuf [8]byte
	binary.BigEndian.PutUint64(sizeBuf[:], uint64(newSize))
	if err := batch.Set(t.sizeKey(), sizeBuf[:]); err != nil {
		return 0, err
	}
	if err := batch.Commit(); err != nil {
		return 0, err
	}
	if err := t.kvs.Flush(); err != nil {
		return 0, err
	}

	t.size = newSize
	return newSize, nil
}

// TrimSize truncates the table in place, deleting every row at or above
// newSize in the same batch that updates the size key.
func (t *KVTable) TrimSize(newSize int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if newSize < 1 || newSize > t.size {
		return sl.Errorf(sl.ErrInvalidArgument, uint64(newSize), -1, "trimSize %d out of range [1,%d]", newSize, t.size)
	}

	batch, err := t.kvs.Batched()
	if err != nil {
		return err
	}
	for i := newSize; i < t.size; i++ {
		if err := batch.Delete(t.rowKey(i)); err != nil {
			return err
		}
	}
	var sizeBuf [8]byte
	binary.BigEndian.PutUint64(sizeBuf[:], uint64(newSize))
	if err := batch.Set(t.sizeKey(), sizeBuf[:]); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	if err := t.kvs.Flush(); err != nil {
		return err
	}

	t.size = newSize
	return nil
}

// Close is a no-op: the underlying KVStore's lifecycle is owned by its
// caller, not this adaptor.
func (t *KVTable) Close() error { return nil }
