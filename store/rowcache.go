package store

import (
	"encoding/binary"
	"math/bits"
	"sync"

	"golang.org/x/crypto/blake2b"

	sl "github.com/skiplgr/skipledger"
)

// DefaultRowCacheLevel is a typical tree depth (L): 2^10-1 ≈ 1023 rows.
const DefaultRowCacheLevel = 10

// MaxRowCacheLevel is the largest supported tree depth: 2^22-1 ≈ 4M rows.
const MaxRowCacheLevel = 22

const overflowSlots = 256

type rowEntry struct {
	rn   uint64
	hash sl.Hash
}

// RowCache is the bounded binary-tree row cache of spec.md §4.7: row 1
// and the most recently observed last row each get a dedicated slot,
// rows with enough trailing zero bits are candidates for a fixed-depth
// tree addressed by row number, and everything else falls through to a
// small direct-mapped overflow cache keyed by a non-cryptographic
// bucketing hash (mirrors the teacher's reach for blake2b over
// hash/fnv for internal indexing, common.Blake2b160).
type RowCache struct {
	level    int // L
	minLevel int
	capacity int // 2^level - 1

	rowOneMu sync.Mutex
	rowOne   *rowEntry

	lastRowMu sync.Mutex
	lastRow   *rowEntry

	treeMu  sync.Mutex
	tree    []rowEntry
	present []bool
	m       int // current maximum tree level in use

	overflow overflowCache
}

// NewRowCache builds a cache of the given tree depth; rows whose
// trailing_zero_bits is below minLevel never enter the tree (they may
// still land in the overflow cache).
func NewRowCache(level, minLevel int) *RowCache {
	sl.Assert(level >= 1 && level <= MaxRowCacheLevel, "NewRowCache: level %d out of range [1,%d]", level, MaxRowCacheLevel)
	sl.Assert(minLevel >= 0, "NewRowCache: minLevel must be >= 0, got %d", minLevel)
	capacity := (1 << uint(level)) - 1
	return &RowCache{
		level:    level,
		minLevel: minLevel,
		capacity: capacity,
		tree:     make([]rowEntry, capacity),
		present:  make([]bool, capacity),
	}
}

func depthStart(depth int) int { return (1 << uint(depth)) - 1 }

// PutRowOne caches row 1's hash, which lies on every state path.
func (c *RowCache) PutRowOne(hash sl.Hash) {
	c.rowOneMu.Lock()
	c.rowOne = &rowEntry{rn: 1, hash: hash}
	c.rowOneMu.Unlock()
}

// SetLastRow caches the most recently observed last row, which
// terminates every fresh state path.
func (c *RowCache) SetLastRow(rn uint64, hash sl.Hash) {
	c.lastRowMu.Lock()
	c.lastRow = &rowEntry{rn: rn, hash: hash}
	c.lastRowMu.Unlock()
}

// index computes the serial index of rn's level within a tree snapshot
// of maximum level m: depth = m - level, serial = depthStart(depth) +
// ((rn>>level) - 1). Out-of-range results report ok=false (a miss, not
// an error — spec.md §4.7).
func (c *RowCache) index(rn uint64, level, m int) (int, bool) {
	if level > m {
		return 0, false
	}
	depth := m - level
	if depth >= c.level {
		return 0, false
	}
	shifted := rn >> uint(level)
	if shifted == 0 {
		return 0, false
	}
	idx := depthStart(depth) + int(shifted-1)
	if idx < 0 || idx >= c.capacity {
		return 0, false
	}
	return idx, true
}

// Put offers (rn, hash) to the cache: row 1 always takes its dedicated
// slot; rows with enough trailing zero bits are optimistically placed
// in the tree, possibly raising its current maximum level; every row is
// also offered to the overflow cache as a best-effort catch-all.
func (c *RowCache) Put(rn uint64, hash sl.Hash) {
	if rn == 0 {
		return
	}
	if rn == 1 {
		c.PutRowOne(hash)
	}
	c.overflow.put(rn, hash)

	level := bits.TrailingZeros64(rn)
	if level < c.minLevel {
		return
	}

	c.treeMu.Lock()
	defer c.treeMu.Unlock()
	if level > c.m {
		if level >= c.level {
			c.m = c.level - 1
		} else {
			c.m = level
		}
	}
	idx, ok := c.index(rn, level, c.m)
	if !ok {
		return
	}
	c.tree[idx] = rowEntry{rn: rn, hash: hash}
	c.present[idx] = true
}

// Get looks up rn's cached hash, trying row-one, last-row, the tree, and
// finally the overflow cache, in that order.
func (c *RowCache) Get(rn uint64) (sl.Hash, bool) {
	if rn == 1 {
		c.rowOneMu.Lock()
		e := c.rowOne
		c.rowOneMu.Unlock()
		if e != nil && e.rn == rn {
			return e.hash, true
		}
	}

	c.lastRowMu.Lock()
	last := c.lastRow
	c.lastRowMu.Unlock()
	if last != nil && last.rn == rn {
		return last.hash, true
	}

	if rn > 0 {
		level := bits.TrailingZeros64(rn)
		if level >= c.minLevel {
			c.treeMu.Lock()
			idx, ok := c.index(rn, level, c.m)
			var entry rowEntry
			var present bool
			if ok {
				entry, present = c.tree[idx], c.present[idx]
			}
			c.treeMu.Unlock()
			if ok && present && entry.rn == rn {
				return entry.hash, true
			}
		}
	}

	return c.overflow.get(rn)
}

// overflowCache is a fixed-size direct-mapped cache keyed by a
// non-cryptographic blake2b bucketing hash of the row number.
type overflowCache struct {
	mu      sync.Mutex
	slots   [overflowSlots]rowEntry
	present [overflowSlots]bool
}

func fastHash(rn uint64) uint64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], rn)
	sum := blake2b.Sum256(buf[:])
	return binary.BigEndian.Uint64(sum[:8])
}

func (o *overflowCache) put(rn uint64, hash sl.Hash) {
	idx := fastHash(rn) % overflowSlots
	o.mu.Lock()
	o.slots[idx] = rowEntry{rn: rn, hash: hash}
	o.present[idx] = true
	o.mu.Unlock()
}

func (o *overflowCache) get(rn uint64) (sl.Hash, bool) {
	idx := fastHash(rn) % overflowSlots
	o.mu.Lock()
	e, ok := o.slots[idx], o.present[idx]
	o.mu.Unlock()
	if !ok || e.rn != rn {
		return sl.Hash{}, false
	}
	return e.hash, true
}
