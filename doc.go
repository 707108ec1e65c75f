// Package skipledger implements the core algebra of an append-only,
// tamper-evident skip ledger: row numbering and skip-pointer geometry,
// the row-hash commitment scheme (including the Merkle funnel that
// allows condensed row hashes), path construction/validation, path
// combinators, and pack serialization.
//
// The heavy lifting lives in sub-packages (geom, skiphash, levels,
// row, path, pack, builder, store, ledger); this package holds the
// handful of primitives shared by all of them: the domain error type,
// binary read/write helpers, the W constant, and the Hash type, whose
// zero value is the sentinel hash.
package skipledger

// W is the fixed width, in bytes, of every hash in the ledger.
const W = 32
