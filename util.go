// Package skipledger implements the core algebra of an append-only,
// tamper-evident skip ledger. This file holds the Hash type, Concat, and
// the binary read/write helpers that pack uses for its wire format.
package skipledger

import (
	"encoding/binary"
	"io"
)

// Hash is a fixed-width W-byte digest. The zero Hash is the sentinel
// hash assigned to the virtual row 0.
type Hash [W]byte

// IsSentinel reports whether h is the all-zero sentinel hash.
func (h Hash) IsSentinel() bool {
	return h == Hash{}
}

// Concat concatenates the byte representations of its arguments.
func Concat(parts ...interface{}) []byte {
	size := 0
	for _, p := range parts {
		switch p := p.(type) {
		case []byte:
			size += len(p)
		case Hash:
			size += len(p)
		case byte:
			size++
		case string:
			size += len(p)
		default:
			Assert(false, "Concat: unsupported type %T", p)
		}
	}
	buf := make([]byte, 0, size)
	for _, p := range parts {
		switch p := p.(type) {
		case []byte:
			buf = append(buf, p...)
		case Hash:
			buf = append(buf, p[:]...)
		case byte:
			buf = append(buf, p)
		case string:
			buf = append(buf, p...)
		}
	}
	return buf
}

// WriteInt32 writes a big-endian int32, matching the pack header format (§6).
func WriteInt32(w io.Writer, v int32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	_, err := w.Write(b[:])
	return err
}

// ReadInt32 reads a big-endian int32.
func ReadInt32(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

// WriteInt64 writes a big-endian int64.
func WriteInt64(w io.Writer, v int64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	_, err := w.Write(b[:])
	return err
}

// ReadInt64 reads a big-endian int64.
func ReadInt64(r io.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

// WriteHash writes a single W-byte hash.
func WriteHash(w io.Writer, h Hash) error {
	_, err := w.Write(h[:])
	return err
}

// ReadHash reads a single W-byte hash.
func ReadHash(r io.Reader) (Hash, error) {
	var h Hash
	_, err := io.ReadFull(r, h[:])
	return h, err
}
