// Package bcs writes the subset of Binary Canonical Serialization needed to
// build travel-rule signing messages: ULEB128 lengths and enum tags,
// little-endian integers, fixed byte arrays, strings and options.
package bcs

import (
	"bytes"
	"encoding/binary"

	leb128 "github.com/filecoin-project/go-leb128"
)

// Encoder accumulates BCS bytes. The zero value is ready to use.
type Encoder struct {
	buf bytes.Buffer
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte {
	return append([]byte(nil), e.buf.Bytes()...)
}

// Uleb128 writes an unsigned LEB128 value (lengths, enum variant tags).
func (e *Encoder) Uleb128(n uint64) *Encoder {
	e.buf.Write(leb128.FromUInt64(n))
	return e
}

// Variant writes an enum variant index.
func (e *Encoder) Variant(index uint64) *Encoder {
	return e.Uleb128(index)
}

// U64 writes a little-endian u64.
func (e *Encoder) U64(n uint64) *Encoder {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], n)
	e.buf.Write(b[:])
	return e
}

// Bool writes a single byte 0 or 1.
func (e *Encoder) Bool(v bool) *Encoder {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
	return e
}

// Fixed writes bytes with no length prefix (fixed-size arrays).
func (e *Encoder) Fixed(b []byte) *Encoder {
	e.buf.Write(b)
	return e
}

// VarBytes writes a length-prefixed byte sequence.
func (e *Encoder) VarBytes(b []byte) *Encoder {
	e.Uleb128(uint64(len(b)))
	e.buf.Write(b)
	return e
}

// String writes a length-prefixed UTF-8 string.
func (e *Encoder) String(s string) *Encoder {
	return e.VarBytes([]byte(s))
}

// OptionalString writes None (0x00) or Some (0x01) followed by the string.
func (e *Encoder) OptionalString(s *string) *Encoder {
	if s == nil {
		e.buf.WriteByte(0)
		return e
	}
	e.buf.WriteByte(1)
	return e.String(*s)
}
