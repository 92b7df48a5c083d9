// Package codec implements the binary update/persistence wire format:
// v1 (per-structure variable-length integers) and v2 (columnar, grouped
// and run-length compressed), plus state-vector encode/decode (spec §4.5,
// §6).
package codec

import (
	"math"

	"github.com/Horusiath/y-crdt/yerr"
)

// Writer accumulates an encoded byte stream. It is the shared low-level
// primitive both v1.go and v2.go build their structure-specific encoders
// on top of, mirroring how lib0's encoding.rs (original_source/lib0)
// layers structured encoders over one varint-writing core.
type Writer struct {
	buf []byte
}

// Bytes returns the accumulated bytes.
func (w *Writer) Bytes() []byte { return w.buf }

// WriteByte appends a single raw byte.
func (w *Writer) WriteByte(b byte) { w.buf = append(w.buf, b) }

// WriteBytes appends a raw byte slice with no length prefix.
func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

// WriteUvarint encodes v as an unsigned LEB128 varint: 7 payload bits per
// byte, continuation bit (0x80) set on every byte but the last, least
// significant group first.
func (w *Writer) WriteUvarint(v uint64) {
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
}

// WriteVarint encodes a signed value using zig-zag mapping before varint
// encoding, so small negative numbers stay small on the wire.
func (w *Writer) WriteVarint(v int64) {
	w.WriteUvarint(zigzagEncode(v))
}

// WriteVarString writes a length-prefixed UTF-8 string: WriteUvarint(len)
// followed by the raw bytes.
func (w *Writer) WriteVarString(s string) {
	w.WriteUvarint(uint64(len(s)))
	w.WriteBytes([]byte(s))
}

// WriteVarBytes writes a length-prefixed byte slice.
func (w *Writer) WriteVarBytes(b []byte) {
	w.WriteUvarint(uint64(len(b)))
	w.WriteBytes(b)
}

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// Reader walks a byte slice, consuming primitives written by Writer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential reading starting at offset 0.
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Remaining reports how many unread bytes are left.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// ReadByte reads a single raw byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, yerr.New(yerr.MalformedUpdate, "codec: unexpected end of input reading byte")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes reads exactly n raw bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, yerr.New(yerr.MalformedUpdate, "codec: unexpected end of input reading %d bytes", n)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadUvarint decodes an unsigned LEB128 varint written by WriteUvarint.
func (r *Reader) ReadUvarint() (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, yerr.New(yerr.MalformedUpdate, "codec: truncated varuint: %w", err)
		}
		if shift >= 64 {
			return 0, yerr.New(yerr.MalformedUpdate, "codec: varuint overflow")
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

// ReadVarint decodes a signed zig-zag varint written by WriteVarint.
func (r *Reader) ReadVarint() (int64, error) {
	v, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	return zigzagDecode(v), nil
}

// ReadVarString reads a length-prefixed UTF-8 string.
func (r *Reader) ReadVarString() (string, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return "", err
	}
	if n > uint64(math.MaxInt32) {
		return "", yerr.New(yerr.MalformedUpdate, "codec: string length %d too large", n)
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadVarBytes reads a length-prefixed byte slice.
func (r *Reader) ReadVarBytes() ([]byte, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(math.MaxInt32) {
		return nil, yerr.New(yerr.MalformedUpdate, "codec: byte length %d too large", n)
	}
	return r.ReadBytes(int(n))
}
