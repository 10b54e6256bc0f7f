// Package message implements the wire codec and message taxonomy shared by
// the handshake, keep-alive, discovery, and application layers. Primitive
// encoding is stable and hand-rolled rather than reflection-based, to
// match a fixed length-prefixed framing boundary.
package message

import (
	"encoding/binary"
)

// Writer accumulates a primitive-encoded byte stream.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated output. The returned slice aliases the
// Writer's internal buffer and must not be mutated by the caller.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// WriteBool appends a single-byte boolean (0/1).
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// WriteByte appends a single raw byte.
func (w *Writer) WriteByte(v byte) error {
	w.buf = append(w.buf, v)
	return nil
}

// WriteUint16 appends a fixed-width big-endian uint16.
func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteUint32 appends a fixed-width big-endian uint32.
func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteUint64 appends a fixed-width big-endian uint64.
func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteVarint appends v as unsigned LEB128 (continuation-bit varint, at
// most 5 bytes for a 32-bit value).
func (w *Writer) WriteVarint(v uint64) {
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
}

// WriteBytes appends a varint length prefix followed by raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteVarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteString appends a varint-length-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.WriteBytes([]byte(s))
}

// WriteStringArray appends a varint count followed by each string.
func (w *Writer) WriteStringArray(a []string) {
	w.WriteVarint(uint64(len(a)))
	for _, s := range a {
		w.WriteString(s)
	}
}

// Reader consumes a primitive-encoded byte stream, advancing a read cursor.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps b for sequential decoding.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return ErrParseMessageFailed
	}
	return nil
}

// ReadBool decodes a single-byte boolean.
func (r *Reader) ReadBool() (bool, error) {
	if err := r.need(1); err != nil {
		return false, err
	}
	v := r.buf[r.pos]
	r.pos++
	if v > 1 {
		return false, ErrBadMessage
	}
	return v == 1, nil
}

// ReadByte decodes a single raw byte. It satisfies io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// ReadUint16 decodes a fixed-width big-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadUint32 decodes a fixed-width big-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadUint64 decodes a fixed-width big-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// ReadVarint decodes an unsigned LEB128 varint, at most 5 bytes.
func (r *Reader) ReadVarint() (uint64, error) {
	var v uint64
	for i := 0; i < 5; i++ {
		if err := r.need(1); err != nil {
			return 0, ErrParseMessageFailed
		}
		b := r.buf[r.pos]
		r.pos++
		v |= uint64(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, ErrBadMessage
}

// ReadBytes decodes a varint length prefix followed by raw bytes.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return b, nil
}

// ReadString decodes a varint-length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadStringArray decodes a varint count followed by that many strings.
func (r *Reader) ReadStringArray() ([]string, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		s, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
