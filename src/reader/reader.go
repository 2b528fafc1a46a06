/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package reader provides big-endian fixed-width readers over a byte slice,
// the foundation the constant-pool and code-attribute decoders build on.
// Its only dependency inside this module is npeblame/errs, for its error
// values.
package reader

import "npeblame/errs"

// Reader walks a byte slice left to right, tracking a cursor position.
// It never copies the underlying slice.
type Reader struct {
	buf []byte
	pos int
}

// New wraps buf for sequential reading starting at offset 0.
func New(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos returns the current cursor position.
func (r *Reader) Pos() int { return r.pos }

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Done reports whether the cursor has reached the end of the buffer.
func (r *Reader) Done() bool { return r.pos >= len(r.buf) }

func (r *Reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return errs.New(errs.InvalidArgument,
			"reader: need %d bytes at offset %d, only %d available", n, r.pos, len(r.buf)-r.pos)
	}
	return nil
}

// U1 reads one unsigned byte.
func (r *Reader) U1() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// S1 reads one signed byte.
func (r *Reader) S1() (int8, error) {
	v, err := r.U1()
	return int8(v), err
}

// U2 reads a big-endian unsigned 16-bit integer.
func (r *Reader) U2() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := uint16(r.buf[r.pos])<<8 | uint16(r.buf[r.pos+1])
	r.pos += 2
	return v, nil
}

// S2 reads a big-endian signed 16-bit integer.
func (r *Reader) S2() (int16, error) {
	v, err := r.U2()
	return int16(v), err
}

// U4 reads a big-endian unsigned 32-bit integer.
func (r *Reader) U4() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := uint32(r.buf[r.pos])<<24 | uint32(r.buf[r.pos+1])<<16 |
		uint32(r.buf[r.pos+2])<<8 | uint32(r.buf[r.pos+3])
	r.pos += 4
	return v, nil
}

// S4 reads a big-endian signed 32-bit integer.
func (r *Reader) S4() (int32, error) {
	v, err := r.U4()
	return int32(v), err
}

// U8 reads a big-endian unsigned 64-bit integer.
func (r *Reader) U8() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	hi, _ := r.buf4At(r.pos)
	lo, _ := r.buf4At(r.pos + 4)
	r.pos += 8
	return uint64(hi)<<32 | uint64(lo), nil
}

func (r *Reader) buf4At(pos int) (uint32, error) {
	return uint32(r.buf[pos])<<24 | uint32(r.buf[pos+1])<<16 |
		uint32(r.buf[pos+2])<<8 | uint32(r.buf[pos+3]), nil
}

// S8 reads a big-endian signed 64-bit integer.
func (r *Reader) S8() (int64, error) {
	v, err := r.U8()
	return int64(v), err
}

// Bytes reads n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// Skip advances the cursor by n bytes without returning them.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// PeekU1 returns the byte at the cursor without advancing it.
func (r *Reader) PeekU1() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	return r.buf[r.pos], nil
}

// ByteAt returns the byte at an absolute offset, without moving the cursor.
func ByteAt(buf []byte, offset int) (uint8, error) {
	if offset < 0 || offset >= len(buf) {
		return 0, errs.New(errs.InvalidArgument, "offset %d out of range [0,%d)", offset, len(buf))
	}
	return buf[offset], nil
}

// U2At reads a big-endian uint16 at an absolute offset without moving any
// cursor.
func U2At(buf []byte, offset int) (uint16, error) {
	if offset < 0 || offset+2 > len(buf) {
		return 0, errs.New(errs.InvalidArgument, "offset %d out of range for u2 read", offset)
	}
	return uint16(buf[offset])<<8 | uint16(buf[offset+1]), nil
}

// U4At reads a big-endian uint32 at an absolute offset without moving any
// cursor.
func U4At(buf []byte, offset int) (uint32, error) {
	if offset < 0 || offset+4 > len(buf) {
		return 0, errs.New(errs.InvalidArgument, "offset %d out of range for u4 read", offset)
	}
	return uint32(buf[offset])<<24 | uint32(buf[offset+1])<<16 |
		uint32(buf[offset+2])<<8 | uint32(buf[offset+3]), nil
}

// S4At reads a big-endian signed 32-bit integer at an absolute offset.
func S4At(buf []byte, offset int) (int32, error) {
	v, err := U4At(buf, offset)
	return int32(v), err
}
