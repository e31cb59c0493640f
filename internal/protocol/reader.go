package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Reader provides methods for reading fields out of a frame payload.
// All multi-byte values are little-endian; strings are NUL-terminated
// Latin-1, kept byte-for-byte.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a Reader over a payload.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Byte reads one byte.
func (r *Reader) Byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("read byte: not enough data (pos=%d, len=%d)", r.pos, len(r.data))
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// Uint16 reads a uint16 (2 bytes, LE).
func (r *Reader) Uint16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, fmt.Errorf("read uint16: not enough data (pos=%d, len=%d)", r.pos, len(r.data))
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

// Uint32 reads a uint32 (4 bytes, LE).
func (r *Reader) Uint32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("read uint32: not enough data (pos=%d, len=%d)", r.pos, len(r.data))
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// Uint64 reads a uint64 (8 bytes, LE).
func (r *Reader) Uint64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, fmt.Errorf("read uint64: not enough data (pos=%d, len=%d)", r.pos, len(r.data))
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

// String reads a NUL-terminated string. The terminator is consumed but not
// included in the result.
func (r *Reader) String() (string, error) {
	idx := bytes.IndexByte(r.data[r.pos:], 0)
	if idx < 0 {
		return "", fmt.Errorf("read string: missing NUL terminator (pos=%d, len=%d)", r.pos, len(r.data))
	}
	s := string(r.data[r.pos : r.pos+idx])
	r.pos += idx + 1
	return s, nil
}

// Bytes reads n bytes into a fresh slice.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("read bytes: negative count %d", n)
	}
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("read bytes: not enough data (pos=%d, need=%d, len=%d)", r.pos, n, len(r.data))
	}
	b := make([]byte, n)
	copy(b, r.data[r.pos:r.pos+n])
	r.pos += n
	return b, nil
}

// Skip advances past n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 || r.pos+n > len(r.data) {
		return fmt.Errorf("skip: not enough data (pos=%d, need=%d, len=%d)", r.pos, n, len(r.data))
	}
	r.pos += n
	return nil
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}
