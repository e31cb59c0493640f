package protocol

import "encoding/binary"

// Writer builds a frame payload. All multi-byte values are little-endian;
// strings are written as NUL-terminated Latin-1 bytes.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty payload writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Byte appends one byte.
func (w *Writer) Byte(b byte) *Writer {
	w.buf = append(w.buf, b)
	return w
}

// Uint16 appends a uint16 (LE).
func (w *Writer) Uint16(v uint16) *Writer {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	return w
}

// Uint32 appends a uint32 (LE).
func (w *Writer) Uint32(v uint32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

// Uint64 appends a uint64 (LE).
func (w *Writer) Uint64(v uint64) *Writer {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	return w
}

// String appends a NUL-terminated string.
func (w *Writer) String(s string) *Writer {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
	return w
}

// Bytes appends raw bytes.
func (w *Writer) Bytes(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// Payload returns the accumulated payload bytes.
func (w *Writer) Payload() []byte {
	return w.buf
}

// Len returns the current payload length.
func (w *Writer) Len() int {
	return len(w.buf)
}
