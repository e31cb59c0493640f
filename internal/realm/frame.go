package realm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/udisondev/bnetgo/internal/constants"
)

// Framing errors are fatal: the connection must be closed without a reply.
var (
	ErrBadSelector = errors.New("unsupported protocol selector")
	ErrBadLength   = errors.New("invalid frame length")
)

// Frame is one complete realm protocol message. The header carries the total
// length as uint16 LE followed by the message type byte.
type Frame struct {
	Type    byte
	Payload []byte
}

// Decoder splits an inbound byte stream into realm frames. The first fed
// byte must be the realm protocol selector; anything else is fatal.
type Decoder struct {
	buf      []byte
	selected bool
}

// NewDecoder returns a Decoder for a fresh connection.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends raw bytes from the transport.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next returns the next complete frame. ok is false when more input is
// needed. A non-nil error is a fatal framing error.
func (d *Decoder) Next() (frame Frame, ok bool, err error) {
	if !d.selected {
		if len(d.buf) == 0 {
			return Frame{}, false, nil
		}
		if d.buf[0] != constants.ProtocolMCP {
			return Frame{}, false, fmt.Errorf("%w: 0x%02X", ErrBadSelector, d.buf[0])
		}
		d.selected = true
		d.buf = d.buf[1:]
	}

	if len(d.buf) < constants.McpHeaderSize {
		return Frame{}, false, nil
	}

	totalLen := int(binary.LittleEndian.Uint16(d.buf[0:2]))
	if totalLen < constants.McpHeaderSize {
		return Frame{}, false, fmt.Errorf("%w: %d", ErrBadLength, totalLen)
	}

	if len(d.buf) < totalLen {
		return Frame{}, false, nil
	}

	msgType := d.buf[2]
	payload := make([]byte, totalLen-constants.McpHeaderSize)
	copy(payload, d.buf[constants.McpHeaderSize:totalLen])
	d.buf = d.buf[totalLen:]

	return Frame{Type: msgType, Payload: payload}, true, nil
}

// WriteFrame encodes one realm frame and writes it to w.
func WriteFrame(w io.Writer, msgType byte, payload []byte) error {
	totalLen := constants.McpHeaderSize + len(payload)
	if totalLen > 0xFFFF {
		return fmt.Errorf("%w: payload %d exceeds frame limit", ErrBadLength, len(payload))
	}

	buf := make([]byte, totalLen)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(totalLen))
	buf[2] = msgType
	copy(buf[constants.McpHeaderSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}
