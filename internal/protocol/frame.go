package protocol

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
	ErrBadMarker   = errors.New("invalid frame marker")
	ErrBadLength   = errors.New("invalid frame length")
)

// Protocol identifies the wire protocol selected by the first byte of a
// connection.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolBNCS
	ProtocolBNFTP
)

// Frame is one complete BNCS protocol message.
type Frame struct {
	Type    byte
	Payload []byte
}

// Decoder splits an inbound byte stream into BNCS frames. Bytes are appended
// with Feed and complete frames drained with Next; a partial frame stays
// buffered until more input arrives, so no bytes are ever lost on short reads.
//
// The first fed byte is the protocol selector. When it selects BNFTP the
// decoder stops producing frames: the caller must check Selected and hand the
// connection (plus any bytes still buffered, via Rest) to the BNFTP reader.
type Decoder struct {
	buf      []byte
	selected Protocol
}

// NewDecoder returns a Decoder for a fresh connection.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends raw bytes from the transport.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Selected reports which protocol the connection speaks. ProtocolUnknown
// until the selector byte has been consumed by Next.
func (d *Decoder) Selected() Protocol {
	return d.selected
}

// Rest returns the bytes buffered past the selector. Only meaningful after
// the decoder switched to BNFTP; the returned slice belongs to the caller.
func (d *Decoder) Rest() []byte {
	rest := d.buf
	d.buf = nil
	return rest
}

// Next returns the next complete frame. ok is false when more input is
// needed (or the connection switched to BNFTP). A non-nil error is a fatal
// framing error and the connection must be closed.
func (d *Decoder) Next() (frame Frame, ok bool, err error) {
	if d.selected == ProtocolUnknown {
		if len(d.buf) == 0 {
			return Frame{}, false, nil
		}
		switch d.buf[0] {
		case constants.ProtocolBNCS:
			d.selected = ProtocolBNCS
		case constants.ProtocolBNFTP:
			d.selected = ProtocolBNFTP
		default:
			return Frame{}, false, fmt.Errorf("%w: 0x%02X", ErrBadSelector, d.buf[0])
		}
		d.buf = d.buf[1:]
	}

	if d.selected == ProtocolBNFTP {
		return Frame{}, false, nil
	}

	if len(d.buf) < constants.FrameHeaderSize {
		return Frame{}, false, nil
	}

	if d.buf[0] != constants.FrameMarker {
		return Frame{}, false, fmt.Errorf("%w: 0x%02X", ErrBadMarker, d.buf[0])
	}

	msgType := d.buf[1]
	totalLen := int(binary.LittleEndian.Uint16(d.buf[2:4]))
	if totalLen < constants.FrameHeaderSize {
		return Frame{}, false, fmt.Errorf("%w: %d", ErrBadLength, totalLen)
	}

	if len(d.buf) < totalLen {
		return Frame{}, false, nil
	}

	payload := make([]byte, totalLen-constants.FrameHeaderSize)
	copy(payload, d.buf[constants.FrameHeaderSize:totalLen])
	d.buf = d.buf[totalLen:]

	return Frame{Type: msgType, Payload: payload}, true, nil
}

// EncodeFrame writes the frame header and payload into buf and returns the
// number of bytes written. buf must have room for the header plus payload.
func EncodeFrame(buf []byte, msgType byte, payload []byte) (int, error) {
	totalLen := constants.FrameHeaderSize + len(payload)
	if totalLen > constants.MaxFrameLength {
		return 0, fmt.Errorf("%w: payload %d exceeds frame limit", ErrBadLength, len(payload))
	}
	if len(buf) < totalLen {
		return 0, fmt.Errorf("encode frame: buffer too small (need %d, have %d)", totalLen, len(buf))
	}

	buf[0] = constants.FrameMarker
	buf[1] = msgType
	binary.LittleEndian.PutUint16(buf[2:4], uint16(totalLen))
	copy(buf[constants.FrameHeaderSize:], payload)

	return totalLen, nil
}

// WriteFrame encodes one frame and writes it to w.
func WriteFrame(w io.Writer, msgType byte, payload []byte) error {
	buf := make([]byte, constants.FrameHeaderSize+len(payload))
	n, err := EncodeFrame(buf, msgType, payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf[:n]); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}
