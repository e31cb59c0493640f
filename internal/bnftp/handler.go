package bnftp

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/udisondev/bnetgo/internal/constants"
	"github.com/udisondev/bnetgo/internal/protocol"
)

// Request is a parsed version 1 file request.
type Request struct {
	HeaderSize   uint16
	Version      uint16
	PlatformID   uint32
	ProductID    uint32
	BannerID     uint32
	BannerExt    uint32
	FilePosition uint32
	Filetime     uint64
	Filename     string
}

// Handler serves one file transfer per connection.
type Handler struct {
	log      *slog.Logger
	provider *FileProvider
}

// NewHandler creates a Handler over the provider.
func NewHandler(log *slog.Logger, provider *FileProvider) *Handler {
	return &Handler{log: log, provider: provider}
}

// Serve reads a single file request from rw and streams the response back.
// buffered holds any bytes that arrived together with the protocol selector.
// The caller closes the connection afterwards regardless of the outcome.
func (h *Handler) Serve(rw io.ReadWriter, buffered []byte) error {
	raw, err := readRequest(rw, buffered)
	if err != nil {
		return err
	}

	req, err := decodeRequest(raw)
	if err != nil {
		return err
	}

	h.log.Info("file request",
		"filename", req.Filename,
		"version", fmt.Sprintf("0x%04X", req.Version),
		"position", req.FilePosition)

	if req.Version != constants.BnftpVersion1 {
		return fmt.Errorf("unsupported file transfer version 0x%04X", req.Version)
	}

	data, ok := h.provider.GetFile(req.Filename)
	if !ok {
		return fmt.Errorf("requested file %q not available", req.Filename)
	}

	totalSize := len(data)
	// Resume support: skip to the requested position but still report the
	// full size in the header.
	if pos := int(req.FilePosition); pos > 0 && pos < len(data) {
		data = data[pos:]
	}

	resp := encodeResponse(req, totalSize, h.provider.Filetime(req.Filename), data)
	if _, err := rw.Write(resp); err != nil {
		return fmt.Errorf("writing file response: %w", err)
	}
	h.log.Debug("transfer complete", "filename", req.Filename, "sent", len(data))
	return nil
}

// readRequest accumulates bytes until the full request header is available.
func readRequest(r io.Reader, buffered []byte) ([]byte, error) {
	buf := append([]byte(nil), buffered...)
	chunk := make([]byte, 512)

	for {
		if len(buf) >= 2 {
			headerSize := int(buf[0]) | int(buf[1])<<8
			if headerSize < constants.BnftpMinRequestSize {
				return nil, fmt.Errorf("invalid file request size %d", headerSize)
			}
			if len(buf) >= headerSize {
				return buf[:headerSize], nil
			}
		}

		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading file request: %w", err)
		}
	}
}

func decodeRequest(raw []byte) (Request, error) {
	r := protocol.NewReader(raw)
	var req Request
	var err error

	if req.HeaderSize, err = r.Uint16(); err != nil {
		return req, err
	}
	if req.Version, err = r.Uint16(); err != nil {
		return req, err
	}
	if req.PlatformID, err = r.Uint32(); err != nil {
		return req, err
	}
	if req.ProductID, err = r.Uint32(); err != nil {
		return req, err
	}
	if req.BannerID, err = r.Uint32(); err != nil {
		return req, err
	}
	if req.BannerExt, err = r.Uint32(); err != nil {
		return req, err
	}
	if req.FilePosition, err = r.Uint32(); err != nil {
		return req, err
	}
	if req.Filetime, err = r.Uint64(); err != nil {
		return req, err
	}
	if req.Filename, err = r.String(); err != nil {
		return req, fmt.Errorf("reading requested filename: %w", err)
	}
	return req, nil
}

func encodeResponse(req Request, totalSize int, filetime uint64, data []byte) []byte {
	headerSize := 2 + 2 + 4 + 4 + 4 + 8 + len(req.Filename) + 1
	w := protocol.NewWriter().
		Uint16(uint16(headerSize)).
		Uint16(0x0000). // file reply
		Uint32(uint32(totalSize)).
		Uint32(req.BannerID).
		Uint32(req.BannerExt).
		Uint64(filetime).
		String(req.Filename).
		Bytes(data)
	return w.Payload()
}
