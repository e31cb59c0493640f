// Package bnftp implements version 1 of the Battle.net file transfer
// protocol: one request, one streamed response, then the connection closes.
package bnftp

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// filetimeEpochOffset converts between the Unix epoch and the Windows
// FILETIME epoch (January 1, 1601), in seconds.
const filetimeEpochOffset = 11644473600

// FileProvider resolves file requests against a local directory. Requested
// names are reduced to their base name so a request can never escape the
// directory.
type FileProvider struct {
	log  *slog.Logger
	root string
}

// NewFileProvider creates a provider serving files from root.
func NewFileProvider(log *slog.Logger, root string) *FileProvider {
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		log.Warn("file directory does not exist", "path", root)
	} else {
		log.Info("serving files", "path", root)
	}
	return &FileProvider{log: log, root: root}
}

// GetFile returns the contents of the named file, or nil, false when the
// name is invalid or the file is absent.
func (p *FileProvider) GetFile(filename string) ([]byte, bool) {
	name := sanitizeFilename(filename)
	if name == "" {
		p.log.Warn("rejected file request", "filename", filename)
		return nil, false
	}

	data, err := os.ReadFile(filepath.Join(p.root, name))
	if err != nil {
		p.log.Warn("file not available", "filename", name, "err", err)
		return nil, false
	}
	p.log.Info("serving file", "filename", name, "size", len(data))
	return data, true
}

// Filetime returns the file's last-modified time as a Windows FILETIME
// value (100-nanosecond intervals since 1601), or 0 when unavailable.
func (p *FileProvider) Filetime(filename string) uint64 {
	name := sanitizeFilename(filename)
	if name == "" {
		return 0
	}
	info, err := os.Stat(filepath.Join(p.root, name))
	if err != nil || info.IsDir() {
		return 0
	}
	millis := info.ModTime().UnixMilli()
	return uint64(millis+filetimeEpochOffset*1000) * 10000
}

// sanitizeFilename strips any directory components from the requested name.
func sanitizeFilename(filename string) string {
	name := strings.ReplaceAll(filename, "\\", "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	if name == "." || name == ".." {
		return ""
	}
	return name
}
