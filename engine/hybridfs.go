package engine

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// HybridFS implements fs.FS and fs.StatFS. It tries files on disk first
// (relative to baseDir), then falls back to an embedded fs.FS if provided.
type HybridFS struct {
	baseDir  string
	embedded fs.FS
}

// NewHybridFS creates a HybridFS rooted at baseDir. If embedded is nil, it behaves like disk FS.
func NewHybridFS(baseDir string, embedded fs.FS) *HybridFS {
	return &HybridFS{baseDir: baseDir, embedded: embedded}
}

func (h *HybridFS) diskPath(name string) string {
	return filepath.Join(h.baseDir, filepath.FromSlash(name))
}

// Open tries disk first, then embedded.
func (h *HybridFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if h.baseDir != "" {
		if f, err := os.Open(h.diskPath(name)); err == nil {
			return f, nil
		}
	}
	if h.embedded != nil {
		return h.embedded.Open(name)
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// Stat reports file info with the same disk-then-embedded precedence as Open.
// Embedded files have a zero modification time, so artifacts built from them
// never go stale.
func (h *HybridFS) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	if h.baseDir != "" {
		if info, err := os.Stat(h.diskPath(name)); err == nil {
			return info, nil
		}
	}
	if h.embedded != nil {
		return fs.Stat(h.embedded, name)
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

// ReadFile implements fs.ReadFileFS.
func (h *HybridFS) ReadFile(name string) ([]byte, error) {
	f, err := h.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
