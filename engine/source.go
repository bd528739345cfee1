package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"
)

// DefaultTemplateExtension is appended to view ids that do not already carry it.
const DefaultTemplateExtension = ".blade.tpl"

// TemplateSource is one template as read from the templates directory.
type TemplateSource struct {
	ViewID     string
	Path       string
	Raw        string
	ModifiedAt time.Time
}

// SourceLoader resolves view ids to template sources.
type SourceLoader interface {
	Stat(viewID string) (time.Time, error)
	Load(viewID string) (*TemplateSource, error)
}

// Loader reads templates through a HybridFS using dot-path addressing:
// "layouts.app" -> layouts/app.blade.tpl.
type Loader struct {
	fsys fs.StatFS
	ext  string
}

func NewLoader(fsys fs.StatFS, ext string) *Loader {
	if ext == "" {
		ext = DefaultTemplateExtension
	}
	return &Loader{fsys: fsys, ext: ext}
}

// Extension returns the template file extension.
func (l *Loader) Extension() string { return l.ext }

// Path maps a view id to its slash-separated path inside the templates root.
func (l *Loader) Path(viewID string) (string, error) {
	id := strings.TrimSpace(viewID)
	var p string
	if strings.HasSuffix(id, l.ext) {
		p = strings.TrimSuffix(id, l.ext)
	} else {
		p = strings.ReplaceAll(id, ".", "/")
	}
	p = strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty view id", ErrTemplateNotFound)
	}
	full := path.Clean(p) + l.ext
	if !fs.ValidPath(full) {
		return "", fmt.Errorf("%w: invalid view id %q", ErrTemplateNotFound, viewID)
	}
	return full, nil
}

// ViewID maps a path inside the templates root back to its dot-path id.
func (l *Loader) ViewID(rel string) string {
	rel = strings.TrimSuffix(path.Clean(strings.ReplaceAll(rel, "\\", "/")), l.ext)
	return strings.ReplaceAll(rel, "/", ".")
}

func (l *Loader) Stat(viewID string) (time.Time, error) {
	p, err := l.Path(viewID)
	if err != nil {
		return time.Time{}, err
	}
	info, err := l.fsys.Stat(p)
	if err != nil {
		return time.Time{}, notFound(viewID, p, err)
	}
	if info.IsDir() {
		return time.Time{}, fmt.Errorf("%w: %s is a directory", ErrTemplateNotFound, p)
	}
	return info.ModTime(), nil
}

func (l *Loader) Load(viewID string) (*TemplateSource, error) {
	p, err := l.Path(viewID)
	if err != nil {
		return nil, err
	}
	info, err := l.fsys.Stat(p)
	if err != nil {
		return nil, notFound(viewID, p, err)
	}
	data, err := fs.ReadFile(l.fsys, p)
	if err != nil {
		return nil, notFound(viewID, p, err)
	}
	return &TemplateSource{ViewID: viewID, Path: p, Raw: string(data), ModifiedAt: info.ModTime()}, nil
}

// Exists reports whether a source exists for the view id.
func (l *Loader) Exists(viewID string) bool {
	_, err := l.Stat(viewID)
	return err == nil
}

func notFound(viewID, p string, err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
		return fmt.Errorf("%w: %s (%s)", ErrTemplateNotFound, viewID, p)
	}
	return fmt.Errorf("%w: %s: %v", ErrTemplateNotFound, viewID, err)
}
