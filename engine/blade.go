package engine

import (
	"errors"
	"fmt"
	"io"
	fsys "io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"

	"blade_view/engine/expr"
	"blade_view/engine/store"
)

// BladeEngine là view service: resolve view id, lấy program từ cache, render
type BladeEngine struct {
	config   BladeConfig
	fs       *HybridFS
	loader   *Loader
	compiler *Compiler
	cache    *Cache
	renderer *Renderer
	store    store.Store
	logger   *slog.Logger
	watcher  *FileWatcher
	// ownsStore is true when the store was opened from StoreDriver and must be
	// closed by Close.
	ownsStore bool
}

// NewBladeEngineWithConfig tạo Blade Engine với cấu hình
func NewBladeEngineWithConfig(config BladeConfig) (*BladeEngine, error) {
	if config.TemplateExtension == "" {
		config.TemplateExtension = DefaultTemplateExtension
	}
	logger := config.Logger
	if logger == nil {
		logger = NewLogger("info")
	}

	funcs, err := templateFuncs(config)
	if err != nil {
		return nil, err
	}

	hybrid := NewHybridFS(config.TemplatesDir, config.EmbeddedFS)
	be := &BladeEngine{
		config:   config,
		fs:       hybrid,
		loader:   NewLoader(hybrid, config.TemplateExtension),
		compiler: NewCompiler(),
		logger:   logger,
	}

	if config.CacheEnabled {
		st, err := openStore(config)
		if err != nil {
			return nil, fmt.Errorf("opening artifact store: %w", err)
		}
		be.store = st
		be.ownsStore = config.Store == nil
	}
	be.cache = NewCache(be.loader, be.compiler, CacheOptions{
		Store:    be.store,
		Disabled: !config.CacheEnabled,
		Logger:   logger,
	})
	be.renderer = NewRenderer(be.cache, RenderOptions{
		Funcs:                  funcs,
		Strict:                 config.Strict,
		MaxLayoutDepth:         config.MaxLayoutDepth,
		MaxLoopIterations:      config.MaxLoopIterations,
		PreserveContentSection: config.PreserveContentSection,
	})

	if config.CacheEnabled && !config.SkipPreload {
		if err := be.PreloadTemplates(); err != nil {
			logger.Warn("preload completed with errors", "error", err)
		}
	}

	// Trong development mode, start file watcher
	if config.Development && config.TemplatesDir != "" {
		watcher, err := NewFileWatcher(be, config.TemplatesDir)
		if err != nil {
			logger.Warn("could not start file watcher", "dir", config.TemplatesDir, "error", err)
		} else {
			watcher.Start()
			be.watcher = watcher
		}
	}
	return be, nil
}

// NewBladeEngine creates a Blade Engine with default configuration
func NewBladeEngine(templatesDir string) (*BladeEngine, error) {
	return NewBladeEngineWithConfig(DefaultConfig(templatesDir))
}

// Close stops the watcher and releases the artifact store.
func (b *BladeEngine) Close() error {
	if b.watcher != nil {
		b.watcher.Stop()
		b.watcher = nil
	}
	if c, ok := b.store.(io.Closer); ok && b.ownsStore {
		b.ownsStore = false
		return c.Close()
	}
	return nil
}

// viewID normalises "pages/home.blade.tpl" and "pages.home" to the same id so
// both share one cache entry.
func (b *BladeEngine) viewID(name string) (string, error) {
	p, err := b.loader.Path(name)
	if err != nil {
		return "", err
	}
	return b.loader.ViewID(p), nil
}

// RenderResult renders a view and returns the output with its captured sections.
func (b *BladeEngine) RenderResult(name string, data any) (*Result, error) {
	id, err := b.viewID(name)
	if err != nil {
		return nil, err
	}
	p, err := b.cache.Get(id)
	if err != nil {
		return nil, err
	}
	return b.renderer.Execute(id, p, data)
}

// RenderString render template thành string
func (b *BladeEngine) RenderString(name string, data any) (string, error) {
	res, err := b.RenderResult(name, data)
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// Render render template với data. Nothing is written when rendering fails.
func (b *BladeEngine) Render(w io.Writer, name string, data any) error {
	out, err := b.RenderString(name, data)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// Exists reports whether a view id resolves to a template file.
func (b *BladeEngine) Exists(name string) bool {
	return b.loader.Exists(name)
}

// ClearCache xóa toàn bộ cache và trả về số artifact đã xóa
func (b *BladeEngine) ClearCache() (int, error) {
	n, err := b.cache.Clear()
	if err != nil {
		return n, err
	}
	b.logger.Info("template cache cleared", "removed", n)
	return n, nil
}

// CacheStats trả về thống kê cache
func (b *BladeEngine) CacheStats() map[string]interface{} {
	stats := b.cache.Stats()
	stats["templates_dir"] = b.config.TemplatesDir
	stats["development"] = b.config.Development
	return stats
}

// GetCachedTemplates returns the view ids of the compiled templates held in memory.
func (b *BladeEngine) GetCachedTemplates() []string {
	return b.cache.Views()
}

// Templates lists the view ids of every template on disk and in the embedded
// FS, sorted.
func (b *BladeEngine) Templates() ([]string, error) {
	seen := make(map[string]struct{})
	var errs []error
	collect := func(root fsys.FS) {
		err := fsys.WalkDir(root, ".", func(p string, d fsys.DirEntry, err error) error {
			if err != nil {
				if p == "." && errors.Is(err, fsys.ErrNotExist) {
					return fsys.SkipAll
				}
				errs = append(errs, fmt.Errorf("error accessing %s: %w", p, err))
				return nil
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), b.loader.Extension()) {
				return nil
			}
			seen[b.loader.ViewID(p)] = struct{}{}
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if b.config.TemplatesDir != "" {
		collect(os.DirFS(b.config.TemplatesDir))
	}
	if b.config.EmbeddedFS != nil {
		collect(b.config.EmbeddedFS)
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, errors.Join(errs...)
}

// PreloadTemplates compile trước mọi template. Errors are collected rather than
// stopping the walk.
func (b *BladeEngine) PreloadTemplates() error {
	ids, err := b.Templates()
	errs := []error{err}
	for _, id := range ids {
		if _, err := b.cache.Get(id); err != nil {
			errs = append(errs, fmt.Errorf("error compiling %s: %w", id, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("preload: %w", err)
	}
	b.logger.Debug("templates preloaded", "count", len(ids))
	return nil
}

// WarmupCache làm nóng cache bằng cách preload các templates thường dùng
func (b *BladeEngine) WarmupCache(names []string) error {
	var errs []error
	for _, name := range names {
		id, err := b.viewID(name)
		if err == nil {
			_, err = b.cache.Get(id)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("warmup %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// CacheStatsHTTPHandler writes the cache statistics as sorted "key: value" lines.
func (b *BladeEngine) CacheStatsHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, formatStats(b.CacheStats()))
	}
}

// ClearCacheHTTPHandler clears the cache and reports how many artifacts were removed.
func (b *BladeEngine) ClearCacheHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := b.ClearCache()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "Cache cleared successfully (%d compiled templates removed)\n", n)
	}
}

func formatStats(stats map[string]interface{}) string {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString("Cache Statistics:\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %v\n", k, stats[k])
	}
	return sb.String()
}

// templateFuncs merges the url helpers with BladeConfig.Funcs. User functions
// win over the helpers.
func templateFuncs(config BladeConfig) (map[string]expr.Func, error) {
	base := strings.TrimRight(config.BaseURL, "/")
	if base == "" {
		base = "http://localhost"
	}
	url := func(p string) string {
		return base + "/" + strings.TrimLeft(p, "/")
	}
	funcs := map[string]expr.Func{
		"url": func(args ...any) (any, error) {
			if len(args) == 0 {
				return url(""), nil
			}
			return url(expr.ToString(args[0])), nil
		},
		"asset": func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("asset expects 1 argument, got %d", len(args))
			}
			return url(path.Join("public", strings.TrimLeft(expr.ToString(args[0]), "/"))), nil
		},
		"route": func(args ...any) (any, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("route expects a name")
			}
			return expr.ToString(args[0]), nil
		},
		"env": func(args ...any) (any, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("env expects a key")
			}
			if v, ok := os.LookupEnv(expr.ToString(args[0])); ok {
				return v, nil
			}
			if len(args) > 1 {
				return args[1], nil
			}
			return nil, nil
		},
	}
	for name, fn := range config.Funcs {
		f, err := expr.WrapFunc(fn)
		if err != nil {
			return nil, fmt.Errorf("template function %q: %w", name, err)
		}
		funcs[name] = f
	}
	return funcs, nil
}
