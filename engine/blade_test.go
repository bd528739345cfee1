package engine

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/go-cmp/cmp"
)

func newTestEngine(t testing.TB, dir string, mutate func(*BladeConfig)) *BladeEngine {
	t.Helper()
	cfg := DefaultConfig(dir)
	cfg.StoreDriver = StoreMemory
	cfg.SkipPreload = true
	cfg.Logger = slog.New(slog.DiscardHandler)
	if mutate != nil {
		mutate(&cfg)
	}
	be, err := NewBladeEngineWithConfig(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(func() { be.Close() })
	return be
}

func writeSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"layouts/app.blade.tpl":  "<html><title>@yield('title', 'Site')</title><body>@include('partials.nav')@yield('content')</body></html>",
		"partials/nav.blade.tpl": "<nav>{{ url('/about') }}</nav>",
		"pages/home.blade.tpl":   "@extends('layouts.app')\n@section('title', $title)\n<h1>{{{ $heading }}}</h1>",
	}
	for name, content := range files {
		writeTemplate(t, dir, name, content, time.Time{})
	}
	return dir
}

func TestEngineRender(t *testing.T) {
	dir := writeSite(t)
	be := newTestEngine(t, dir, func(c *BladeConfig) { c.BaseURL = "https://example.test/" })

	out, err := be.RenderString("pages.home", map[string]any{"title": "Home", "heading": "<Hi>"})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"<title>Home</title>",
		"<nav>https://example.test/about</nav>",
		"<h1>&lt;Hi&gt;</h1></body></html>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// path and dot forms share one cache entry
	var buf bytes.Buffer
	if err := be.Render(&buf, "pages/home.blade.tpl", map[string]any{"title": "Again"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "<title>Again</title>") {
		t.Fatalf("second render: %s", buf.String())
	}
	want := []string{"layouts.app", "pages.home", "partials.nav"}
	if diff := cmp.Diff(want, be.GetCachedTemplates()); diff != "" {
		t.Fatalf("cached templates (-want +got):\n%s", diff)
	}

	n, err := be.ClearCache()
	if err != nil || n != 3 {
		t.Fatalf("ClearCache = %d, %v; want 3", n, err)
	}
}

func TestEngineRenderFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "open.blade.tpl", "before @section('x') never closed", time.Time{})
	be := newTestEngine(t, dir, nil)

	var buf bytes.Buffer
	err := be.Render(&buf, "open", nil)
	if !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("want ErrStackUnderflow, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("partial output written: %q", buf.String())
	}
	if _, err := be.RenderString("missing", nil); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("want ErrTemplateNotFound, got %v", err)
	}
}

func TestEngineExists(t *testing.T) {
	be := newTestEngine(t, writeSite(t), nil)
	for name, want := range map[string]bool{
		"pages.home":            true,
		"layouts/app.blade.tpl": true,
		"pages.missing":         false,
		"layouts":               false,
	} {
		if got := be.Exists(name); got != want {
			t.Errorf("Exists(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestEnginePreloadAndValidate(t *testing.T) {
	dir := writeSite(t)
	writeTemplate(t, dir, "broken.blade.tpl", "ok\n@foreach($xs as $x)", time.Time{})
	writeTemplate(t, dir, "notes.txt", "@if(", time.Time{})
	be := newTestEngine(t, dir, nil)

	ids, err := be.Templates()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"broken", "layouts.app", "pages.home", "partials.nav"}, ids); diff != "" {
		t.Fatalf("templates (-want +got):\n%s", diff)
	}

	err = be.PreloadTemplates()
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("preload error = %v", err)
	}
	if got := be.GetCachedTemplates(); len(got) != 3 {
		t.Fatalf("preload cached %v", got)
	}

	err = be.ValidateAllTemplates()
	var ce *CompileError
	if !errors.As(err, &ce) || ce.View != "broken" || ce.Line != 2 {
		t.Fatalf("validation error = %v", err)
	}

	if err := be.WarmupCache([]string{"pages.home", "nope"}); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("warmup error = %v", err)
	}
}

func TestEngineEmbeddedFallback(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "home.blade.tpl", "embedded {{ $name }}", time.Time{})
	be := newTestEngine(t, "", func(c *BladeConfig) {
		c.EmbeddedFS = os.DirFS(dir)
	})
	out, err := be.RenderString("home", map[string]any{"name": "fs"})
	if err != nil || out != "embedded fs" {
		t.Fatalf("render = %q, %v", out, err)
	}
	if ids, err := be.Templates(); err != nil || len(ids) != 1 {
		t.Fatalf("templates = %v, %v", ids, err)
	}
}

func TestEngineDebugTemplate(t *testing.T) {
	be := newTestEngine(t, writeSite(t), nil)
	var sb strings.Builder
	if err := be.DebugTemplate("pages/home.blade.tpl", &sb); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"=== DEBUG TEMPLATE: pages.home", "=== PROGRAM ===", `"op": "extends"`} {
		if !strings.Contains(sb.String(), want) {
			t.Errorf("debug output missing %q", want)
		}
	}
}

func TestEngineFuncs(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "v.blade.tpl", "{{ asset('/css/app.css') }}|{{ shout($word) }}|{{ sanitize($html) }}|{{ route('home') }}", time.Time{})
	be := newTestEngine(t, dir, func(c *BladeConfig) {
		c.Funcs = map[string]any{"shout": func(s string) string { return strings.ToUpper(s) + "!" }}
	})
	out, err := be.RenderString("v", map[string]any{"word": "hey", "html": `<a href="/x" onclick="evil()">x</a><script>bad()</script>`})
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(out, "|")
	if len(parts) != 4 {
		t.Fatalf("output %q", out)
	}
	if parts[0] != "http://localhost/public/css/app.css" || parts[1] != "HEY!" || parts[3] != "home" {
		t.Fatalf("helpers rendered %q", out)
	}
	if strings.Contains(parts[2], "onclick") || strings.Contains(parts[2], "script") || !strings.Contains(parts[2], "x</a>") {
		t.Fatalf("sanitize rendered %q", parts[2])
	}

	_, err = NewBladeEngineWithConfig(BladeConfig{
		TemplatesDir: dir,
		SkipPreload:  true,
		Funcs:        map[string]any{"bad": 42},
		Logger:       slog.New(slog.DiscardHandler),
	})
	if err == nil {
		t.Fatal("non-function template helper accepted")
	}
}

func TestEngineStores(t *testing.T) {
	for _, driver := range []string{StoreDir, StoreSQLite, StoreMemory} {
		t.Run(driver, func(t *testing.T) {
			dir := writeSite(t)
			cacheDir := t.TempDir()
			configure := func(c *BladeConfig) {
				c.StoreDriver = driver
				c.CacheDir = cacheDir
				c.StoreDSN = filepath.Join(cacheDir, "blade.db")
			}
			first := newTestEngine(t, dir, configure)
			if _, err := first.RenderString("pages.home", map[string]any{"title": "T"}); err != nil {
				t.Fatal(err)
			}
			if err := first.Close(); err != nil {
				t.Fatal(err)
			}

			// a fresh engine sees what the first one persisted
			second := newTestEngine(t, dir, configure)
			n, err := second.ClearCache()
			if err != nil {
				t.Fatal(err)
			}
			want := 3
			if driver == StoreMemory {
				want = 0
			}
			if n != want {
				t.Fatalf("second engine cleared %d artifacts, want %d", n, want)
			}
		})
	}
}

func TestEngineWatcherDropsChangedTemplate(t *testing.T) {
	dir := writeSite(t)
	be := newTestEngine(t, dir, func(c *BladeConfig) { c.Development = true })
	if be.watcher == nil {
		t.Fatal("development mode did not start a watcher")
	}
	if _, err := be.RenderString("pages.home", nil); err != nil {
		t.Fatal(err)
	}
	be.watcher.handle(fsnotify.Event{Name: filepath.Join(dir, "pages", "home.blade.tpl"), Op: fsnotify.Write})
	be.watcher.handle(fsnotify.Event{Name: filepath.Join(dir, "notes.txt"), Op: fsnotify.Write})
	want := []string{"layouts.app", "partials.nav"}
	if diff := cmp.Diff(want, be.GetCachedTemplates()); diff != "" {
		t.Fatalf("cached after change (-want +got):\n%s", diff)
	}
}

func TestEngineHTTPHandlers(t *testing.T) {
	be := newTestEngine(t, writeSite(t), nil)
	if _, err := be.RenderString("pages.home", nil); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	be.CacheStatsHTTPHandler()(w, httptest.NewRequest("GET", "/cache-stats", nil))
	body, _ := io.ReadAll(w.Result().Body)
	for _, want := range []string{"Cache Statistics:", "total_items: 3", "templates_dir: "} {
		if !strings.Contains(string(body), want) {
			t.Errorf("stats missing %q:\n%s", want, body)
		}
	}

	w = httptest.NewRecorder()
	be.ClearCacheHTTPHandler()(w, httptest.NewRequest("POST", "/clear-cache", nil))
	body, _ = io.ReadAll(w.Result().Body)
	if !strings.Contains(string(body), "(3 compiled templates removed)") {
		t.Fatalf("clear-cache body: %s", body)
	}
}
