package engine

import (
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"
	"time"
)

func TestLoaderPath(t *testing.T) {
	l := NewLoader(NewHybridFS(t.TempDir(), nil), "")
	tests := []struct {
		id      string
		want    string
		wantErr bool
	}{
		{id: "home", want: "home.blade.tpl"},
		{id: "layouts.app", want: "layouts/app.blade.tpl"},
		{id: "admin.users.index", want: "admin/users/index.blade.tpl"},
		{id: "pages/home.blade.tpl", want: "pages/home.blade.tpl"},
		{id: " layouts.app ", want: "layouts/app.blade.tpl"},
		{id: "", wantErr: true},
		{id: "../secret.blade.tpl", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.id, func(t *testing.T) {
			got, err := l.Path(tc.id)
			if tc.wantErr {
				if !errors.Is(err, ErrTemplateNotFound) {
					t.Fatalf("Path(%q) = %q, %v; want ErrTemplateNotFound", tc.id, got, err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("Path(%q) = %q, %v; want %q", tc.id, got, err, tc.want)
			}
		})
	}
}

func TestLoaderViewID(t *testing.T) {
	l := NewLoader(NewHybridFS("", nil), ".tpl")
	for rel, want := range map[string]string{
		"home.tpl":          "home",
		"layouts/app.tpl":   "layouts.app",
		`partials\nav.tpl`:  "partials.nav",
		"./pages/about.tpl": "pages.about",
	} {
		if got := l.ViewID(rel); got != want {
			t.Errorf("ViewID(%q) = %q, want %q", rel, got, want)
		}
	}
}

func TestLoaderPrefersDiskOverEmbedded(t *testing.T) {
	dir := t.TempDir()
	mod := time.Now().Add(-time.Hour).Truncate(time.Second)
	writeTemplate(t, dir, "home.blade.tpl", "disk", mod)
	embedded := fstest.MapFS{
		"home.blade.tpl":         {Data: []byte("embedded")},
		"layouts/app.blade.tpl":  {Data: []byte("embedded layout")},
		"partials/nav.blade.tpl": {Mode: fs.ModeDir},
	}
	l := NewLoader(NewHybridFS(dir, embedded), "")

	src, err := l.Load("home")
	if err != nil {
		t.Fatal(err)
	}
	if src.Raw != "disk" || !src.ModifiedAt.Equal(mod) || src.Path != "home.blade.tpl" {
		t.Fatalf("home = %+v", src)
	}

	src, err = l.Load("layouts.app")
	if err != nil {
		t.Fatal(err)
	}
	if src.Raw != "embedded layout" || !src.ModifiedAt.IsZero() {
		t.Fatalf("layouts.app = %+v", src)
	}

	if _, err := l.Stat("partials.nav"); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("directory resolved as template: %v", err)
	}
	if l.Exists("missing") || !l.Exists("home") {
		t.Fatal("Exists disagrees with the file system")
	}
}

func TestHybridFSRejectsInvalidPaths(t *testing.T) {
	h := NewHybridFS(t.TempDir(), nil)
	if _, err := h.Open("../etc/passwd"); !errors.Is(err, fs.ErrInvalid) {
		t.Fatalf("Open outside root: %v", err)
	}
	if _, err := h.Stat("/abs"); !errors.Is(err, fs.ErrInvalid) {
		t.Fatalf("Stat absolute: %v", err)
	}
	if _, err := h.ReadFile("missing.tpl"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("ReadFile missing: %v", err)
	}
}
