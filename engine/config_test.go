package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blade.yaml")
	yml := `templates_dir: ./views
cache_enabled: false
strict: true
max_loop_iterations: 50
base_url: https://example.test
store: sqlite
store_dsn: ./cache/views.db
log_level: debug
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BLADE_STRICT", "false")
	t.Setenv("BLADE_MAX_LAYOUT_DEPTH", "3")
	t.Setenv("BLADE_CACHE_DIR", " /tmp/blade ")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	want := BladeConfig{
		TemplatesDir:      "./views",
		TemplateExtension: DefaultTemplateExtension,
		CacheDir:          "/tmp/blade",
		CacheEnabled:      false,
		Strict:            false,
		MaxLoopIterations: 50,
		MaxLayoutDepth:    3,
		BaseURL:           "https://example.test",
		StoreDriver:       StoreSQLite,
		StoreDSN:          "./cache/views.db",
	}
	if diff := cmp.Diff(want, cfg, cmpopts.IgnoreFields(BladeConfig{}, "Logger")); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if cfg.Logger == nil {
		t.Fatal("logger not set")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.CacheEnabled || cfg.StoreDriver != StoreDir || cfg.TemplatesDir != "./templates" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.MaxLoopIterations != DefaultMaxLoopIterations || cfg.MaxLayoutDepth != DefaultMaxLayoutDepth {
		t.Fatalf("limits = %d/%d", cfg.MaxLoopIterations, cfg.MaxLayoutDepth)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.HasPrefix(err.Error(), "config: read") {
		t.Fatalf("missing file error = %v", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("strict: [nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(bad); err == nil || !strings.HasPrefix(err.Error(), "config: parse") {
		t.Fatalf("bad yaml error = %v", err)
	}

	t.Setenv("BLADE_CACHE", "sometimes")
	if _, err := LoadConfig(""); err == nil || !strings.Contains(err.Error(), "BLADE_CACHE") {
		t.Fatalf("bad bool error = %v", err)
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.StoreDriver = "redis"
	if _, err := NewBladeEngineWithConfig(cfg); err == nil || !strings.Contains(err.Error(), `unknown store driver "redis"`) {
		t.Fatalf("error = %v", err)
	}
}

func TestApplyEnvIgnoresUnset(t *testing.T) {
	cfg := DefaultConfig("views")
	level := "warn"
	env := map[string]string{"BLADE_DEVELOPMENT": "1", "BLADE_EXTENSION": ".tpl"}
	err := applyEnv(&cfg, &level, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Development || cfg.TemplateExtension != ".tpl" || cfg.TemplatesDir != "views" || level != "warn" {
		t.Fatalf("cfg = %+v, level %q", cfg, level)
	}
}
