package engine

import (
	"fmt"
	fsys "io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"blade_view/engine/store"
)

// Store drivers accepted by BladeConfig.StoreDriver.
const (
	StoreDir    = "dir"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// BladeConfig cấu hình cho Blade Engine
type BladeConfig struct {
	TemplatesDir      string
	TemplateExtension string // default ".blade.tpl"
	CacheDir          string // artifacts for the "dir" store; default "./cache"
	CacheEnabled      bool
	Development       bool // watch templates and drop artifacts when they change
	Strict            bool // undefined variables become render errors
	// PreserveContentSection keeps an explicit @section('content') when the
	// text left outside sections is only whitespace. Off by default: the
	// leftover text always overwrites "content".
	PreserveContentSection bool
	MaxLoopIterations      int
	MaxLayoutDepth         int
	BaseURL                string // used by url() and asset()

	// StoreDriver selects the artifact store when Store is nil: "dir" (default),
	// "sqlite" or "memory".
	StoreDriver string
	StoreDSN    string // sqlite data source

	EmbeddedFS fsys.FS        // optional fallback for templates missing on disk
	Store      store.Store    // overrides StoreDriver
	Funcs      map[string]any // extra template functions
	Logger     *slog.Logger

	// SkipPreload disables compiling every template at start-up.
	SkipPreload bool
}

// fileConfig is the YAML shape of BladeConfig.
type fileConfig struct {
	TemplatesDir           string `yaml:"templates_dir"`
	TemplateExtension      string `yaml:"template_extension"`
	CacheDir               string `yaml:"cache_dir"`
	CacheEnabled           *bool  `yaml:"cache_enabled"`
	Development            bool   `yaml:"development"`
	Strict                 bool   `yaml:"strict"`
	PreserveContentSection bool   `yaml:"preserve_content_section"`
	MaxLoopIterations      int    `yaml:"max_loop_iterations"`
	MaxLayoutDepth         int    `yaml:"max_layout_depth"`
	BaseURL                string `yaml:"base_url"`
	StoreDriver            string `yaml:"store"`
	StoreDSN               string `yaml:"store_dsn"`
	LogLevel               string `yaml:"log_level"`
	SkipPreload            bool   `yaml:"skip_preload"`
}

// DefaultConfig returns the configuration NewBladeEngine uses.
func DefaultConfig(templatesDir string) BladeConfig {
	return BladeConfig{
		TemplatesDir:      templatesDir,
		TemplateExtension: DefaultTemplateExtension,
		CacheDir:          "./cache",
		CacheEnabled:      true,
		MaxLoopIterations: DefaultMaxLoopIterations,
		MaxLayoutDepth:    DefaultMaxLayoutDepth,
		StoreDriver:       StoreDir,
	}
}

// LoadConfig reads a YAML config file and then applies BLADE_* environment
// overrides. An empty path skips the file and only reads the environment.
func LoadConfig(path string) (BladeConfig, error) {
	cfg := DefaultConfig("./templates")
	fc := fileConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyFileConfig(&cfg, fc)
	level := fc.LogLevel
	if err := applyEnv(&cfg, &level, os.LookupEnv); err != nil {
		return cfg, err
	}
	cfg.Logger = NewLogger(level)
	return cfg, nil
}

func applyFileConfig(cfg *BladeConfig, fc fileConfig) {
	setString(&cfg.TemplatesDir, fc.TemplatesDir)
	setString(&cfg.TemplateExtension, fc.TemplateExtension)
	setString(&cfg.CacheDir, fc.CacheDir)
	setString(&cfg.BaseURL, fc.BaseURL)
	setString(&cfg.StoreDriver, fc.StoreDriver)
	setString(&cfg.StoreDSN, fc.StoreDSN)
	if fc.CacheEnabled != nil {
		cfg.CacheEnabled = *fc.CacheEnabled
	}
	cfg.Development = fc.Development
	cfg.Strict = fc.Strict
	cfg.PreserveContentSection = fc.PreserveContentSection
	cfg.SkipPreload = fc.SkipPreload
	if fc.MaxLoopIterations > 0 {
		cfg.MaxLoopIterations = fc.MaxLoopIterations
	}
	if fc.MaxLayoutDepth > 0 {
		cfg.MaxLayoutDepth = fc.MaxLayoutDepth
	}
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func applyEnv(cfg *BladeConfig, level *string, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"BLADE_TEMPLATES_DIR": &cfg.TemplatesDir,
		"BLADE_EXTENSION":     &cfg.TemplateExtension,
		"BLADE_CACHE_DIR":     &cfg.CacheDir,
		"BLADE_BASE_URL":      &cfg.BaseURL,
		"BLADE_STORE":         &cfg.StoreDriver,
		"BLADE_STORE_DSN":     &cfg.StoreDSN,
		"BLADE_LOG_LEVEL":     level,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			setString(dst, v)
		}
	}
	bools := map[string]*bool{
		"BLADE_CACHE":       &cfg.CacheEnabled,
		"BLADE_DEVELOPMENT": &cfg.Development,
		"BLADE_STRICT":      &cfg.Strict,
	}
	for name, dst := range bools {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("config: %s: %w", name, err)
			}
			*dst = b
		}
	}
	ints := map[string]*int{
		"BLADE_MAX_LOOP_ITERATIONS": &cfg.MaxLoopIterations,
		"BLADE_MAX_LAYOUT_DEPTH":    &cfg.MaxLayoutDepth,
	}
	for name, dst := range ints {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("config: %s: %w", name, err)
			}
			*dst = n
		}
	}
	return nil
}

// NewLogger builds the text logger used when BladeConfig.Logger is nil.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// openStore builds the artifact store selected by the config.
func openStore(cfg BladeConfig) (store.Store, error) {
	if cfg.Store != nil {
		return cfg.Store, nil
	}
	switch strings.ToLower(cfg.StoreDriver) {
	case "", StoreDir:
		dir := cfg.CacheDir
		if dir == "" {
			dir = "./cache"
		}
		return store.NewDir(dir)
	case StoreSQLite:
		dsn := cfg.StoreDSN
		if dsn == "" {
			dsn = "./cache/blade.db"
		}
		return store.OpenSQL(dsn)
	case StoreMemory:
		return store.NewMemory(), nil
	}
	return nil, fmt.Errorf("config: unknown store driver %q", cfg.StoreDriver)
}
