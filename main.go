// Command bladeview renders, inspects and serves Blade templates.
//
//	bladeview [-config blade.yaml] render [-data data.yaml] <view>
//	bladeview [-config blade.yaml] compile <view>
//	bladeview [-config blade.yaml] validate
//	bladeview [-config blade.yaml] clear-cache
//	bladeview [-config blade.yaml] serve [-addr :5004]
package main

import (
	"embed"
	"flag"
	"fmt"
	fsys "io/fs"
	"log"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"blade_view/engine"
)

// Embed templates at build time
//
//go:embed templates
var embeddedTemplates embed.FS

func main() {
	configPath := flag.String("config", "", "YAML config file (BLADE_* env vars override it)")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := engine.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	// Root the FS at templates/ so view ids like "home" work
	if sub, err := fsys.Sub(embeddedTemplates, "templates"); err == nil {
		cfg.EmbeddedFS = sub
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "render":
		runRender(cfg, args)
	case "compile":
		runCompile(cfg, args)
	case "validate":
		runValidate(cfg)
	case "clear-cache":
		runClearCache(cfg)
	case "serve":
		runServe(cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: bladeview [-config file] <render|compile|validate|clear-cache|serve> [args]")
	flag.PrintDefaults()
}

func newEngine(cfg engine.BladeConfig) *engine.BladeEngine {
	be, err := engine.NewBladeEngineWithConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}
	return be
}

func runRender(cfg engine.BladeConfig, args []string) {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	dataPath := fs.String("data", "", "YAML or JSON file with the template data")
	output := fs.String("output", "", "output file (stdout if empty)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatalf("render expects exactly one view id")
	}

	data := map[string]interface{}{}
	if *dataPath != "" {
		raw, err := os.ReadFile(*dataPath)
		if err != nil {
			log.Fatalf("Failed to read data: %v", err)
		}
		if err := yaml.Unmarshal(raw, &data); err != nil {
			log.Fatalf("Failed to parse data %s: %v", *dataPath, err)
		}
	}

	cfg.SkipPreload = true
	be := newEngine(cfg)
	defer be.Close()

	out, err := be.RenderString(fs.Arg(0), data)
	if err != nil {
		log.Fatalf("Failed to render %s: %v", fs.Arg(0), err)
	}
	if *output != "" {
		if err := os.WriteFile(*output, []byte(out), 0o644); err != nil {
			log.Fatalf("Failed to write output: %v", err)
		}
		fmt.Printf("View written to %s\n", *output)
		return
	}
	fmt.Print(out)
}

func runCompile(cfg engine.BladeConfig, args []string) {
	if len(args) != 1 {
		log.Fatalf("compile expects exactly one view id")
	}
	cfg.SkipPreload = true
	cfg.CacheEnabled = false
	be := newEngine(cfg)
	defer be.Close()
	if err := be.DebugTemplate(args[0], os.Stdout); err != nil {
		log.Fatalf("Debug error: %v", err)
	}
}

func runValidate(cfg engine.BladeConfig) {
	cfg.SkipPreload = true
	cfg.CacheEnabled = false
	be := newEngine(cfg)
	defer be.Close()
	if err := be.ValidateAllTemplates(); err != nil {
		log.Fatalf("Template validation errors: %v", err)
	}
	ids, _ := be.Templates()
	fmt.Printf("%d templates OK\n", len(ids))
}

func runClearCache(cfg engine.BladeConfig) {
	cfg.SkipPreload = true
	cfg.CacheEnabled = true
	be := newEngine(cfg)
	defer be.Close()
	n, err := be.ClearCache()
	if err != nil {
		log.Fatalf("Failed to clear cache: %v", err)
	}
	fmt.Printf("Removed %d compiled templates\n", n)
}

type User struct {
	Name    string
	Email   string
	IsAdmin bool
}

type Feature struct {
	Title       string
	Description string
}

func demoData() map[string]interface{} {
	return map[string]interface{}{
		"title":   "Blade View",
		"version": "2.0.0",
		"showNav": true,
		"features": []Feature{
			{Title: "Layouts", Description: "@extends, @section and @yield"},
			{Title: "Escaping", Description: "{{ }} output is HTML escaped"},
			{Title: "Caching", Description: "compiled programs are reused until the source changes"},
		},
		"users": []User{
			{Name: "John Doe", Email: "john@example.com", IsAdmin: true},
			{Name: "Jane Roe", Email: "jane@example.com"},
		},
	}
}

func runServe(cfg engine.BladeConfig, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":5004", "listen address")
	fs.Parse(args)

	be := newEngine(cfg)
	defer be.Close()

	if err := be.ValidateAllTemplates(); err != nil {
		log.Printf("Template validation errors: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /cache-stats", be.CacheStatsHTTPHandler())
	mux.HandleFunc("GET /clear-cache", be.ClearCacheHTTPHandler())
	mux.HandleFunc("POST /clear-cache", be.ClearCacheHTTPHandler())
	mux.HandleFunc("GET /{view...}", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		view := r.PathValue("view")
		if view == "" {
			view = "home"
		}
		if !be.Exists(view) {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := be.Render(w, view, demoData()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		log.Printf("Rendered %s in %v", view, time.Since(start))
	})

	fmt.Printf("Server running on http://localhost%s\n", *addr)
	log.Fatal(http.ListenAndServe(*addr, mux))
}
