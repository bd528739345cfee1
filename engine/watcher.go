package engine

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher watches template files and drops their compiled artifacts on changes
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	blade    *BladeEngine
	watchDir string
	ext      string
	logger   *slog.Logger

	started  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(blade *BladeEngine, watchDir string) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &FileWatcher{
		watcher:  watcher,
		blade:    blade,
		watchDir: watchDir,
		ext:      blade.loader.Extension(),
		logger:   blade.logger,
		done:     make(chan struct{}),
	}

	// Thêm các thư mục để watch
	if err := fw.addWatchRecursive(watchDir); err != nil {
		watcher.Close()
		return nil, err
	}

	return fw, nil
}

// addWatchRecursive adds directories to watch recursively
func (fw *FileWatcher) addWatchRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return fw.watcher.Add(path)
		}

		return nil
	})
}

// Start starts watching
func (fw *FileWatcher) Start() {
	if !fw.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(fw.done)
		for {
			select {
			case event, ok := <-fw.watcher.Events:
				if !ok {
					return
				}
				fw.handle(event)

			case err, ok := <-fw.watcher.Errors:
				if !ok {
					return
				}
				fw.logger.Warn("template watcher error", "error", err)
			}
		}
	}()
}

func (fw *FileWatcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.addWatchRecursive(event.Name); err != nil {
				fw.logger.Warn("could not watch new directory", "dir", event.Name, "error", err)
			}
			return
		}
	}
	if !fw.isTemplateFile(event.Name) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	relPath, err := filepath.Rel(fw.watchDir, event.Name)
	if err != nil || strings.HasPrefix(relPath, "..") {
		fw.logger.Info("template changed outside the templates dir, clearing cache", "file", event.Name)
		if _, err := fw.blade.ClearCache(); err != nil {
			fw.logger.Warn("clearing cache failed", "error", err)
		}
		return
	}
	viewID := fw.blade.loader.ViewID(filepath.ToSlash(relPath))
	fw.logger.Info("template changed", "view", viewID, "op", event.Op.String())
	fw.blade.ClearCacheFor(viewID)
}

// isTemplateFile checks if a file is a template file
func (fw *FileWatcher) isTemplateFile(filename string) bool {
	return strings.HasSuffix(filename, fw.ext)
}

// Stop watching and wait for the event loop to exit.
func (fw *FileWatcher) Stop() {
	fw.stopOnce.Do(func() {
		fw.watcher.Close()
		if fw.started.Load() {
			<-fw.done
		}
	})
}

// ClearCacheFor removes a specific template from the memory cache and the store
func (b *BladeEngine) ClearCacheFor(name string) {
	id, err := b.viewID(name)
	if err != nil {
		return
	}
	b.cache.Remove(id)
}
