package store

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
)

const artifactExt = ".json"

// Dir stores one file per artifact, <dir>/<key>.json. Files are published with
// a write-to-temp-then-rename so readers never see a partial artifact.
type Dir struct {
	dir string
}

// NewDir creates the directory if needed.
func NewDir(dir string) (*Dir, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("store: create cache dir: %w", err)
	}
	return &Dir{dir: dir}, nil
}

// Path returns the file an artifact key is stored in.
func (d *Dir) Path(key string) string {
	return filepath.Join(d.dir, key+artifactExt)
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("store: invalid key %q", key)
	}
	return nil
}

func (d *Dir) Get(key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (d *Dir) Put(key string, data []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := atomic.WriteFile(d.Path(key), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	return nil
}

func (d *Dir) Delete(key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	err := os.Remove(d.Path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (d *Dir) Keys() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, artifactExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, artifactExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes every artifact file. Other files in the directory are left alone.
func (d *Dir) Clear() (int, error) {
	keys, err := d.Keys()
	if err != nil {
		return 0, err
	}
	var errs []error
	n := 0
	for _, key := range keys {
		if err := os.Remove(d.Path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}
