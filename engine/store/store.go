// Package store persists compiled template artifacts. Keys are opaque strings
// (the engine uses a hash of the view id); values are encoded artifacts.
package store

import "errors"

// ErrNotFound is returned by Get when no artifact is stored under a key.
var ErrNotFound = errors.New("store: artifact not found")

// Store is a key/value backend for compiled artifacts. Implementations must be
// safe for concurrent use and must never expose a partially written value.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
	Delete(key string) error
	Keys() ([]string, error)
	// Clear removes every artifact and reports how many were removed.
	Clear() (int, error)
}
