// Package cache provides the key-value store the disk caches are built on,
// with a filesystem backend for real runs and an in-memory backend for tests.
package cache

import "errors"

// ErrNotFound is returned by Get when the key has no entry.
var ErrNotFound = errors.New("cache entry not found")

// Store is a small key-value surface. Keys are relative slash-separated
// paths; Keys interprets its prefix as a directory.
type Store interface {
	// Get returns the data stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)
	// Put stores data under key, creating parents as needed.
	Put(key string, data []byte) error
	// Exists reports whether key has an entry.
	Exists(key string) bool
	// Keys lists every key under the given directory prefix. A missing
	// prefix yields an empty list, not an error.
	Keys(prefix string) ([]string, error)
	// Delete removes the entry under key. Deleting a missing key is not an error.
	Delete(key string) error
}
