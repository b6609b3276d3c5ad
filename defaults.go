package slotkv

import (
	"os"
	"path/filepath"
)

const (
	defaultNamespace = "default"
	// directory levels for the default topology file cache
	defaultCacheLevels = 1
)

// DefaultCacheDir is where the topology file cache lives when Options.CacheDir is empty.
func DefaultCacheDir() string { return filepath.Join(os.TempDir(), "slotkv") }

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
