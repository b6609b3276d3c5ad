// Package filecache is a local TTL cache that keeps one file per entry.
//
// The file modification time is the absolute expiry: an entry whose mtime is not
// strictly in the future is absent. Writes go to a temp file that is stamped
// before it is renamed into place, so readers never see partial content or a
// missing expiry. Many processes may share one directory.
//
// Expired files are removed lazily by Get, and in bulk by Sweep. Each Set may
// trigger one sweep with a small probability; that is a maintenance trigger for
// reclaiming disk space, not something correctness depends on.
package filecache

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/slotkv/hooks"
	"github.com/unkn0wn-root/slotkv/internal/util"
	"github.com/unkn0wn-root/slotkv/log"
)

const (
	// LongTTL replaces non-positive TTLs: long-lived, not forever.
	LongTTL = 365 * 24 * time.Hour

	defaultSuffix        = ".bin"
	defaultGCProbability = 0.0001
	tempPrefix           = ".tmp-"
	staleTempAge         = time.Hour
)

// Options configure a Cache. Only Dir is required.
type Options struct {
	Dir            string        // root directory; created if missing
	DirectoryLevel int           // nested two-char prefix directories; 0 = flat
	Suffix         string        // file suffix; "" => ".bin"
	KeyPrefix      string        // prepended to every key before hashing
	RawKeys        bool          // use keys as file names instead of hashing them
	GCProbability  float64       // chance per Set to sweep first; 0 => 0.0001
	DisableGC      bool          // never sweep from Set
	SweepInterval  time.Duration // > 0 starts a background sweeper until Close
	Logger         log.Logger
	Hooks          hooks.Hooks
	Now            func() time.Time // clock; nil => time.Now
}

// Cache is safe for concurrent use by multiple goroutines and processes.
type Cache struct {
	dir      string
	level    int
	suffix   string
	prefix   string
	rawKeys  bool
	gcProb   float64
	gcOff    bool
	log      log.Logger
	hooks    hooks.Hooks
	now      func() time.Time
	gced     atomic.Bool
	randFunc func() float64

	ticker    *time.Ticker
	stopCh    chan struct{}
	closeWg   sync.WaitGroup
	closeOnce sync.Once
}

// New creates the cache directory and, if SweepInterval is set, the sweeper.
func New(opts Options) (*Cache, error) {
	if opts.Dir == "" {
		return nil, errors.New("filecache: dir is required")
	}
	if opts.DirectoryLevel < 0 {
		return nil, fmt.Errorf("filecache: negative directory level %d", opts.DirectoryLevel)
	}
	if opts.GCProbability < 0 || opts.GCProbability > 1 {
		return nil, fmt.Errorf("filecache: gc probability %v outside [0,1]", opts.GCProbability)
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("filecache: create dir: %w", err)
	}

	c := &Cache{
		dir:      opts.Dir,
		level:    opts.DirectoryLevel,
		suffix:   opts.Suffix,
		prefix:   opts.KeyPrefix,
		rawKeys:  opts.RawKeys,
		gcProb:   opts.GCProbability,
		gcOff:    opts.DisableGC,
		log:      log.OrNop(opts.Logger),
		hooks:    hooks.OrNop(opts.Hooks),
		now:      opts.Now,
		randFunc: rand.Float64,
	}
	if c.suffix == "" {
		c.suffix = defaultSuffix
	}
	if c.gcProb == 0 {
		c.gcProb = defaultGCProbability
	}
	if c.now == nil {
		c.now = time.Now
	}

	if opts.SweepInterval > 0 {
		c.ticker = time.NewTicker(opts.SweepInterval)
		c.stopCh = make(chan struct{})
		c.closeWg.Add(1)
		go c.sweepLoop()
	}
	return c, nil
}

// Dir returns the root directory.
func (c *Cache) Dir() string { return c.dir }

// Set stores value under key for ttl (<= 0 means LongTTL).
// It returns false on any filesystem failure; errors are logged, never returned.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) bool {
	if !c.gcOff && !c.gced.Load() && c.randFunc() < c.gcProb {
		if c.gced.CompareAndSwap(false, true) {
			_, _ = c.Sweep()
		}
	}
	if ttl <= 0 {
		ttl = LongTTL
	}

	path, err := c.path(key)
	if err != nil {
		c.writeFailed(key, err)
		return false
	}
	if err := c.writeFile(path, value, c.now().Add(ttl)); err != nil {
		c.writeFailed(key, err)
		return false
	}
	return true
}

// Get returns the value for key if its expiry is still in the future.
// An expired file is removed and reported as a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	path, err := c.path(key)
	if err != nil {
		return nil, false
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if !fi.ModTime().After(c.now()) {
		c.remove(path)
		return nil, false
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return b, true
}

// Delete removes the entry for key. A missing entry is not an error.
func (c *Cache) Delete(key string) bool {
	path, err := c.path(key)
	if err != nil {
		return false
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.log.Warn("filecache: delete failed", log.Fields{"path": path, "err": err})
		return false
	}
	return true
}

// Sweep walks the cache tree and removes every entry whose expiry has passed,
// plus temp files abandoned by crashed writers. Entries removed concurrently by
// another process are skipped.
func (c *Cache) Sweep() (int, error) {
	now := c.now()
	removed := 0
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		isTemp := strings.HasPrefix(name, tempPrefix)
		if !isTemp && !strings.HasSuffix(name, c.suffix) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		expired := !fi.ModTime().After(now)
		if isTemp {
			expired = now.Sub(fi.ModTime()) > staleTempAge
		}
		if !expired {
			return nil
		}
		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		c.log.Warn("filecache: sweep failed", log.Fields{"dir": c.dir, "removed": removed, "err": err})
	} else if removed > 0 {
		c.log.Debug("filecache: sweep removed expired entries", log.Fields{"removed": removed})
	}
	c.hooks.SweepCompleted(removed, err)
	return removed, err
}

// Close stops the background sweeper, if any. Safe to call more than once.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		if c.stopCh != nil {
			close(c.stopCh)
			c.closeWg.Wait()
			c.ticker.Stop()
		}
	})
	return nil
}

// Path returns the file that backs key.
func (c *Cache) Path(key string) (string, error) { return c.path(key) }

func (c *Cache) path(key string) (string, error) {
	name := c.prefix + key
	if !c.rawKeys {
		name = util.HashKey(c.prefix, key)
	} else if key == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) ||
		strings.HasPrefix(name, tempPrefix) {
		return "", fmt.Errorf("filecache: key %q is not a valid file name", name)
	}

	if c.level <= 0 {
		return filepath.Join(c.dir, name+c.suffix), nil
	}
	parts := make([]string, 0, c.level+2)
	parts = append(parts, c.dir)
	for i := 0; i < c.level; i++ {
		lo := 2 * i
		if lo >= len(name) {
			break
		}
		parts = append(parts, name[lo:min(lo+2, len(name))])
	}
	parts = append(parts, name+c.suffix)
	return filepath.Join(parts...), nil
}

// writeFile commits content and expiry on a temp file, then renames it over path.
func (c *Cache) writeFile(path string, value []byte, expiresAt time.Time) error {
	dir := filepath.Dir(path)
	if c.level > 0 {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	cleanup := func(err error) error {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if _, err := f.Write(value); err != nil {
		return cleanup(err)
	}
	if err := f.Chmod(0o644); err != nil {
		return cleanup(err)
	}
	if err := f.Close(); err != nil {
		return cleanup(err)
	}
	if err := os.Chtimes(tmp, expiresAt, expiresAt); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (c *Cache) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.log.Debug("filecache: remove expired failed", log.Fields{"path": path, "err": err})
	}
}

func (c *Cache) writeFailed(key string, err error) {
	c.log.Warn("filecache: write failed", log.Fields{"key": key, "err": err})
	c.hooks.CacheWriteFailed(key, err)
}

func (c *Cache) sweepLoop() {
	defer c.closeWg.Done()
	for {
		select {
		case <-c.ticker.C:
			_, _ = c.Sweep()
		case <-c.stopCh:
			return
		}
	}
}
