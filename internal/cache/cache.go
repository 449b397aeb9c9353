// Package cache implements the content-addressed artifact cache: a
// deterministic mapping from fingerprint to previously produced outputs,
// with single-flight production and LRU-by-size eviction. Grounded on
// _examples/original_source/src/vs/compiler.rs's `self.cache.run_cached(...)`
// call shape.
package cache

import (
	"bytes"
	"container/list"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cristim/octobuild"
	"github.com/google/renameio"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/singleflight"
)

// Bundle is everything a cached (or freshly produced) task invocation
// yields: stdio, exit status, and named output files.
type Bundle struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode *int
	Outputs  map[string][]byte // logical name -> contents
}

// jsonBundle is Bundle's on-disk envelope; Outputs are stored inline since
// bundles in this cache are compiler intermediates, not multi-gigabyte
// artifacts.
type jsonBundle struct {
	Stdout   []byte            `json:"stdout"`
	Stderr   []byte            `json:"stderr"`
	ExitCode *int              `json:"exit_code"`
	Outputs  map[string][]byte `json:"outputs"`
}

// Cache is a directory of gzip-compressed, content-addressed bundle files
// plus an in-memory LRU-by-size index. Corrupted entries (failed gzip/JSON
// decode) are treated as a miss and removed.
type Cache struct {
	dir      string
	maxBytes int64

	mu      sync.Mutex
	lru     *list.List // front = most recently used
	entries map[string]*list.Element
	size    int64

	group singleflight.Group
}

type lruEntry struct {
	fingerprint string
	bytes       int64
}

// New returns a cache rooted at dir with a total size budget of maxBytes.
// dir is created if it doesn't exist.
func New(dir string, maxBytes int64) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	c := &Cache{
		dir:      dir,
		maxBytes: maxBytes,
		lru:      list.New(),
		entries:  make(map[string]*list.Element),
	}
	c.loadIndex()
	return c, nil
}

func (c *Cache) path(fingerprint string) string {
	// two-level fan-out like a typical content-addressed store, avoids
	// one directory with millions of entries.
	if len(fingerprint) < 2 {
		return filepath.Join(c.dir, fingerprint)
	}
	return filepath.Join(c.dir, fingerprint[:2], fingerprint)
}

// loadIndex rebuilds the recency list from whatever is on disk, ordered by
// modification time so the oldest files are evicted first, so
// freshly-started processes still evict sensibly. Best-effort: read errors
// just mean a cold cache.
func (c *Cache) loadIndex() {
	type found struct {
		fp    string
		bytes int64
		mod   time.Time
	}
	var all []found
	filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		all = append(all, found{fp: filepath.Base(path), bytes: info.Size(), mod: info.ModTime()})
		return nil
	})
	// Newest first: PushBack below then leaves the oldest at the back,
	// where Cleanup evicts from.
	sort.Slice(all, func(i, j int) bool { return all[i].mod.After(all[j].mod) })
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range all {
		el := c.lru.PushBack(&lruEntry{fingerprint: f.fp, bytes: f.bytes})
		c.entries[f.fp] = el
		c.size += f.bytes
	}
}

// RunCached looks up fingerprint. On a hit it returns the stored bundle. On
// a miss it invokes produce, stores the result (on success only; a failed
// produce is never cached), and returns it. At most one produce runs
// concurrently per fingerprint within this process; other callers for the
// same fingerprint block and observe the same result.
func (c *Cache) RunCached(fingerprint string, produce func() (Bundle, error)) (Bundle, bool, error) {
	if b, ok := c.lookup(fingerprint); ok {
		return b, true, nil
	}

	v, err, _ := c.group.Do(fingerprint, func() (interface{}, error) {
		// Re-check: another caller may have populated it while we queued
		// behind the singleflight lock for a *different* fingerprint's
		// goroutine scheduling, or this goroutine itself lost a race to
		// insert below.
		if b, ok := c.lookup(fingerprint); ok {
			return b, nil
		}
		b, err := produce()
		if err != nil {
			return b, err
		}
		c.insert(fingerprint, b)
		return b, nil
	})
	if err != nil {
		bundle, _ := v.(Bundle)
		return bundle, false, err
	}
	return v.(Bundle), false, nil
}

func (c *Cache) lookup(fingerprint string) (Bundle, bool) {
	c.mu.Lock()
	el, ok := c.entries[fingerprint]
	if ok {
		c.lru.MoveToFront(el)
	}
	c.mu.Unlock()
	if !ok {
		return Bundle{}, false
	}

	b, err := c.read(fingerprint)
	if err != nil {
		c.remove(fingerprint) // corrupted entry: treat as miss, evict it
		return Bundle{}, false
	}
	return b, true
}

func (c *Cache) read(fingerprint string) (Bundle, error) {
	f, err := os.Open(c.path(fingerprint))
	if err != nil {
		return Bundle{}, err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return Bundle{}, octobuild.ErrCacheCorrupt
	}
	defer zr.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, zr); err != nil {
		return Bundle{}, octobuild.ErrCacheCorrupt
	}
	var jb jsonBundle
	if err := json.Unmarshal(buf.Bytes(), &jb); err != nil {
		return Bundle{}, octobuild.ErrCacheCorrupt
	}
	return Bundle{Stdout: jb.Stdout, Stderr: jb.Stderr, ExitCode: jb.ExitCode, Outputs: jb.Outputs}, nil
}

func (c *Cache) insert(fingerprint string, b Bundle) {
	jb := jsonBundle{Stdout: b.Stdout, Stderr: b.Stderr, ExitCode: b.ExitCode, Outputs: b.Outputs}
	raw, err := json.Marshal(jb)
	if err != nil {
		return
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write(raw)
	zw.Close()

	path := c.path(fingerprint)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	// Atomic write-then-rename: a crash mid-insert must never leave a
	// partially-written file that a later read sees as corrupt-but-present.
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return
	}

	c.mu.Lock()
	if old, ok := c.entries[fingerprint]; ok {
		c.size -= old.Value.(*lruEntry).bytes
		c.lru.Remove(old)
	}
	el := c.lru.PushFront(&lruEntry{fingerprint: fingerprint, bytes: int64(buf.Len())})
	c.entries[fingerprint] = el
	c.size += int64(buf.Len())
	c.mu.Unlock()

	c.Cleanup()
}

func (c *Cache) remove(fingerprint string) {
	c.mu.Lock()
	if el, ok := c.entries[fingerprint]; ok {
		c.size -= el.Value.(*lruEntry).bytes
		c.lru.Remove(el)
		delete(c.entries, fingerprint)
	}
	c.mu.Unlock()
	os.Remove(c.path(fingerprint))
}

// Cleanup evicts least-recently-used entries until the cache is within its
// size budget. It is called opportunistically after every insert, and may
// also be called explicitly (e.g. at process exit), mirroring the
// original's cache.cleanup() surface. LRU-by-size is this implementation's
// chosen eviction policy.
func (c *Cache) Cleanup() {
	for {
		c.mu.Lock()
		if c.maxBytes <= 0 || c.size <= c.maxBytes {
			c.mu.Unlock()
			return
		}
		back := c.lru.Back()
		if back == nil {
			c.mu.Unlock()
			return
		}
		entry := back.Value.(*lruEntry)
		c.lru.Remove(back)
		delete(c.entries, entry.fingerprint)
		c.size -= entry.bytes
		c.mu.Unlock()
		os.Remove(c.path(entry.fingerprint))
	}
}
