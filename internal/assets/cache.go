package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/git-pkgs/assetd/internal/metrics"
)

// maxCacheEntries bounds the entry count independently of the byte budget.
const maxCacheEntries = 8192

// Cache keeps small assets in memory.
//
// Resolve always consults the wrapped source, so a cached entry is only
// served while its size and modification time still match what the source
// reports. Concurrent misses for the same asset share a single read.
type Cache struct {
	src      Source
	maxSize  int64
	maxEntry int64

	mu      sync.Mutex
	entries *lru.Cache[string, *cacheEntry]
	size    int64

	group singleflight.Group
}

type cacheEntry struct {
	size    int64
	modTime time.Time
	data    []byte
}

// NewCache wraps src with an in-memory cache holding at most maxSize bytes.
// Assets larger than maxEntrySize are never cached; a non-positive
// maxEntrySize means maxSize.
func NewCache(src Source, maxSize, maxEntrySize int64) (*Cache, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxSize)
	}
	if maxEntrySize <= 0 || maxEntrySize > maxSize {
		maxEntrySize = maxSize
	}

	c := &Cache{
		src:      src,
		maxSize:  maxSize,
		maxEntry: maxEntrySize,
	}

	entries, err := lru.NewWithEvict(maxCacheEntries, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("creating lru: %w", err)
	}
	c.entries = entries

	return c, nil
}

// Resolve resolves through the wrapped source and serves content from
// memory when possible.
func (c *Cache) Resolve(ctx context.Context, segments []string) (*Asset, error) {
	a, err := c.src.Resolve(ctx, segments)
	if err != nil {
		return nil, err
	}
	if a.Size > c.maxEntry {
		return a, nil
	}

	return a.withOpen(func(ctx context.Context) (io.ReadSeekCloser, error) {
		data, err := c.load(ctx, a)
		if err != nil {
			return nil, err
		}
		return memReader{bytes.NewReader(data)}, nil
	}), nil
}

// Close purges the cache and closes the wrapped source.
func (c *Cache) Close() error {
	c.mu.Lock()
	c.entries.Purge()
	c.report()
	c.mu.Unlock()
	return c.src.Close()
}

// Len returns the number of cached assets.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Size returns the number of bytes held by the cache.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *Cache) load(ctx context.Context, a *Asset) ([]byte, error) {
	if data, ok := c.get(a); ok {
		metrics.RecordCacheHit()
		return data, nil
	}
	metrics.RecordCacheMiss()

	key := a.Name + "\x00" + strconv.FormatInt(a.Size, 10) + "\x00" + strconv.FormatInt(a.ModTime.UnixNano(), 10)
	v, err, _ := c.group.Do(key, func() (any, error) {
		// Shared by every waiter, so one client going away must not fail the rest.
		rc, err := a.Open(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		defer func() { _ = rc.Close() }()

		data, err := io.ReadAll(io.LimitReader(rc, a.Size+1))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", a.Name, err)
		}

		// A length mismatch means the file changed under us; serve what we
		// read but do not keep it.
		if int64(len(data)) == a.Size {
			c.put(a, data)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Cache) get(a *Asset) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(a.Name)
	if !ok {
		return nil, false
	}
	if e.size != a.Size || !e.modTime.Equal(a.ModTime) {
		c.entries.Remove(a.Name)
		c.report()
		return nil, false
	}
	return e.data, true
}

func (c *Cache) put(a *Asset, data []byte) {
	n := int64(len(data))
	if n > c.maxEntry {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Remove(a.Name)
	for c.size+n > c.maxSize {
		if _, _, ok := c.entries.RemoveOldest(); !ok {
			break
		}
	}

	c.entries.Add(a.Name, &cacheEntry{size: a.Size, modTime: a.ModTime, data: data})
	c.size += n
	c.report()
}

// onEvict runs synchronously inside lru calls made with c.mu held.
func (c *Cache) onEvict(_ string, e *cacheEntry) {
	c.size -= int64(len(e.data))
}

func (c *Cache) report() {
	metrics.UpdateCacheStats(c.size, c.entries.Len())
}

// memReader adapts a bytes.Reader to io.ReadSeekCloser.
type memReader struct {
	*bytes.Reader
}

func (memReader) Close() error { return nil }
