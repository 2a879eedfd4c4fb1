package cache

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
)

// DiskCache persists entries as JSON files so scans survive restarts
type DiskCache struct {
	fs  afero.Fs
	dir string
	ttl time.Duration
	now func() time.Time
}

// NewDiskCache creates a disk cache rooted at dir
func NewDiskCache(fs afero.Fs, dir string, ttl time.Duration) *DiskCache {
	return &DiskCache{
		fs:  fs,
		dir: dir,
		ttl: ttl,
		now: time.Now,
	}
}

type cacheEntry struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Get retrieves a value, dropping it when expired
func (c *DiskCache) Get(key string) ([]byte, bool) {
	path := c.path(key)

	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}

	if c.now().After(entry.ExpiresAt) {
		_ = c.fs.Remove(path)
		return nil, false
	}

	return entry.Data, true
}

// Set stores a value; a zero ttl uses the cache default
func (c *DiskCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}

	data, err := json.Marshal(cacheEntry{
		Data:      value,
		ExpiresAt: c.now().Add(ttl),
	})
	if err != nil {
		return errors.Errorf("marshal entry: %w", err)
	}

	if err := c.fs.MkdirAll(c.dir, 0o755); err != nil {
		return errors.Errorf("create cache dir: %w", err)
	}

	if err := afero.WriteFile(c.fs, c.path(key), data, 0o644); err != nil {
		return errors.Errorf("write cache file: %w", err)
	}
	return nil
}

// Delete removes a value from the disk cache
func (c *DiskCache) Delete(key string) error {
	err := c.fs.Remove(c.path(key))
	if err != nil && !errors.Is(err, afero.ErrFileNotFound) {
		return err
	}
	return nil
}

// Clear removes all cached files
func (c *DiskCache) Clear() error {
	return c.fs.RemoveAll(c.dir)
}

func (c *DiskCache) path(key string) string {
	return filepath.Join(c.dir, sanitizeKey(key)+".cache")
}

// sanitizeKey keeps cache file names portable
func sanitizeKey(key string) string {
	out := []byte(key)
	for i, b := range out {
		if b == ':' || b == '/' || b == '\\' {
			out[i] = '_'
		}
	}
	return string(out)
}
