package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ppiankov/tokenatlas/internal/model"
	"github.com/spf13/afero"
)

// Cache stores encoded scan results with a time-to-live
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a cache key from the parts identifying a scan
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return "tokenatlas:v1:" + hex.EncodeToString(hash[:])
}

// New builds the cache described by cfg. A disabled cache returns nil,
// which callers treat as "no caching".
func New(cfg model.CacheConfig, fs afero.Fs) Cache {
	if !cfg.Enabled {
		return nil
	}
	memoryTTL := cfg.MemoryTTL
	if memoryTTL <= 0 {
		memoryTTL = cfg.TTL
	}
	if cfg.Dir == "" {
		return NewMemoryCache(memoryTTL, time.Minute)
	}
	return NewLayeredCache(memoryTTL, fs, cfg.Dir, cfg.TTL)
}
