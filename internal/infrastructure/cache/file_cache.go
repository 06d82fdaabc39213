// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package cache holds the md5 -> object path cache used to deduplicate uploads.
package cache

import (
	"log/slog"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

// FileCache is an LRU bounded map from content md5 to object path
type FileCache struct {
	// mu serializes writers so conditional removal and rebuilds see a stable view
	mu     sync.Mutex
	cache  *lru.Cache[string, string]
	size   int
	logger *slog.Logger
}

// NewFileCache creates a cache holding at most size entries
func NewFileCache(size int, logger *slog.Logger) *FileCache {
	if size <= 0 {
		size = constants.DefaultCacheSize
	}
	cache, _ := lru.New[string, string](size)
	return &FileCache{
		cache:  cache,
		size:   size,
		logger: logging.WithComponent(logger, constants.ComponentCache),
	}
}

// Get returns the object path recorded for md5
func (c *FileCache) Get(md5 string) (string, bool) {
	return c.cache.Get(normalize(md5))
}

// Put records path for md5; blank keys or paths are ignored
func (c *FileCache) Put(md5, path string) {
	key := normalize(md5)
	if key == "" || path == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if evicted := c.cache.Add(key, path); evicted {
		c.logger.Debug("File cache full, evicted oldest entry", "size", c.size)
	}
}

// Remove forgets md5
func (c *FileCache) Remove(md5 string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(normalize(md5))
}

// RemoveIf forgets md5 when it still points at path and reports whether it did
func (c *FileCache) RemoveIf(md5, path string) bool {
	key := normalize(md5)
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.cache.Peek(key); !ok || current != path {
		return false
	}
	return c.cache.Remove(key)
}

// Replace drops every entry and loads entries in their place
func (c *FileCache) Replace(entries map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
	for md5, path := range entries {
		key := normalize(md5)
		if key == "" || path == "" {
			continue
		}
		c.cache.Add(key, path)
	}
	c.logger.Debug("File cache rebuilt", "entries", c.cache.Len())
}

// Len returns the number of cached entries
func (c *FileCache) Len() int {
	return c.cache.Len()
}

// Purge drops every entry
func (c *FileCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}

// GetMetrics returns cache metrics for monitoring
func (c *FileCache) GetMetrics() map[string]any {
	return map[string]any{
		"entries":  c.cache.Len(),
		"capacity": c.size,
	}
}

func normalize(md5 string) string {
	return strings.ToLower(strings.TrimSpace(md5))
}
