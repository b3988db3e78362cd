// Package cache remembers files that a rewrite policy left unchanged, so
// later runs can skip them without parsing.
//
// Every other part of a run keeps its state in memory and drops it on exit.
// The cache is the one piece that persists across runs, and only when
// cache.enabled is set.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/Alok/autoflake/internal/sink"
	"github.com/Alok/autoflake/pkg/fixer"
)

// schema is bumped whenever the fixer can change its mind about a file
// it used to leave alone.
const schema = "1"

// Cache is a directory of clean-file entries. The zero value and a nil
// *Cache are disabled.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
	version string
	now     func() time.Time
}

// Entry records that a file with this content was clean under a policy.
type Entry struct {
	Path      string    `json:"path"`
	Digest    string    `json:"digest"`
	Policy    string    `json:"policy"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a new cache instance. Entries written by a build with a
// different version never hit.
func New(dir string, ttlHours int, enabled bool, version string) (*Cache, error) {
	if !enabled {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	return &Cache{
		dir:     dir,
		ttl:     time.Duration(ttlHours) * time.Hour,
		enabled: true,
		version: version,
		now:     time.Now,
	}, nil
}

// Enabled reports whether lookups can hit.
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

// HashBytes computes a BLAKE3 hash of bytes and returns it as a hex string.
func HashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Fingerprint identifies everything that changes which files come out
// clean: the build version and the policy. The symbol lookup is not part of
// it; callers must not cache runs that expand star-imports.
func Fingerprint(p fixer.Policy, version string) string {
	imports := slices.Clone(p.AdditionalImports)
	slices.Sort(imports)
	key := fmt.Sprintf("v%s build=%s imports=%t variables=%t expand=%t aggressive=%t stdlib=%t keepmodule=%t passes=%d extra=%s",
		schema,
		version,
		p.RemoveUnusedImports,
		p.RemoveUnusedVariables,
		p.ExpandStarImports,
		p.ForceAggressive,
		p.StdlibOnly,
		p.KeepModuleImports,
		p.MaxPasses,
		strings.Join(imports, ","),
	)
	return HashBytes([]byte(key))
}

// Fingerprint is the package Fingerprint under the cache's build version.
func (c *Cache) Fingerprint(p fixer.Policy) string {
	var version string
	if c != nil {
		version = c.version
	}
	return Fingerprint(p, version)
}

// IsClean reports whether content at path is known to need no changes
// under the policy fingerprint.
func (c *Cache) IsClean(path string, content []byte, policy string) bool {
	if !c.Enabled() {
		return false
	}

	keyPath, err := c.keyPath(path)
	if err != nil {
		return false
	}
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return false
	}

	if c.ttl > 0 && c.now().Sub(entry.Timestamp) > c.ttl {
		os.Remove(keyPath)
		return false
	}

	return entry.Policy == policy && entry.Digest == HashBytes(content)
}

// MarkClean records content at path as clean under the policy fingerprint.
func (c *Cache) MarkClean(path string, content []byte, policy string) error {
	if !c.Enabled() {
		return nil
	}

	keyPath, err := c.keyPath(path)
	if err != nil {
		return err
	}
	entry := Entry{
		Path:      path,
		Digest:    HashBytes(content),
		Policy:    policy,
		Timestamp: c.now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return sink.WriteAtomic(keyPath, data, 0600)
}

// Invalidate removes the entry for path, if any.
func (c *Cache) Invalidate(path string) error {
	if !c.Enabled() {
		return nil
	}
	keyPath, err := c.keyPath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(keyPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Clear removes all cache entries.
func (c *Cache) Clear() error {
	if !c.Enabled() {
		return nil
	}
	return os.RemoveAll(c.dir)
}

// keyPath names the entry file after a hash of the absolute path.
func (c *Cache) keyPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	hash := blake3.Sum256([]byte(abs))
	return filepath.Join(c.dir, hex.EncodeToString(hash[:])+".json"), nil
}

// Stats returns cache statistics.
type Stats struct {
	Entries   int           `json:"entries" toon:"entries" yaml:"entries"`
	TotalSize int64         `json:"total_size" toon:"total_size" yaml:"total_size"`
	OldestAge time.Duration `json:"oldest_age" toon:"oldest_age" yaml:"oldest_age"`
	NewestAge time.Duration `json:"newest_age" toon:"newest_age" yaml:"newest_age"`
}

// GetStats returns statistics about the cache.
func (c *Cache) GetStats() (*Stats, error) {
	if !c.Enabled() {
		return &Stats{}, nil
	}

	stats := &Stats{}
	var oldest, newest time.Time

	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		stats.Entries++
		stats.TotalSize += info.Size()

		modTime := info.ModTime()
		if oldest.IsZero() || modTime.Before(oldest) {
			oldest = modTime
		}
		if newest.IsZero() || modTime.After(newest) {
			newest = modTime
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !oldest.IsZero() {
		stats.OldestAge = c.now().Sub(oldest)
	}
	if !newest.IsZero() {
		stats.NewestAge = c.now().Sub(newest)
	}
	return stats, nil
}
