package enrich

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/nao1215/siteaudit/internal/model"
)

// maxCacheLine bounds a single cache line.
const maxCacheLine = 1024 * 1024

// cacheEntry is one line of the cache file.
type cacheEntry struct {
	Key   string `json:"k"`
	Value Result `json:"v"`
}

// SignatureKey returns the cache key for a finding signature.
func SignatureKey(signature string) string {
	sum := sha3.Sum256([]byte(signature))
	return hex.EncodeToString(sum[:])
}

// Cache is an append-only JSONL store of remote results keyed by finding
// signature. It is safe for concurrent use.
type Cache struct {
	path    string
	mu      sync.Mutex
	entries map[string]Result
	logger  *slog.Logger
}

// NewMemoryCache returns a cache that is never written to disk.
func NewMemoryCache() *Cache {
	return &Cache{
		entries: make(map[string]Result),
		logger:  slog.Default(),
	}
}

// LoadCache reads the cache at path. A missing file yields an empty cache.
// Lines that do not decode are skipped with a warning, and later lines
// overwrite earlier ones for the same key.
func LoadCache(path string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		path:    path,
		entries: make(map[string]Result),
		logger:  logger,
	}

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxCacheLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var entry cacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil || entry.Key == "" {
			logger.Warn("skipping corrupt cache line", "path", path, "line", line)
			continue
		}
		c.entries[entry.Key] = entry.Value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	logger.Debug("loaded enrichment cache", "path", path, "entries", len(c.entries))
	return c, nil
}

// Get returns the cached result for f.
func (c *Cache) Get(f *model.Finding) (Result, bool) {
	key := SignatureKey(f.Signature())

	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[key]
	return res, ok
}

// Put records res for f and appends it to the cache file.
func (c *Cache) Put(f *model.Finding, res Result) error {
	entry := cacheEntry{Key: SignatureKey(f.Signature()), Value: res}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[entry.Key] = res
	if c.path == "" {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	file, err := os.OpenFile(filepath.Clean(c.path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to append cache entry: %w", err)
	}
	return file.Close()
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Path returns the cache file path, empty for a memory cache.
func (c *Cache) Path() string {
	return c.path
}
