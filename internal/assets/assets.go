// Package assets handles texture lookup in pk3 archives and loose directories.
package assets

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/bspmesh/internal/logger"
)

// ErrNotFound is returned when no source holds the requested file.
var ErrNotFound = errors.New("asset not found")

// source is one searchable container of game files.
type source interface {
	Name() string
	Read(name string) ([]byte, error)
	Close() error
}

// Manager handles asset loading from pk3 archives and directories.
type Manager struct {
	sources []source
	cache   *Cache
	mu      sync.RWMutex
}

// NewManager creates a new asset manager.
func NewManager() *Manager {
	return &Manager{
		cache: NewCache(),
	}
}

// AddArchive adds a pk3 (zip) archive to the manager.
// Sources are searched in reverse order (last added = highest priority).
func (m *Manager) AddArchive(path string) error {
	archive, err := openPK3(path)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", path, err)
	}

	m.add(archive)
	logger.Debug("Added pk3 archive", zap.String("path", path), zap.Int("files", len(archive.files)))
	return nil
}

// AddDir adds a loose directory laid out like a pk3 root.
func (m *Manager) AddDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("opening directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("opening directory %s: not a directory", dir)
	}

	m.add(&dirSource{root: dir})
	return nil
}

func (m *Manager) add(s source) {
	m.mu.Lock()
	m.sources = append(m.sources, s)
	m.mu.Unlock()
}

// Load loads a file by its game path, e.g. "textures/base_wall/metal.tga".
func (m *Manager) Load(name string) ([]byte, error) {
	key := NormalizePath(name)
	if data, ok := m.cache.Get(key); ok {
		return data, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.sources) - 1; i >= 0; i-- {
		data, err := m.sources[i].Read(key)
		if err == nil {
			m.cache.Set(key, data)
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("reading %s from %s: %w", name, m.sources[i].Name(), err)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Close closes all sources.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sources {
		s.Close()
	}
	m.sources = nil
	m.cache.Clear()
}

// CacheStats returns hit and miss counts of the file cache.
func (m *Manager) CacheStats() (hits, misses int) {
	return m.cache.Stats()
}

// NormalizePath converts a game path to the lowercase, slash-separated form
// used as lookup key. Game paths are case-insensitive.
func NormalizePath(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	return strings.ToLower(name)
}

// pk3Source is a zip archive indexed by normalized member path.
type pk3Source struct {
	path  string
	zr    *zip.ReadCloser
	files map[string]*zip.File
}

func openPK3(path string) (*pk3Source, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}

	s := &pk3Source{path: path, zr: zr, files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		s.files[NormalizePath(f.Name)] = f
	}
	return s, nil
}

func (s *pk3Source) Name() string { return s.path }

func (s *pk3Source) Read(name string) ([]byte, error) {
	f, ok := s.files[name]
	if !ok {
		return nil, ErrNotFound
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *pk3Source) Close() error { return s.zr.Close() }

// dirSource reads files below a directory. Lookups try the normalized
// lowercase path first and then a case-insensitive walk of each component.
type dirSource struct {
	root string
}

func (s *dirSource) Name() string { return s.root }

func (s *dirSource) Read(name string) ([]byte, error) {
	full := filepath.Join(s.root, filepath.FromSlash(name))
	data, err := os.ReadFile(full)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	resolved, ok := s.resolveFold(name)
	if !ok {
		return nil, ErrNotFound
	}
	return os.ReadFile(resolved)
}

func (s *dirSource) resolveFold(name string) (string, bool) {
	dir := s.root
	for _, part := range strings.Split(name, "/") {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return "", false
		}
		found := false
		for _, e := range entries {
			if strings.EqualFold(e.Name(), part) {
				dir = filepath.Join(dir, e.Name())
				found = true
				break
			}
		}
		if !found {
			return "", false
		}
	}
	return dir, true
}

func (s *dirSource) Close() error { return nil }

// Cache is a simple in-memory cache for loaded assets.
type Cache struct {
	data map[string][]byte
	mu   sync.Mutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]byte),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
