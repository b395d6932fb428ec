package mapcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultExpiry is how long a cached location stays valid.
	DefaultExpiry = 30 * 24 * time.Hour

	// file names are kept for layout compatibility, the blob format is opaque to the store
	GraphFile = "graph.pkl"
	WaterFile = "water.pkl"
	ParksFile = "parks.pkl"
	MetaFile  = "meta.json"

	tmpPrefix = ".tmp-"
	oldPrefix = ".old-"
	lockCount = 64
)

// requiredFiles must all exist for an entry to be valid.
var requiredFiles = []string{GraphFile, MetaFile}

type Option func(s *Store)

func WithExpiry(expiry time.Duration) Option {
	return func(s *Store) {
		s.expiry = expiry
	}
}

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is a directory of cached map data, one sub directory per key.
// It never returns errors to callers: every failure is a miss or false.
type Store struct {
	root   string
	expiry time.Duration
	now    func() time.Time
	locks  [lockCount]sync.Mutex
	log    *zap.SugaredLogger
}

func NewStore(root string, opts ...Option) *Store {
	s := &Store{
		root:   root,
		expiry: DefaultExpiry,
		now:    time.Now,
		log:    zap.S().Named("map_cache"),
	}
	for _, o := range opts {
		o(s)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		s.log.Warnw("failed to create cache root", "root", root, "error", err)
	}
	return s
}

func (s *Store) Root() string {
	return s.root
}

// Path returns the directory of an entry. Invalid keys are escaped so the result always
// stays inside the root, the store itself never reads or writes them.
func (s *Store) Path(key Key) string {
	if !key.Valid() {
		return filepath.Join(s.root, escape(string(key)))
	}
	return filepath.Join(s.root, string(key))
}

// lock serializes writers of the same key.
func (s *Store) lock(key Key) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &s.locks[h.Sum32()%lockCount]
	m.Lock()
	return m.Unlock
}

// IsValid reports whether the entry has its metadata and graph and is younger than the expiry.
func (s *Store) IsValid(key Key) bool {
	_, ok := s.validMeta(key)
	return ok
}

func (s *Store) validMeta(key Key) (*Meta, bool) {
	if !key.Valid() {
		s.log.Debugw("invalid cache key", "key", key)
		return nil, false
	}
	dir := s.Path(key)

	meta, err := readMeta(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Debugw("cache validation error", "key", key, "error", err)
		}
		return nil, false
	}

	if !s.now().Before(meta.CachedAt.Add(s.expiry)) {
		s.log.Debugw("cache expired", "key", key, "cached_at", meta.CachedAt.Time)
		return nil, false
	}

	for _, name := range requiredFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			s.log.Debugw("cache entry incomplete", "key", key, "missing", name)
			return nil, false
		}
	}

	return meta, true
}

// Load returns the entry for key, or false on a miss. Expired, incomplete and unreadable
// entries are misses.
func (s *Store) Load(key Key) (*Entry, bool) {
	meta, ok := s.validMeta(key)
	if !ok {
		return nil, false
	}

	dir := s.Path(key)
	graph, err := os.ReadFile(filepath.Join(dir, GraphFile))
	if err != nil {
		s.log.Debugw("cache load error", "key", key, "error", err)
		return nil, false
	}

	water, err := readOptional(filepath.Join(dir, WaterFile))
	if err != nil {
		s.log.Debugw("cache load error", "key", key, "error", err)
		return nil, false
	}

	parks, err := readOptional(filepath.Join(dir, ParksFile))
	if err != nil {
		s.log.Debugw("cache load error", "key", key, "error", err)
		return nil, false
	}

	return &Entry{
		Graph:    graph,
		Water:    water,
		Parks:    parks,
		Coords:   meta.Coords,
		City:     meta.City,
		Country:  meta.Country,
		Distance: meta.Distance,
		CachedAt: meta.CachedAt.Time,
	}, true
}

// Save writes the entry, replacing whatever was cached under key. The files are written to a
// temporary directory which is renamed into place once complete, so readers never observe a
// half written entry. entry.CachedAt is ignored, the entry is stamped with the current time.
func (s *Store) Save(key Key, entry *Entry) bool {
	if !key.Valid() {
		s.log.Debugw("refusing to cache under an invalid key", "key", key)
		return false
	}
	if entry == nil || len(entry.Graph) == 0 {
		s.log.Debugw("refusing to cache an entry without a graph", "key", key)
		return false
	}

	unlock := s.lock(key)
	defer unlock()

	if err := s.save(key, entry); err != nil {
		s.log.Warnw("cache save error", "key", key, "error", err)
		return false
	}

	s.log.Infow("saved to cache", "key", key)
	return true
}

func (s *Store) save(key Key, entry *Entry) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return err
	}

	name := string(key)
	tmp, err := os.MkdirTemp(s.root, tmpPrefix+name+"-")
	if err != nil {
		return err
	}
	// no-op once the rename succeeded
	defer os.RemoveAll(tmp)

	files := map[string][]byte{GraphFile: entry.Graph}
	if entry.Water != nil {
		files[WaterFile] = entry.Water
	}
	if entry.Parks != nil {
		files[ParksFile] = entry.Parks
	}
	for file, data := range files {
		if err := os.WriteFile(filepath.Join(tmp, file), data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", file, err)
		}
	}

	meta := Meta{
		City:     entry.City,
		Country:  entry.Country,
		Distance: entry.Distance,
		Coords:   entry.Coords,
		CachedAt: Timestamp{s.now()},
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(tmp, MetaFile), data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", MetaFile, err)
	}

	final := s.Path(key)
	if _, err := os.Stat(final); err == nil {
		old := filepath.Join(s.root, fmt.Sprintf("%s%s-%d", oldPrefix, name, s.now().UnixNano()))
		if err := os.Rename(final, old); err != nil {
			return fmt.Errorf("moving previous entry aside: %w", err)
		}
		defer os.RemoveAll(old)
	}

	return os.Rename(tmp, final)
}

// FindByLocation returns the metadata of a cached entry for the city and country at any
// distance. Valid entries win over expired or incomplete ones, then the most recently
// cached one wins.
func (s *Store) FindByLocation(city, country string) (*Meta, bool) {
	prefix := LocationPrefix(city, country)

	var (
		found      *Meta
		foundValid bool
	)
	for _, meta := range s.scan() {
		if !strings.HasPrefix(meta.CacheKey, prefix) {
			continue
		}
		_, valid := s.validMeta(Key(meta.CacheKey))
		switch {
		case found == nil,
			valid && !foundValid,
			valid == foundValid && meta.CachedAt.After(found.CachedAt.Time):
			m := meta
			found, foundValid = &m, valid
		}
	}
	return found, found != nil
}

// List returns the metadata of every entry with a readable meta.json, expired ones included.
func (s *Store) List() []Meta {
	return s.scan()
}

func (s *Store) scan() []Meta {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Debugw("failed to read cache root", "root", s.root, "error", err)
		}
		return nil
	}

	metas := make([]Meta, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !de.IsDir() || strings.HasPrefix(de.Name(), tmpPrefix) || strings.HasPrefix(de.Name(), oldPrefix) {
			continue
		}
		meta, err := readMeta(filepath.Join(s.root, de.Name()))
		if err != nil {
			continue
		}
		meta.CacheKey = de.Name()
		metas = append(metas, *meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CacheKey < metas[j].CacheKey
	})
	return metas
}

// Clear removes a single entry. Removing a missing entry succeeds.
func (s *Store) Clear(key Key) bool {
	if !key.Valid() {
		s.log.Warnw("refusing to clear an invalid cache key", "key", key)
		return false
	}
	unlock := s.lock(key)
	defer unlock()

	if err := os.RemoveAll(s.Path(key)); err != nil {
		s.log.Warnw("failed to clear cache entry", "key", key, "error", err)
		return false
	}
	s.log.Infow("cleared cache", "key", key)
	return true
}

// ClearAll removes every entry and leaves an empty root behind.
func (s *Store) ClearAll() bool {
	if err := os.RemoveAll(s.root); err != nil {
		s.log.Warnw("failed to clear cache", "root", s.root, "error", err)
		return false
	}
	if err := os.MkdirAll(s.root, 0755); err != nil {
		s.log.Warnw("failed to recreate cache root", "root", s.root, "error", err)
		return false
	}
	s.log.Info("cleared all cache")
	return true
}

func readMeta(dir string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", MetaFile, err)
	}
	return &meta, nil
}

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}
