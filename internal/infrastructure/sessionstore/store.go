package sessionstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"futarchy_wallet/internal/app/port"

	"github.com/patrickmn/go-cache"
	"gopkg.in/yaml.v3"
)

// Store implements port.SessionStore on top of go-cache. When a file path is set,
// every mutation is flushed to a YAML file; flush failures are logged, never returned.
type Store struct {
	items    *cache.Cache
	filePath string
	logger   port.Logger
	flushMu  sync.Mutex
}

var _ port.SessionStore = (*Store)(nil)

// NewMemoryStore creates a store that is never written to disk.
func NewMemoryStore() *Store {
	return &Store{items: cache.New(cache.NoExpiration, 0)}
}

// NewFileStore creates a store backed by filePath, loading existing entries if the file exists.
func NewFileStore(filePath string, log port.Logger) (*Store, error) {
	s := &Store{
		items:    cache.New(cache.NoExpiration, 0),
		filePath: filePath,
		logger:   log,
	}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file %s: %w", filePath, err)
	}

	var persisted map[string]string
	if err := yaml.Unmarshal(data, &persisted); err != nil {
		// A corrupt cache is not fatal: the chain is re-queried anyway.
		if log != nil {
			log.Warn("Session file is not valid YAML, starting empty", "path", filePath, "error", err)
		}
		return s, nil
	}
	for k, v := range persisted {
		s.items.Set(k, v, cache.NoExpiration)
	}
	return s, nil
}

func (s *Store) Get(key string) (string, bool) {
	v, ok := s.items.Get(key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

func (s *Store) Set(key, value string) {
	s.items.Set(key, value, cache.NoExpiration)
	s.flush()
}

func (s *Store) Delete(key string) {
	s.items.Delete(key)
	s.flush()
}

// DeletePrefix removes every key starting with prefix.
func (s *Store) DeletePrefix(prefix string) {
	removed := false
	for key := range s.items.Items() {
		if strings.HasPrefix(key, prefix) {
			s.items.Delete(key)
			removed = true
		}
	}
	if removed {
		s.flush()
	}
}

// Keys returns all keys in lexical order.
func (s *Store) Keys() []string {
	items := s.items.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) flush() {
	if s.filePath == "" {
		return
	}
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	snapshot := make(map[string]string)
	for k, item := range s.items.Items() {
		if v, ok := item.Object.(string); ok {
			snapshot[k] = v
		}
	}
	data, err := yaml.Marshal(snapshot)
	if err == nil {
		if dir := filepath.Dir(s.filePath); dir != "" {
			err = os.MkdirAll(dir, 0o755)
		}
	}
	if err == nil {
		tmp := s.filePath + ".tmp"
		if err = os.WriteFile(tmp, data, 0o600); err == nil {
			err = os.Rename(tmp, s.filePath)
		}
	}
	if err != nil && s.logger != nil {
		s.logger.Warn("Failed to persist session store", "path", s.filePath, "error", err)
	}
}
