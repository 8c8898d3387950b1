package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps every key in a single JSON document under dataDir.
// The whole document is rewritten on each change.
type FileStore struct {
	mu      sync.RWMutex
	data    map[string]json.RawMessage
	dataDir string
}

// NewFileStore loads dataDir/lottery_state.json if it exists.
func NewFileStore(dataDir string) (*FileStore, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	s := &FileStore{
		data:    make(map[string]json.RawMessage),
		dataDir: dataDir,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) path() string {
	return filepath.Join(s.dataDir, "lottery_state.json")
}

func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path(), err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.data); err != nil {
		return fmt.Errorf("decode %s: %w", s.path(), err)
	}
	if s.data == nil {
		// "null" on disk
		s.data = make(map[string]json.RawMessage)
	}
	return nil
}

// saveLocked writes the store to disk. Caller must hold s.mu.
func (s *FileStore) saveLocked() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path())
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores value, which must be valid JSON.
func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("file store: value for %q is not valid JSON", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.data[key]
	s.data[key] = append(json.RawMessage(nil), value...)
	if err := s.saveLocked(); err != nil {
		if existed {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.data[key]
	if !ok {
		return nil
	}
	delete(s.data, key)
	if err := s.saveLocked(); err != nil {
		s.data[key] = prev
		return err
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
