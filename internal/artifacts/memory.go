package artifacts

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore keeps artifacts in memory. Intended for tests and for
// running without object storage configured.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores a copy of the data and returns a mem:// URI.
func (s *MemoryStore) Put(_ context.Context, path string, _ string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	s.mu.Lock()
	s.objects[path] = append([]byte(nil), data...)
	s.mu.Unlock()
	return "mem://" + path, nil
}

// Get returns the stored bytes for a path.
func (s *MemoryStore) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[path]
	return data, ok
}

// Len reports the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
