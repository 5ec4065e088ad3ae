package artifacts

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"blossom/internal/types"
)

// MemoryStore is the Store used when no object storage is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]types.GeneratedFile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]types.GeneratedFile)}
}

func (s *MemoryStore) Put(_ context.Context, projectID string, files []types.GeneratedFile) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	id, err := validate(projectID, files)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = append([]types.GeneratedFile{}, files...)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, projectID string) ([]types.GeneratedFile, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	files, ok := s.data[strings.TrimSpace(projectID)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]types.GeneratedFile{}, files...), nil
}

func (s *MemoryStore) Delete(_ context.Context, projectID string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, strings.TrimSpace(projectID))
	return nil
}
