package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// StateStore persists the last known "on"/"off" state of every entity as a
// JSON object keyed by unique ID
type StateStore struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewStateStore creates a store backed by the file at path
func NewStateStore(path string, logger *zap.Logger) *StateStore {
	return &StateStore{
		path:   path,
		logger: logger,
	}
}

// Path returns the backing file
func (s *StateStore) Path() string {
	return s.path
}

// Load reads the stored states. A missing file yields an empty map.
func (s *StateStore) Load() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("No stored states", zap.String("path", s.path))
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	states := map[string]string{}
	if len(data) == 0 {
		return states, nil
	}
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return states, nil
}

// Save replaces the stored states. The file is written to a temporary
// sibling and renamed into place.
func (s *StateStore) Save(states map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode states: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
