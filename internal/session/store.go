// Package session persists per-worker browser session state on the local
// filesystem so cookie consent and solved challenges survive restarts.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	stateFile   = "state.json"
	handledFile = "consent_handled"
)

// Config captures the parameters for the session store.
type Config struct {
	// BaseDir is the root directory where per-worker state is kept.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store keeps one subdirectory per worker. The state blob is opaque to the
// store; callers decide what goes in it (cookies, storage snapshots). The
// consent marker is a separate empty file so it persists even when the worker
// never produced a state blob.
type Store struct {
	baseDir string

	mu      sync.Mutex
	handled map[string]bool
}

// New creates a session store rooted at cfg.BaseDir, creating it if needed.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	return &Store{
		baseDir: cfg.BaseDir,
		handled: make(map[string]bool),
	}, nil
}

// Load reads the saved state blob for a worker. found is false when the
// worker has no saved session yet.
func (s *Store) Load(workerID string) ([]byte, bool, error) {
	path, err := s.workerPath(workerID, stateFile)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path is validated against baseDir above.
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read session state: %w", err)
	}
	return data, true, nil
}

// Save writes the state blob for a worker, replacing any previous one.
func (s *Store) Save(workerID string, blob []byte) error {
	path, err := s.workerPath(workerID, stateFile)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create worker directory: %w", err)
	}
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}
	return nil
}

// Handled reports whether consent was already dealt with for this worker,
// in this process or a previous one.
func (s *Store) Handled(workerID string) bool {
	s.mu.Lock()
	if s.handled[workerID] {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	path, err := s.workerPath(workerID, handledFile)
	if err != nil {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		return false
	}

	s.mu.Lock()
	s.handled[workerID] = true
	s.mu.Unlock()
	return true
}

// MarkHandled records that consent was dealt with, whether a banner was
// dismissed or none was shown. Subsequent page loads skip the probe entirely.
func (s *Store) MarkHandled(workerID string) error {
	path, err := s.workerPath(workerID, handledFile)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.handled[workerID] = true
	s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create worker directory: %w", err)
	}
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		return fmt.Errorf("failed to write consent marker: %w", err)
	}
	return nil
}

func (s *Store) workerPath(workerID, name string) (string, error) {
	if strings.TrimSpace(workerID) == "" {
		return "", fmt.Errorf("worker id is required")
	}
	fullPath := filepath.Join(s.baseDir, workerID, name)

	cleanBase := filepath.Clean(s.baseDir)
	cleanFull := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}
