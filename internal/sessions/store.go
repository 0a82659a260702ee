package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/patternforge/patternforge/pkg/models"
)

// Store abstracts session persistence so the session state machine never
// knows its storage medium. Load restores the full session set at
// startup; Save replaces it. Implementations must tolerate concurrent
// Save calls.
type Store interface {
	Load() (map[string]*models.ChatSession, error)
	Save(sessions map[string]*models.ChatSession) error
}

// ── In-memory store ──────────────────────────────────────────

// MemoryStore keeps sessions in process memory. Used by tests and by
// deployments that do not want histories surviving restarts.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.ChatSession
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.ChatSession)}
}

// Load implements Store.
func (s *MemoryStore) Load() (map[string]*models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*models.ChatSession, len(s.sessions))
	for id, session := range s.sessions {
		out[id] = session
	}
	return out, nil
}

// Save implements Store.
func (s *MemoryStore) Save(sessions map[string]*models.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[string]*models.ChatSession, len(sessions))
	for id, session := range sessions {
		s.sessions[id] = session
	}
	return nil
}

// ── JSON file store ──────────────────────────────────────────

// FileStore persists the session set as one JSON snapshot file, written
// to a temp file and renamed for atomicity.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a file store under dataDir, creating the
// directory if needed.
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session data dir %s: %w", dataDir, err)
	}
	return &FileStore{path: filepath.Join(dataDir, "sessions.json")}, nil
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store. A missing snapshot file yields an empty set.
func (s *FileStore) Load() (map[string]*models.ChatSession, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*models.ChatSession), nil
		}
		return nil, fmt.Errorf("read session snapshot %s: %w", s.path, err)
	}

	var sessions map[string]*models.ChatSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("parse session snapshot %s: %w", s.path, err)
	}
	if sessions == nil {
		sessions = make(map[string]*models.ChatSession)
	}
	return sessions, nil
}

// Save implements Store.
func (s *FileStore) Save(sessions map[string]*models.ChatSession) error {
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session snapshot tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename session snapshot: %w", err)
	}
	return nil
}
