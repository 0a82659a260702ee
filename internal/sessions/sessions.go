// Package sessions manages multi-turn chat sessions: ordered turn
// histories with a rune budget, per-session locking, and snapshot
// persistence behind a Store so conversations survive restarts.
package sessions

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/patternforge/patternforge/pkg/models"
)

// NotFoundError is returned for unknown session ids.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return "session not found: " + e.ID
}

// ClosedError is returned when a closed session is written to.
type ClosedError struct {
	ID string
}

func (e *ClosedError) Error() string {
	return "session is closed: " + e.ID
}

// DefaultBudget is the per-session history budget in runes when the
// configuration does not set one.
const DefaultBudget = 200_000

// entry pairs a session with its own mutex so concurrent requests to
// different sessions never serialize on one lock.
type entry struct {
	mu      sync.Mutex
	session *models.ChatSession
}

// Manager owns every live chat session. Persistence is delegated to the
// injected Store; the manager only decides when to snapshot.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
	budget  int

	store  Store // nil = no persistence
	saveCh chan struct{}
	doneCh chan struct{}
}

// NewManager creates a session manager backed by store. A nil store
// disables persistence entirely. Existing sessions are restored from the
// store at startup and later changes are flushed back with debounced
// background writes. budget <= 0 selects DefaultBudget.
func NewManager(store Store, budget int) *Manager {
	if budget <= 0 {
		budget = DefaultBudget
	}
	m := &Manager{
		entries: make(map[string]*entry),
		budget:  budget,
		store:   store,
		saveCh:  make(chan struct{}, 1),
		doneCh:  make(chan struct{}),
	}

	if m.store != nil {
		m.restore()
		go m.saveLoop()
	}

	log.Info().
		Int("budget", m.budget).
		Bool("persistent", m.store != nil).
		Msg("Session manager configured")
	return m
}

// Create opens a new session bound to a pattern. The override, when
// non-nil, takes precedence over the pattern's model configuration for
// every turn in this session.
func (m *Manager) Create(patternID string, override *models.ModelConfig) *models.ChatSession {
	now := time.Now().UTC()
	session := &models.ChatSession{
		ID:            uuid.NewString(),
		PatternID:     patternID,
		CreatedAt:     now,
		UpdatedAt:     now,
		ModelOverride: override,
	}

	m.mu.Lock()
	m.entries[session.ID] = &entry{session: session}
	m.mu.Unlock()

	m.requestSave()
	return snapshotOf(session)
}

// Get returns a copy of the session.
func (m *Manager) Get(id string) (*models.ChatSession, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshotOf(e.session), nil
}

// List returns copies of every session, newest first.
func (m *Manager) List() []*models.ChatSession {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]*models.ChatSession, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, snapshotOf(e.session))
		e.mu.Unlock()
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// History returns the session's turns in chronological order.
func (m *Manager) History(id string) ([]models.Turn, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Turn(nil), e.session.Turns...), nil
}

// AppendExchange atomically appends a user turn and the assistant's
// reply. Either both land or neither does; a failed invocation must not
// leave a dangling user turn in the history.
func (m *Manager) AppendExchange(id string, user, assistant models.Turn) error {
	e, err := m.entry(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Closed {
		return &ClosedError{ID: id}
	}
	e.session.Turns = append(e.session.Turns, user, assistant)
	m.enforceBudget(e.session)
	e.session.UpdatedAt = time.Now().UTC()

	m.requestSave()
	return nil
}

// Close marks the session closed. Further appends fail; history stays
// readable.
func (m *Manager) Close(id string) error {
	e, err := m.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Closed {
		return &ClosedError{ID: id}
	}
	e.session.Closed = true
	e.session.UpdatedAt = time.Now().UTC()

	m.requestSave()
	return nil
}

// Delete removes a session entirely.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; !ok {
		return &NotFoundError{ID: id}
	}
	delete(m.entries, id)
	m.requestSave()
	return nil
}

// Shutdown stops the background save loop and flushes a final snapshot.
func (m *Manager) Shutdown() {
	close(m.doneCh)
	if m.store != nil {
		m.flush()
	}
}

func (m *Manager) entry(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return e, nil
}

// enforceBudget evicts the oldest turns until the history fits the rune
// budget. The most recent exchange is never evicted, even when it alone
// exceeds the budget. Caller holds the entry lock.
func (m *Manager) enforceBudget(session *models.ChatSession) {
	total := 0
	for _, t := range session.Turns {
		total += t.Size()
	}

	keep := len(session.Turns) - 2
	if keep < 0 {
		keep = 0
	}
	start := 0
	for start < keep && total > m.budget {
		total -= session.Turns[start].Size()
		start++
	}
	if start > 0 {
		evicted := start
		session.Turns = append([]models.Turn(nil), session.Turns[start:]...)
		log.Debug().
			Str("session", session.ID).
			Int("evicted", evicted).
			Msg("Evicted oldest turns to fit session budget")
	}
}

func snapshotOf(session *models.ChatSession) *models.ChatSession {
	out := *session
	out.Turns = append([]models.Turn(nil), session.Turns...)
	return &out
}

// ── Snapshot persistence ─────────────────────────────────────

// requestSave signals the background goroutine to persist sessions.
// Non-blocking: rapid writes coalesce into one store flush.
func (m *Manager) requestSave() {
	if m.store == nil {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop debounces save requests (max 1 write per 500ms).
func (m *Manager) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond) // debounce
			m.flush()
		}
	}
}

// flush hands the current session set to the store.
func (m *Manager) flush() {
	m.mu.RLock()
	snap := make(map[string]*models.ChatSession, len(m.entries))
	for id, e := range m.entries {
		e.mu.Lock()
		snap[id] = snapshotOf(e.session)
		e.mu.Unlock()
	}
	m.mu.RUnlock()

	if err := m.store.Save(snap); err != nil {
		log.Error().Err(err).Msg("Failed to save session snapshot")
		return
	}
	log.Debug().Int("sessions", len(snap)).Msg("Session snapshot saved")
}

// restore loads the persisted session set at startup.
func (m *Manager) restore() {
	snap, err := m.store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load session snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, session := range snap {
		if id == "" || session == nil {
			continue
		}
		m.entries[id] = &entry{session: session}
	}
	if len(m.entries) > 0 {
		log.Info().Int("sessions", len(m.entries)).Msg("Sessions restored from snapshot")
	}
}
