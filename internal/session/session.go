// Package session tracks independent conversation sessions, each with its
// own workflow engine and memory. Sessions live in process memory only and
// do not survive a restart.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskpilot/internal/engine"
)

// Session is one isolated conversation. No state is shared between sessions
// except the process-wide completion client behind the engines.
type Session struct {
	ID        string
	CreatedAt time.Time

	eng        *engine.Engine
	busy       atomic.Bool
	lastActive atomic.Int64 // unix nanos
	messages   atomic.Int64
}

// Engine returns the session's workflow engine.
func (s *Session) Engine() *engine.Engine {
	return s.eng
}

// TryAcquire claims the session for one request. It returns false when a
// request is already in flight; callers must not start a second run. Each
// successful claim counts one processed message.
func (s *Session) TryAcquire() bool {
	if !s.busy.CompareAndSwap(false, true) {
		return false
	}
	s.lastActive.Store(time.Now().UnixNano())
	s.messages.Add(1)
	return true
}

// Messages returns how many requests this session has processed.
func (s *Session) Messages() int64 {
	return s.messages.Load()
}

// LastActive is when the session last started a request (creation time if
// it never has).
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Release returns the session to the idle state.
func (s *Session) Release() {
	s.busy.Store(false)
}

// Busy reports whether a request is currently in flight.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// Info is a read-only snapshot of a session for status endpoints.
type Info struct {
	ID           string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int64     `json:"message_count"`
	Turns        int       `json:"turns"`
	Busy         bool      `json:"busy"`
	Pending      bool      `json:"awaiting_clarification"`
}

// EngineFactory builds a fresh engine for a new session.
type EngineFactory func() *engine.Engine

// Manager owns the session registry. All methods are safe for concurrent
// use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	newEngine EngineFactory
	logger    *zap.Logger
}

// NewManager creates an empty registry. Each Create call uses the factory to
// give the new session its own engine and memory.
func NewManager(factory EngineFactory, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		newEngine: factory,
		logger:    logger,
	}
}

// Create registers a new session under a fresh unique identifier.
func (m *Manager) Create() *Session {
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		eng:       m.newEngine(),
	}
	s.lastActive.Store(time.Now().UnixNano())

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info("session created", zap.String("session_id", s.ID))
	return s
}

// Get looks up a session by identifier.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove deletes a session and reports whether it existed. Removing an
// unknown identifier is a no-op.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		m.logger.Info("session removed", zap.String("session_id", id))
	}
	return ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// PruneIdle removes sessions with no request activity for at least maxIdle.
// Busy sessions are never pruned. Returns how many were removed.
func (m *Manager) PruneIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	var pruned []string
	for id, s := range m.sessions {
		if !s.Busy() && s.LastActive().Before(cutoff) {
			delete(m.sessions, id)
			pruned = append(pruned, id)
		}
	}
	m.mu.Unlock()

	for _, id := range pruned {
		m.logger.Info("idle session pruned", zap.String("session_id", id))
	}
	return len(pruned)
}

// Snapshot returns status info for every live session.
func (m *Manager) Snapshot() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, Info{
			ID:           s.ID,
			CreatedAt:    s.CreatedAt,
			MessageCount: s.Messages(),
			Turns:        s.eng.Memory().Len(),
			Busy:         s.Busy(),
			Pending:      s.eng.Pending(),
		})
	}
	return infos
}
