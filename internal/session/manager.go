package session

import (
	"log/slog"
	"sync"

	"github.com/maauso/phraseloop/internal/analysis"
)

// Manager keeps at most one session per analysis.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	opts     Options
	logger   *slog.Logger
}

// NewManager creates a Manager that opens sessions with opts.
func NewManager(opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		opts:     opts,
		logger:   logger,
	}
}

// Loader fetches the current state of an analysis.
type Loader func(id string) (*analysis.Analysis, error)

// Open returns the session of analysis id, creating it if needed. A new
// session requires a completed analysis. load runs under the manager lock,
// so a Close that follows the deletion of the analysis cannot be overtaken
// by a concurrent Open.
func (m *Manager) Open(id string, load Loader) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	a, err := load(id)
	if err != nil {
		return nil, err
	}
	if a.GetStatus() != analysis.StatusCompleted {
		return nil, ErrNotReady
	}

	snapshot := a.Clone()
	s, err := New(snapshot.ID, snapshot.SourceDuration, snapshot.Segments, m.opts, m.logger)
	if err != nil {
		return nil, err
	}
	m.sessions[snapshot.ID] = s

	m.logger.Info("session opened",
		slog.String("analysis_id", snapshot.ID),
		slog.Int("segments", len(snapshot.Segments)),
		slog.Float64("duration_sec", snapshot.SourceDuration),
	)
	return s, nil
}

// Get returns the open session of an analysis.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Refresh hands the segments of a freshly completed analysis to its open
// session. It has the signature of analysis.ResultHook.
func (m *Manager) Refresh(a *analysis.Analysis) {
	m.mu.Lock()
	s, ok := m.sessions[a.ID]
	m.mu.Unlock()
	if !ok {
		return
	}
	s.Replace(a.Clone().Segments)
}

// Close closes and forgets the session of an analysis. It reports whether
// a session was open.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Close()
	m.logger.Info("session closed", slog.String("analysis_id", id))
	return true
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if len(sessions) > 0 {
		m.logger.Info("all sessions closed", slog.Int("count", len(sessions)))
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
