package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hperssn/sages/internal/domain"
	"github.com/hperssn/sages/internal/observability"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

type ManagerOptions struct {
	// IdleTTL drops plays, finished or not, that saw no command for this long.
	IdleTTL         time.Duration
	CleanupInterval time.Duration
	Runner          Options
	Metrics         *observability.Metrics
	// Submitter backs each play's Recorder. Nil leaves plays without one.
	Submitter       Submitter
}

// ManagedSession is a server-hosted play: the runner plus the recorder that
// submits its completion.
type ManagedSession struct {
	*SessionRunner
	Recorder *Recorder
	// Owner is the user who started the play.
	Owner    string
}

// SessionManager hosts server-side plays keyed by play id.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*ManagedSession

	opts ManagerOptions
	log  *zap.Logger
	now  func() time.Time
}

func NewSessionManager(opts ManagerOptions) *SessionManager {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = time.Hour
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 5 * time.Minute
	}
	if opts.Runner.Logger == nil {
		opts.Runner.Logger = zap.NewNop()
	}

	return &SessionManager{
		sessions: make(map[string]*ManagedSession),
		opts:     opts,
		log:      opts.Runner.Logger,
		now:      time.Now,
	}
}

// Run sweeps stale plays until ctx is done, then stops every remaining play.
func (m *SessionManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupOldSessions()
		case <-ctx.Done():
			m.StopAll()
			return nil
		}
	}
}

func (m *SessionManager) cleanupOldSessions() {
	cutoff := m.now().Add(-m.opts.IdleTTL)

	var stale []*ManagedSession
	m.mu.Lock()
	for id, r := range m.sessions {
		if r.LastActivity().Before(cutoff) {
			stale = append(stale, r)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, r := range stale {
		r.Stop()
		m.playEnded()
	}
	if len(stale) > 0 {
		m.log.Info("cleaned up stale plays", zap.Int("count", len(stale)))
	}
}

// StartSession opens a new play of retreat for owner. An empty id gets a
// fresh uuid.
func (m *SessionManager) StartSession(id, owner string, retreat *domain.Retreat) (*ManagedSession, error) {
	if id == "" {
		id = uuid.New().String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		return nil, ErrSessionExists
	}

	r, err := NewSessionRunner(id, retreat, m.opts.Runner)
	if err != nil {
		return nil, err
	}
	p := &ManagedSession{SessionRunner: r, Owner: owner}
	if m.opts.Submitter != nil {
		p.Recorder = NewRecorder(r.Store(), retreat.ID, m.opts.Submitter, nil, r.log)
	}
	m.sessions[id] = p

	if m.opts.Metrics != nil {
		m.opts.Metrics.PlaysStarted.Inc()
		m.opts.Metrics.PlaysActive.Inc()
	}
	m.log.Info("play started", zap.String("play_id", id), zap.String("user_id", owner), zap.Int64("retreat_id", retreat.ID))

	return p, nil
}

func (m *SessionManager) GetSession(id string) (*ManagedSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, exists := m.sessions[id]
	return r, exists
}

func (m *SessionManager) StopSession(id string) error {
	m.mu.Lock()
	r, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !exists {
		return ErrSessionNotFound
	}

	r.Stop()
	m.playEnded()
	return nil
}

func (m *SessionManager) StopAll() {
	m.mu.Lock()
	runners := make([]*ManagedSession, 0, len(m.sessions))
	for id, r := range m.sessions {
		runners = append(runners, r)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, r := range runners {
		r.Stop()
		m.playEnded()
	}
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) playEnded() {
	if m.opts.Metrics != nil {
		m.opts.Metrics.PlaysActive.Dec()
	}
}
