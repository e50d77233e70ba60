// Package manager keeps the isolated Project Sessions of a process, expires
// idle ones and mirrors their snapshots into an optional store.
package manager

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	"github.com/alejandroruanova/sfumato/internal/core/services/gateway"
	"github.com/alejandroruanova/sfumato/internal/core/services/session"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
	"github.com/alejandroruanova/sfumato/internal/pkg/textutil"
)

// DefaultTTL is how long an idle session is kept in memory
const DefaultTTL = 24 * time.Hour

// DefaultInFlightLease bounds how long an in-flight marker saved by another
// process is honoured. One refinement cycle makes two gateway calls.
const DefaultInFlightLease = 2*gateway.DefaultTimeout + time.Minute

// Options configures a Manager
type Options struct {
	Store         SnapshotStore
	TTL           time.Duration
	DefaultConfig domain.GenerationConfig
	Logger        *slog.Logger
	Clock         func() time.Time
	// ReadThrough reloads idle sessions from the store on every Get, for
	// processes that share the store with a background worker.
	ReadThrough bool
	// InFlightLease is how long a stored in-flight marker blocks commands
	// in ReadThrough mode. Older markers are treated as abandoned.
	InFlightLease time.Duration
}

// Manager owns sessions keyed by ID. Sessions share nothing but the gateway.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*session.Session

	gw       gateway.Gateway
	store    SnapshotStore
	ttl      time.Duration
	defaults domain.GenerationConfig
	logger   *slog.Logger
	now      func() time.Time
	reload   bool
	lease    time.Duration
}

// New creates a session manager
func New(gw gateway.Gateway, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	defaults := opts.DefaultConfig
	if defaults == (domain.GenerationConfig{}) {
		defaults = domain.DefaultGenerationConfig()
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	lease := opts.InFlightLease
	if lease <= 0 {
		lease = DefaultInFlightLease
	}

	return &Manager{
		sessions: make(map[uuid.UUID]*session.Session),
		gw:       gw,
		store:    opts.Store,
		ttl:      ttl,
		defaults: defaults,
		logger:   logger,
		now:      clock,
		reload:   opts.ReadThrough && opts.Store != nil,
		lease:    lease,
	}
}

func (m *Manager) sessionOptions() session.Options {
	opts := session.Options{Logger: m.logger, Clock: m.now}
	if m.store != nil {
		opts.OnLaunch = m.save
	}
	return opts
}

// Create starts a new idle session. A nil cfg selects the manager defaults.
func (m *Manager) Create(ctx context.Context, cfg *domain.GenerationConfig) (*session.Session, error) {
	config := m.defaults
	if cfg != nil {
		config = *cfg
	}

	opts := m.sessionOptions()
	opts.Config = config
	s, err := session.New(m.gw, opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.persist(ctx, s)
	return s, nil
}

// Get returns a live session, restoring it from the store if necessary. In
// ReadThrough mode a cached session is refreshed in place from a newer stored
// snapshot, so every caller keeps sharing one session value.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	// A call of this process in flight is authoritative over the store
	if ok && (!m.reload || s.InFlight()) {
		return s, nil
	}

	if m.store == nil {
		return nil, apperrors.NotFound("session").WithDetails("session_id", id.String())
	}

	snap, err := m.store.Load(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrCodeNotFound) {
			if ok {
				return s, nil
			}
			return nil, apperrors.NotFound("session").WithDetails("session_id", id.String())
		}
		return nil, apperrors.InternalWrap(err, "failed to load session snapshot")
	}

	opts := m.sessionOptions()
	opts.HeldElsewhere = m.reload && m.heldElsewhere(*snap)
	restored, err := session.Restore(m.gw, *snap, opts)
	if err != nil {
		m.logger.Error("Stored snapshot is invalid",
			slog.String("session_id", id.String()),
			slog.Any("error", err))
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have restored it first or started a command on it
	if existing, found := m.sessions[id]; found {
		if m.reload {
			existing.Refresh(restored)
		}
		return existing, nil
	}
	m.sessions[id] = restored
	return restored, nil
}

// heldElsewhere reports whether snap records a command that another process
// may still be running
func (m *Manager) heldElsewhere(snap session.Snapshot) bool {
	return snap.Pending != "" && m.now().Sub(snap.UpdatedAt) < m.lease
}

// Do runs fn against a session and persists the resulting snapshot whatever
// fn returned, since failures also change the visible state. A session whose
// command is running in another process is rejected with SESSION_BUSY,
// Reset included, since that command cannot be cancelled from here.
func (m *Manager) Do(ctx context.Context, id uuid.UUID, fn func(*session.Session) error) (*session.Session, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.HeldElsewhere() {
		snap := s.Snapshot()
		return s, apperrors.SessionBusy("command").
			WithDetails("pending", snap.Pending).
			WithDetails("session_id", id.String())
	}
	err = fn(s)
	m.persist(ctx, s)
	return s, err
}

// Delete resets and forgets a session
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Reset()
	}

	if m.store != nil {
		err := m.store.Delete(ctx, id)
		switch {
		case err == nil:
			ok = true
		case apperrors.Is(err, apperrors.ErrCodeNotFound):
		default:
			return apperrors.InternalWrap(err, "failed to delete session snapshot")
		}
	}
	if !ok {
		return apperrors.NotFound("session").WithDetails("session_id", id.String())
	}

	m.logger.Info("Session deleted", slog.String("session_id", id.String()))
	return nil
}

// List returns summaries of live sessions, most recently updated first
func (m *Manager) List() []Summary {
	m.mu.RLock()
	live := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.RUnlock()

	snaps := make([]session.Snapshot, 0, len(live))
	for _, s := range live {
		snaps = append(snaps, s.Snapshot())
	}
	slices.SortFunc(snaps, func(a, b session.Snapshot) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})

	out := make([]Summary, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, Summary{
			SessionID:      snap.SessionID,
			Phase:          string(snap.Phase),
			Status:         string(snap.Status),
			Idea:           textutil.Truncate(string(snap.Idea), 60),
			HistoryLen:     len(snap.History),
			IterationCount: snap.IterationCount,
			MaxIterations:  snap.Config.MaxIterations,
			UpdatedAt:      snap.UpdatedAt,
		})
	}
	return out
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Persist saves the session snapshot if a store is configured
func (m *Manager) Persist(ctx context.Context, s *session.Session) error {
	if m.store == nil {
		return nil
	}
	return m.store.Save(ctx, s.Snapshot())
}

func (m *Manager) persist(ctx context.Context, s *session.Session) {
	m.save(ctx, s.Snapshot())
}

func (m *Manager) save(ctx context.Context, snap session.Snapshot) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, snap); err != nil {
		m.logger.Warn("Failed to persist session snapshot",
			slog.String("session_id", snap.SessionID.String()),
			slog.String("pending", snap.Pending),
			slog.Any("error", err))
	}
}

// Sweep drops sessions idle for longer than the TTL. Busy sessions are kept.
func (m *Manager) Sweep(ctx context.Context) int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	var expired []uuid.UUID
	for id, s := range m.sessions {
		if !s.Busy() && s.UpdatedAt().Before(cutoff) {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		if m.store != nil {
			if err := m.store.Delete(ctx, id); err != nil && !apperrors.Is(err, apperrors.ErrCodeNotFound) {
				m.logger.Warn("Failed to delete expired snapshot",
					slog.String("session_id", id.String()),
					slog.Any("error", err))
			}
		}
	}

	if len(expired) > 0 {
		m.logger.Info("Expired sessions swept", slog.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}
