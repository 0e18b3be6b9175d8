// Package session owns the live cart of every user session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/repressales/salescart/internal/cart"
	"github.com/repressales/salescart/internal/engine"
	"github.com/repressales/salescart/internal/repository"
	apperrors "github.com/repressales/salescart/pkg/errors"
)

// ChangeListener observes cart changes of any session.
type ChangeListener func(sessionID string, c cart.Change)

// Session is one user's live cart.
type Session struct {
	ID        string
	CreatedAt time.Time
	engine    *engine.Engine

	mu       sync.Mutex
	lastSeen time.Time

	// saveMu orders snapshots with their writes.
	saveMu sync.Mutex
}

// Engine returns the session's cart engine.
func (s *Session) Engine() *engine.Engine { return s.engine }

// Cart returns the session's cart store.
func (s *Session) Cart() *cart.Store { return s.engine.Store() }

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// Manager creates, resumes and closes sessions and persists their carts.
type Manager struct {
	repo     repository.CartRepository
	logger   *slog.Logger
	listener ChangeListener
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   map[string]time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithChangeListener registers fn for changes in every session's cart.
func WithChangeListener(fn ChangeListener) Option {
	return func(m *Manager) { m.listener = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session manager persisting through repo.
func NewManager(repo repository.CartRepository, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		repo:     repo,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
		closed:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) newSession(id string, lines map[string]int) *Session {
	store := cart.NewStore()
	if lines != nil {
		store.Restore(lines)
	}
	store.Subscribe(recordChange)
	if m.listener != nil {
		listener := m.listener
		store.Subscribe(func(c cart.Change) { listener(id, c) })
	}

	now := m.now()
	return &Session{ID: id, CreatedAt: now, engine: engine.New(store), lastSeen: now}
}

func (m *Manager) register(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	delete(m.closed, s.ID)
	n := len(m.sessions)
	m.mu.Unlock()

	sessionsOpen.Set(float64(n))
}

// Open starts a session with an empty cart and saves it so it can be resumed.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	s := m.newSession(uuid.New().String(), nil)
	if err := m.repo.Save(ctx, s.ID, map[string]int{}); err != nil {
		return nil, apperrors.Unavailable("cart store", err)
	}
	m.register(s)

	m.logger.InfoContext(ctx, "session opened", slog.String("session_id", s.ID))
	return s, nil
}

// Resume returns the live session with id, or restores its saved cart.
func (m *Manager) Resume(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch(m.now())
		return s, nil
	}

	lines, err := m.repo.Load(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("session", id)
		}
		return nil, apperrors.Unavailable("cart store", err)
	}

	m.mu.Lock()
	if live, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		live.touch(m.now())
		return live, nil
	}
	s = m.newSession(id, lines)
	m.sessions[id] = s
	delete(m.closed, id)
	n := len(m.sessions)
	m.mu.Unlock()
	sessionsOpen.Set(float64(n))

	m.logger.InfoContext(ctx, "session resumed",
		slog.String("session_id", id),
		slog.Int("lines", len(lines)),
	)
	return s, nil
}

// Get returns a live session and marks it used. A session closed earlier
// yields a SessionClosed error; an unknown one a NotFound error.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	_, wasClosed := m.closed[id]
	m.mu.RUnlock()

	switch {
	case ok:
		s.touch(m.now())
		return s, nil
	case wasClosed:
		return nil, apperrors.SessionClosed(id)
	default:
		return nil, apperrors.NotFound("session", id)
	}
}

// Save persists the current cart of s. Concurrent saves of one session are
// serialized so a later snapshot is never overwritten by an earlier one.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if err := m.repo.Save(ctx, s.ID, s.Cart().Snapshot()); err != nil {
		return apperrors.Unavailable("cart store", err)
	}
	return nil
}

// Close persists and discards the session.
func (m *Manager) Close(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return m.close(ctx, s, "explicit")
}

func (m *Manager) close(ctx context.Context, s *Session, reason string) error {
	saveErr := m.Save(ctx, s)

	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.closed[s.ID] = m.now()
	n := len(m.sessions)
	m.mu.Unlock()

	sessionsOpen.Set(float64(n))
	sessionsClosedTotal.WithLabelValues(reason).Inc()

	m.logger.InfoContext(ctx, "session closed",
		slog.String("session_id", s.ID),
		slog.String("reason", reason),
	)
	return saveErr
}

// SweepIdle closes sessions unused for longer than idle and forgets closed
// markers of the same age. It returns the number of sessions closed.
func (m *Manager) SweepIdle(ctx context.Context, idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	var stale []*Session
	for _, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			stale = append(stale, s)
		}
	}
	for id, at := range m.closed {
		if at.Before(cutoff) {
			delete(m.closed, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		if err := m.close(ctx, s, "idle"); err != nil {
			m.logger.ErrorContext(ctx, "failed to persist idle session",
				slog.String("session_id", s.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return len(stale)
}

// CloseAll persists and discards every live session.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	var errs []error
	for _, s := range all {
		if err := m.close(ctx, s, "shutdown"); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID, err))
		}
	}
	return errors.Join(errs...)
}

// HoldingProduct returns the live sessions whose cart contains productID.
func (m *Manager) HoldingProduct(productID string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Session
	for _, s := range m.sessions {
		if s.Cart().IsInCart(productID) {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
