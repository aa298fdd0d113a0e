package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/katakuxiko/docchat/internal/model"
)

// Session owns one Index and one History. Its mutex is held for the whole of
// a Process or Ask, so a session has at most one writer at a time.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	index    *Index
	history  model.History
	lastUsed time.Time
	// closed is set once the session has left the store; a holder of a
	// stale pointer must not attach a new index to it.
	closed bool
}

// History returns a copy of the conversation so far.
func (s *Session) History() model.History {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(model.History(nil), s.history...)
}

func (s *Session) Processed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index != nil
}

// SessionStore keeps sessions in memory, keyed by a random UUID.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
	log      *slog.Logger
}

func NewSessionStore(log *slog.Logger) *SessionStore {
	if log == nil {
		log = slog.Default()
	}
	return &SessionStore{sessions: make(map[string]*Session), now: time.Now, log: log}
}

func (st *SessionStore) Create() *Session {
	now := st.now()
	s := &Session{ID: uuid.NewString(), CreatedAt: now, lastUsed: now}

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return s, nil
}

func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Delete removes the session and releases its index. It waits for an
// in-flight Process or Ask on that session to finish.
func (st *SessionStore) Delete(ctx context.Context, id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if !ok {
		return model.ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown(ctx)
}

// Sweep evicts sessions idle for longer than ttl and returns how many were
// removed. Busy sessions are skipped until the next sweep.
func (st *SessionStore) Sweep(ctx context.Context, ttl time.Duration) int {
	cutoff := st.now().Add(-ttl)

	st.mu.Lock()
	var expired []*Session
	for id, s := range st.sessions {
		if !s.mu.TryLock() {
			continue
		}
		if s.lastUsed.Before(cutoff) {
			delete(st.sessions, id)
			expired = append(expired, s)
			continue
		}
		s.mu.Unlock()
	}
	st.mu.Unlock()

	for _, s := range expired {
		if err := s.shutdown(ctx); err != nil {
			st.log.Warn("close expired index", "session", s.ID, "error", err)
		}
		s.mu.Unlock()
	}
	if len(expired) > 0 {
		st.log.Info("sessions swept", "evicted", len(expired), "remaining", st.Len())
	}
	return len(expired)
}

// CloseAll releases every index, used on shutdown.
func (st *SessionStore) CloseAll(ctx context.Context) {
	st.mu.Lock()
	sessions := st.sessions
	st.sessions = make(map[string]*Session)
	st.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		if err := s.shutdown(ctx); err != nil {
			st.log.Warn("close index", "session", s.ID, "error", err)
		}
		s.mu.Unlock()
	}
}

// shutdown marks the session closed and releases its index. It must be
// called with s.mu held, after the session was removed from the store.
func (s *Session) shutdown(ctx context.Context) error {
	s.closed = true
	s.history = nil
	return s.closeIndex(ctx)
}

// closeIndex must be called with s.mu held.
func (s *Session) closeIndex(ctx context.Context) error {
	if s.index == nil {
		return nil
	}
	err := s.index.Close(ctx)
	s.index = nil
	return err
}
