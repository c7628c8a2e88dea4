// Package store owns the per-user session records, the user registry,
// and the rolling activity logs backing the stats view.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"anonchat/internal/models"
	"anonchat/internal/storage"

	"go.uber.org/zap"
)

const rollingWindow = 24 * time.Hour

// saveDebounce batches bursts of mutations into one snapshot write.
const saveDebounce = 200 * time.Millisecond

// Store keeps all conversation state in memory and mirrors the durable
// part (registry and rolling logs) to a snapshot backend. Map access is
// guarded by one mutex; mutation of an individual Session is serialized
// per user by the dispatcher upstream.
type Store struct {
	mu          sync.Mutex
	users       map[int64]struct{}
	sessions    map[int64]*models.Session
	msgEvents   []time.Time
	startEvents []time.Time

	backend storage.Backend
	dirty   chan struct{}
	now     func() time.Time
	log     *zap.Logger
}

// Option tweaks Store construction.
type Option func(*Store)

// WithClock injects the time source, used by window tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New builds a store primed from the backend's snapshot. A failed or
// missing snapshot yields a clean empty state.
func New(backend storage.Backend, log *zap.Logger, opts ...Option) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		users:    make(map[int64]struct{}),
		sessions: make(map[int64]*models.Session),
		backend:  backend,
		dirty:    make(chan struct{}, 1),
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}

	if backend != nil {
		snap := backend.Load(context.Background())
		for _, id := range snap.Users {
			s.users[id] = struct{}{}
		}
		s.msgEvents = append(s.msgEvents, snap.MessageEvents...)
		s.startEvents = append(s.startEvents, snap.StartEvents...)
	}
	return s
}

// Run drives the persistence writer until ctx is canceled. Mutations
// only flag the state dirty; this single goroutine debounces and
// serializes the actual writes so business logic never blocks on I/O
// and concurrent mutations cannot race a snapshot.
func (s *Store) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background())
			return
		case <-s.dirty:
		}

		timer := time.NewTimer(saveDebounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.flush(context.Background())
			return
		case <-timer.C:
		}

		s.flush(ctx)
	}
}

// flush writes one snapshot; failures are logged and swallowed, the
// in-memory state stays authoritative.
func (s *Store) flush(ctx context.Context) {
	if s.backend == nil {
		return
	}
	if err := s.backend.Save(ctx, s.snapshot()); err != nil {
		s.log.Warn("snapshot save failed", zap.Error(err))
	}
}

func (s *Store) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Store) snapshot() storage.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]int64, 0, len(s.users))
	for id := range s.users {
		users = append(users, id)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })

	return storage.Snapshot{
		Users:         users,
		MessageEvents: append([]time.Time(nil), s.msgEvents...),
		StartEvents:   append([]time.Time(nil), s.startEvents...),
	}
}

// RegisterUser records the user id in the append-only registry.
func (s *Store) RegisterUser(userID int64) {
	s.mu.Lock()
	s.users[userID] = struct{}{}
	s.mu.Unlock()
	s.markDirty()
}

// AllUserIDs returns every user id ever seen, for the broadcast surface.
func (s *Store) AllUserIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.users))
	for id := range s.users {
		out = append(out, id)
	}
	return out
}

// TrackStart appends a start event to the rolling log.
func (s *Store) TrackStart() {
	now := s.now()
	s.mu.Lock()
	s.startEvents = append(s.startEvents, now)
	s.startEvents = trimOld(s.startEvents, now)
	s.mu.Unlock()
	s.markDirty()
}

// SetSession installs a new current session, retiring and returning
// the previous one. Both happen under the same lock so a concurrent
// reader never observes a replaced session still marked active.
func (s *Store) SetSession(userID int64, session *models.Session) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.sessions[userID]
	if prev != nil {
		prev.Retire()
	}
	s.sessions[userID] = session
	return prev
}

// GetSession returns the current session, or nil.
func (s *Store) GetSession(userID int64) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[userID]
}

// ClearSession retires and removes the current session, returning it,
// or nil when the user has none.
func (s *Store) ClearSession(userID int64) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := s.sessions[userID]
	if session != nil {
		session.Retire()
	}
	delete(s.sessions, userID)
	return session
}

// IncrementMessages bumps the session's exchange counter and records a
// message event. No-op when the user has no current session.
func (s *Store) IncrementMessages(userID int64) {
	now := s.now()
	s.mu.Lock()
	session := s.sessions[userID]
	if session == nil {
		s.mu.Unlock()
		return
	}
	session.MessagesCount++
	s.msgEvents = append(s.msgEvents, now)
	s.msgEvents = trimOld(s.msgEvents, now)
	s.mu.Unlock()
	s.markDirty()
}

// Stats is the derived read-only view over the store.
type Stats struct {
	TotalUsers    int `json:"total_users"`
	ActiveDialogs int `json:"active_dialogs"`
	Messages24h   int `json:"messages_24h"`
	Starts24h     int `json:"starts_24h"`
}

// Stats trims both rolling logs to the 24h window and derives counts.
func (s *Store) Stats() Stats {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgEvents = trimOld(s.msgEvents, now)
	s.startEvents = trimOld(s.startEvents, now)

	active := 0
	for _, session := range s.sessions {
		if session.Active {
			active++
		}
	}
	return Stats{
		TotalUsers:    len(s.users),
		ActiveDialogs: active,
		Messages24h:   len(s.msgEvents),
		Starts24h:     len(s.startEvents),
	}
}

func trimOld(events []time.Time, now time.Time) []time.Time {
	for len(events) > 0 && now.Sub(events[0]) > rollingWindow {
		events = events[1:]
	}
	return events
}
