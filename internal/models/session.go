package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryCap bounds how many turns a session keeps in memory.
const DefaultHistoryCap = 30

// Session records one matchmaking-to-termination conversation for a user.
type Session struct {
	SessionID     string    `json:"session_id"`
	UserID        int64     `json:"user_id"`
	History       []Turn    `json:"history"`
	MessagesCount int       `json:"messages_count"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewSession creates an active session with a fresh random identifier.
func NewSession(userID int64) *Session {
	return &Session{
		SessionID: uuid.NewString(),
		UserID:    userID,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
}

// Append adds a turn and drops the oldest entries so the history never
// exceeds max. A max of zero or less falls back to DefaultHistoryCap.
func (s *Session) Append(turn Turn, max int) {
	if max <= 0 {
		max = DefaultHistoryCap
	}
	s.History = append(s.History, turn)
	if len(s.History) > max {
		s.History = s.History[len(s.History)-max:]
	}
}

// Retire flags the session as no longer current. The message count is
// left untouched so finalization can report it.
func (s *Session) Retire() {
	s.Active = false
}
