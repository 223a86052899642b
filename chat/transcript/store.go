// Package transcript keeps one conversation session per user in memory.
// Sessions live until the process exits.
package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	mu      sync.Mutex
	turn    chan struct{}
	session Session
}

// Store maps user IDs to sessions. The map is guarded by one mutex, each
// session by its own, so mutations for different users never contend.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*entry
	now      func() time.Time
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[int64]*entry),
		now:      time.Now,
	}
}

func (s *Store) entry(userID int64) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[userID]
	if !ok {
		e = &entry{
			turn: make(chan struct{}, 1),
			session: Session{
				UserID:         userID,
				ConversationID: uuid.New(),
				Params:         DefaultParams(),
				CreatedAt:      s.now(),
			},
		}
		s.sessions[userID] = e
	}
	return e
}

func (s *Store) update(userID int64, fn func(*Session)) Session {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.session)
	return e.session.clone()
}

// Lock acquires the turn lock of a user, creating the session if needed.
// The inbound handler holds it for the whole handling of one message so that
// messages of the same user are processed one at a time.
func (s *Store) Lock(ctx context.Context, userID int64) (func(), error) {
	e := s.entry(userID)
	select {
	case e.turn <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-e.turn })
	}, nil
}

// GetOrCreate returns a copy of the user's session, creating it with an
// empty transcript and default params on first contact.
func (s *Store) GetOrCreate(userID int64) Session {
	return s.update(userID, func(*Session) {})
}

// Touch records the latest username seen for the user.
func (s *Store) Touch(userID int64, username string) Session {
	return s.update(userID, func(sess *Session) {
		if username != "" {
			sess.Username = username
		}
	})
}

// Snapshot returns a copy of an existing session.
func (s *Store) Snapshot(userID int64) (Session, bool) {
	s.mu.Lock()
	e, ok := s.sessions[userID]
	s.mu.Unlock()
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.clone(), true
}

// AppendUserTurn appends a user turn and returns the conversation it joined.
func (s *Store) AppendUserTurn(userID int64, text string) uuid.UUID {
	return s.append(userID, Turn{Role: RoleUser, Content: text})
}

// AppendAssistantTurn appends an assistant turn and returns the conversation it joined.
func (s *Store) AppendAssistantTurn(userID int64, text string) uuid.UUID {
	return s.append(userID, Turn{Role: RoleAssistant, Content: text})
}

func (s *Store) append(userID int64, t Turn) uuid.UUID {
	sess := s.update(userID, func(sess *Session) {
		sess.Transcript = append(sess.Transcript, t)
	})
	return sess.ConversationID
}

// Clear empties the transcript and keeps the params.
func (s *Store) Clear(userID int64) Session {
	return s.update(userID, func(sess *Session) {
		sess.Transcript = nil
		sess.ConversationID = uuid.New()
	})
}

// Reset empties the transcript and restores default params.
func (s *Store) Reset(userID int64) Session {
	return s.update(userID, func(sess *Session) {
		sess.Transcript = nil
		sess.Params = DefaultParams()
		sess.ConversationID = uuid.New()
	})
}

// SetPrompt clears the transcript and seeds it with a single system turn.
func (s *Store) SetPrompt(userID int64, prompt string) Session {
	return s.update(userID, func(sess *Session) {
		sess.Transcript = []Turn{{Role: RoleSystem, Content: prompt}}
		sess.ConversationID = uuid.New()
	})
}

// SetParam stores one generation-control value. The transcript is untouched.
func (s *Store) SetParam(userID int64, p Param, value float64) Session {
	return s.update(userID, func(sess *Session) {
		switch p {
		case Temperature:
			sess.Params.Temperature = value
		case FrequencyPenalty:
			sess.Params.FrequencyPenalty = value
		case PresencePenalty:
			sess.Params.PresencePenalty = value
		}
	})
}

// Len reports the number of sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
