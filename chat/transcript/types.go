package transcript

import (
	"time"

	"github.com/google/uuid"
)

// Role tags a turn with its speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message of a transcript.
type Turn struct {
	Role    Role
	Content string
}

// Param names a generation-control parameter of a session.
type Param int

const (
	Temperature Param = iota
	FrequencyPenalty
	PresencePenalty
)

func (p Param) String() string {
	switch p {
	case Temperature:
		return "temperature"
	case FrequencyPenalty:
		return "frequency_penalty"
	case PresencePenalty:
		return "presence_penalty"
	}
	return "unknown"
}

// Params holds the generation-control values applied to every request of a session.
type Params struct {
	Temperature      float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// DefaultParams returns the values a fresh or reset session starts with.
func DefaultParams() Params {
	return Params{Temperature: 0.7}
}

// Session is the per-user conversation state.
//
// ConversationID changes every time the transcript is cleared so journal rows
// and logs can tell topics apart.
type Session struct {
	UserID         int64
	Username       string
	ConversationID uuid.UUID
	Transcript     []Turn
	Params         Params
	CreatedAt      time.Time
}

func (s Session) clone() Session {
	out := s
	out.Transcript = append([]Turn(nil), s.Transcript...)
	return out
}
