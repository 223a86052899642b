// Package completion builds requests for the chat-completion service from a
// user's session and defines the narrow interface providers implement.
package completion

import (
	"context"
	"net/http"
	"strconv"

	"github.com/m3rciful/relaybot/chat/fault"
	"github.com/m3rciful/relaybot/chat/transcript"
)

// DefaultMaxOutputTokens caps the length of generated replies.
const DefaultMaxOutputTokens = 1024

// Request is a provider-neutral completion request.
type Request struct {
	Messages         []transcript.Turn
	MaxOutputTokens  int
	Temperature      float64
	FrequencyPenalty float64
	PresencePenalty  float64
	CandidateCount   int
	Stop             []string
	// User identifies the end user to the provider for abuse monitoring.
	User string
}

// Response is the generated reply.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Service is implemented by completion providers.
type Service interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, req Request) (Response, error)

// Complete calls f.
func (f ServiceFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Policy holds the fixed request values that do not come from the session.
type Policy struct {
	MaxOutputTokens int
	// MaxTurns bounds the number of turns sent; 0 sends the whole transcript.
	// A leading system turn is always kept.
	MaxTurns int
}

// Builder converts sessions into requests.
type Builder struct {
	policy Policy
}

// NewBuilder returns a Builder, filling zero policy values with defaults.
func NewBuilder(p Policy) *Builder {
	if p.MaxOutputTokens <= 0 {
		p.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if p.MaxTurns < 0 {
		p.MaxTurns = 0
	}
	return &Builder{policy: p}
}

// Build produces the request for sess. The session is not modified.
func (b *Builder) Build(sess transcript.Session) (Request, error) {
	if len(sess.Transcript) == 0 {
		return Request{}, fault.New(fault.EmptyTranscript, "completion.build", "", nil)
	}
	user := sess.Username
	if user == "" {
		user = strconv.FormatInt(sess.UserID, 10)
	}
	return Request{
		Messages:         window(sess.Transcript, b.policy.MaxTurns),
		MaxOutputTokens:  b.policy.MaxOutputTokens,
		Temperature:      sess.Params.Temperature,
		FrequencyPenalty: sess.Params.FrequencyPenalty,
		PresencePenalty:  sess.Params.PresencePenalty,
		CandidateCount:   1,
		User:             user,
	}, nil
}

// window copies the turns to send, keeping a leading system turn and the
// most recent turns when limit is set.
func window(turns []transcript.Turn, limit int) []transcript.Turn {
	if limit <= 0 || len(turns) <= limit {
		return append([]transcript.Turn(nil), turns...)
	}
	out := make([]transcript.Turn, 0, limit)
	if turns[0].Role == transcript.RoleSystem {
		out = append(out, turns[0])
		if limit == 1 {
			return out
		}
		limit--
		turns = turns[1:]
	}
	return append(out, turns[len(turns)-limit:]...)
}

// ShouldRespond reports whether an inbound message may trigger a completion:
// plain messages do, replies only when they answer one of the bot's messages.
func ShouldRespond(isReply bool, repliedToSenderID, botID int64) bool {
	return !isReply || (botID != 0 && repliedToSenderID == botID)
}

// Upstream failure classes reported in fault.Error.Detail for service errors.
const (
	ClassRateLimit        = "rate_limit"
	ClassAuth             = "auth"
	ClassMalformedRequest = "malformed_request"
	ClassUpstream         = "upstream"
)

// StatusClass maps an HTTP status returned by a provider to a failure class.
func StatusClass(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return ClassRateLimit
	case http.StatusUnauthorized, http.StatusForbidden:
		return ClassAuth
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return ClassMalformedRequest
	default:
		return ClassUpstream
	}
}
