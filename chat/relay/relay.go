// Package relay runs the chat flow for inbound messages: commands, reply
// gating, completion and delivery of the generated reply.
package relay

import (
	"context"
	"log/slog"

	"github.com/m3rciful/relaybot/chat/fault"
	"github.com/m3rciful/relaybot/chat/journal"
	"github.com/m3rciful/relaybot/chat/transcript"
	"github.com/m3rciful/relaybot/core/logger"
)

// Inbound is a text message received from the messaging platform.
type Inbound struct {
	UserID            int64
	Username          string
	ChatID            int64
	MessageID         int
	Text              string
	IsReply           bool
	RepliedToSenderID int64
}

// Outbound is a text message to deliver. ReplyTo is the message being
// answered, 0 for none.
type Outbound struct {
	ChatID  int64
	ReplyTo int
	Text    string
}

// Messenger delivers outbound messages.
type Messenger interface {
	Send(ctx context.Context, msg Outbound) error
}

// MessengerFunc adapts a function to Messenger.
type MessengerFunc func(ctx context.Context, msg Outbound) error

// Send calls f.
func (f MessengerFunc) Send(ctx context.Context, msg Outbound) error { return f(ctx, msg) }

// Relay records assistant replies and hands them to the messenger.
type Relay struct {
	store     *transcript.Store
	messenger Messenger
	journal   journal.Recorder
}

// NewRelay builds a Relay. A nil recorder disables journaling.
func NewRelay(store *transcript.Store, m Messenger, rec journal.Recorder) *Relay {
	if rec == nil {
		rec = journal.Nop{}
	}
	return &Relay{store: store, messenger: m, journal: rec}
}

// Deliver appends text as an assistant turn and sends it unmodified to dst.
// A send failure is reported as a delivery error; the turn stays recorded.
func (r *Relay) Deliver(ctx context.Context, userID int64, dst Outbound) error {
	conv := r.store.AppendAssistantTurn(userID, dst.Text)
	record(ctx, r.journal, journal.Entry{
		ConversationID: conv,
		UserID:         userID,
		ChatID:         dst.ChatID,
		Role:           transcript.RoleAssistant,
		Content:        dst.Text,
	})
	if err := r.messenger.Send(ctx, dst); err != nil {
		return fault.New(fault.DeliveryError, "relay.deliver", "", err)
	}
	return nil
}

func record(ctx context.Context, rec journal.Recorder, e journal.Entry) {
	if err := rec.Record(ctx, e); err != nil {
		logger.Warn(ctx, "db.journal", "journal.record",
			slog.String("status", "fail"),
			slog.String("role", string(e.Role)),
			slog.String("err", err.Error()),
		)
	}
}
