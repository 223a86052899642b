package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/relaybot/chat/command"
	"github.com/m3rciful/relaybot/chat/completion"
	"github.com/m3rciful/relaybot/chat/fault"
	"github.com/m3rciful/relaybot/chat/journal"
	"github.com/m3rciful/relaybot/chat/transcript"
	"github.com/m3rciful/relaybot/core/logger"
)

// Deps wires a Handler.
type Deps struct {
	Store       *transcript.Store
	Interpreter *command.Interpreter
	Builder     *completion.Builder
	Service     completion.Service
	Messenger   Messenger
	Journal     journal.Recorder

	// BotID is the bot's own user ID, used for reply gating.
	BotID int64
	// DropUngatedTurns skips recording messages the bot does not answer.
	DropUngatedTurns bool
}

// Handler processes inbound messages one at a time per user.
type Handler struct {
	store     *transcript.Store
	interp    *command.Interpreter
	builder   *completion.Builder
	service   completion.Service
	messenger Messenger
	relay     *Relay
	journal   journal.Recorder

	botID       int64
	dropUngated bool
}

// NewHandler builds a Handler from deps.
func NewHandler(d Deps) *Handler {
	rec := d.Journal
	if rec == nil {
		rec = journal.Nop{}
	}
	interp := d.Interpreter
	if interp == nil {
		interp = command.NewInterpreter(d.Store, "")
	}
	builder := d.Builder
	if builder == nil {
		builder = completion.NewBuilder(completion.Policy{})
	}
	return &Handler{
		store:       d.Store,
		interp:      interp,
		builder:     builder,
		service:     d.Service,
		messenger:   d.Messenger,
		relay:       NewRelay(d.Store, d.Messenger, rec),
		journal:     rec,
		botID:       d.BotID,
		dropUngated: d.DropUngatedTurns,
	}
}

// Handle runs one inbound message through the command interpreter or the
// chat flow. Failures are answered with a notice to the user and returned
// for logging.
func (h *Handler) Handle(ctx context.Context, in Inbound) error {
	unlock, err := h.store.Lock(ctx, in.UserID)
	if err != nil {
		return fmt.Errorf("relay: wait for turn: %w", err)
	}
	defer unlock()

	sess := h.store.Touch(in.UserID, in.Username)
	ctx = logger.WithConversation(ctx, sess.ConversationID.String())

	cmd, isCmd, err := command.Parse(in.Text)
	if isCmd {
		return h.handleCommand(ctx, in, cmd, err)
	}
	return h.handleChat(ctx, in)
}

func (h *Handler) handleCommand(ctx context.Context, in Inbound, cmd command.Command, parseErr error) error {
	if parseErr != nil {
		return h.fail(ctx, in, parseErr)
	}
	reply, err := h.interp.Execute(ctx, command.Sender{UserID: in.UserID, Username: in.Username}, cmd)
	if err != nil {
		return h.fail(ctx, in, err)
	}
	if p, ok := cmd.(command.SetPrompt); ok {
		if sess, ok := h.store.Snapshot(in.UserID); ok {
			record(ctx, h.journal, journal.Entry{
				ConversationID: sess.ConversationID,
				UserID:         in.UserID,
				ChatID:         in.ChatID,
				Role:           transcript.RoleSystem,
				Content:        p.Prompt,
			})
		}
	}
	if err := h.messenger.Send(ctx, Outbound{ChatID: in.ChatID, Text: reply}); err != nil {
		return fault.New(fault.DeliveryError, "relay.command", cmd.Name(), err)
	}
	return nil
}

func (h *Handler) handleChat(ctx context.Context, in Inbound) error {
	respond := completion.ShouldRespond(in.IsReply, in.RepliedToSenderID, h.botID)
	if respond || !h.dropUngated {
		conv := h.store.AppendUserTurn(in.UserID, in.Text)
		record(ctx, h.journal, journal.Entry{
			ConversationID: conv,
			UserID:         in.UserID,
			ChatID:         in.ChatID,
			Role:           transcript.RoleUser,
			Content:        in.Text,
		})
	}
	if !respond {
		logger.Debug(ctx, "relay", "chat.gated",
			slog.String("status", "skip"),
			slog.Int64("replied_to", in.RepliedToSenderID),
		)
		return nil
	}

	sess, _ := h.store.Snapshot(in.UserID)
	req, err := h.builder.Build(sess)
	if err != nil {
		return h.fail(ctx, in, err)
	}
	resp, err := h.service.Complete(ctx, req)
	if err != nil {
		if fault.KindOf(err) != fault.ServiceError {
			err = fault.New(fault.ServiceError, "relay.complete", completion.ClassUpstream, err)
		}
		return h.fail(ctx, in, err)
	}
	if err := h.relay.Deliver(ctx, in.UserID, Outbound{ChatID: in.ChatID, ReplyTo: in.MessageID, Text: resp.Content}); err != nil {
		return h.fail(ctx, in, err)
	}

	logger.Info(ctx, "relay", "chat.replied",
		slog.String("status", "ok"),
		slog.String("conversation_id", sess.ConversationID.String()),
		slog.Int("turns", len(req.Messages)),
		slog.Int("tokens_in", resp.InputTokens),
		slog.Int("tokens_out", resp.OutputTokens),
	)
	return nil
}

// fail answers err with a notice and returns it.
func (h *Handler) fail(ctx context.Context, in Inbound, err error) error {
	level := slog.LevelWarn
	if k := fault.KindOf(err); k == fault.ServiceError || k == fault.DeliveryError || k == "" {
		level = slog.LevelError
	}
	logger.Event(ctx, "relay", level, "chat.failed",
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
		slog.String("err_code", codeOf(err)),
	)
	if sendErr := h.messenger.Send(ctx, Outbound{ChatID: in.ChatID, Text: Notice(err)}); sendErr != nil {
		logger.Warn(ctx, "relay", "notice.failed",
			slog.String("status", "fail"),
			slog.String("err", sendErr.Error()),
		)
	}
	return err
}

func codeOf(err error) string {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return fe.Code()
	}
	return "INTERNAL"
}
