// Package bridge adapts telebot updates and sends to the relay handler.
package bridge

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/relaybot/chat/relay"
	tghelpers "github.com/m3rciful/relaybot/core/telegram/helpers"
	"github.com/m3rciful/relaybot/core/telegram/middleware"
	tgsender "github.com/m3rciful/relaybot/core/telegram/sender"
)

// InboundFrom maps the message of c to relay.Inbound. It reports false for
// updates without a sender or text.
func InboundFrom(c tele.Context) (relay.Inbound, bool) {
	if c == nil {
		return relay.Inbound{}, false
	}
	msg := c.Message()
	user := c.Sender()
	if msg == nil || user == nil || msg.Text == "" {
		return relay.Inbound{}, false
	}

	in := relay.Inbound{
		UserID:    user.ID,
		Username:  user.Username,
		MessageID: msg.ID,
		Text:      msg.Text,
	}
	if msg.Chat != nil {
		in.ChatID = msg.Chat.ID
	} else {
		in.ChatID = user.ID
	}
	if msg.ReplyTo != nil {
		in.IsReply = true
		if msg.ReplyTo.Sender != nil {
			in.RepliedToSenderID = msg.ReplyTo.Sender.ID
		}
	}
	return in, true
}

// Handler returns a telebot handler that feeds text messages to h.
func Handler(h *relay.Handler) tele.HandlerFunc {
	return func(c tele.Context) error {
		in, ok := InboundFrom(c)
		if !ok {
			return nil
		}
		ctx := tghelpers.BuildContext(c)
		return h.Handle(ctx, in)
	}
}

// BotSender is the part of *tele.Bot used for outbound text.
type BotSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Messenger implements relay.Messenger on top of the bot and the outbound
// dispatcher. Sends wait for their result so delivery failures surface.
type Messenger struct {
	bot        BotSender
	dispatcher *tgsender.Dispatcher
	parseMode  tele.ParseMode
}

// NewMessenger builds a Messenger. A nil dispatcher sends inline.
func NewMessenger(bot BotSender, d *tgsender.Dispatcher, parseMode string) *Messenger {
	return &Messenger{bot: bot, dispatcher: d, parseMode: ParseMode(parseMode)}
}

// Send delivers msg.Text unmodified to msg.ChatID.
func (m *Messenger) Send(ctx context.Context, msg relay.Outbound) error {
	if m == nil || m.bot == nil {
		return errors.New("bridge: messenger not configured")
	}
	opts := &tele.SendOptions{ParseMode: m.parseMode}
	if msg.ReplyTo != 0 {
		opts.ReplyTo = &tele.Message{ID: msg.ReplyTo}
		opts.AllowWithoutReply = true
	}
	run := func() error {
		_, err := m.bot.Send(tele.ChatID(msg.ChatID), msg.Text, opts)
		return err
	}

	var err error
	if m.dispatcher == nil {
		err = run()
	} else {
		err = m.dispatcher.Do(ctx, "sendMessage", run)
	}
	if err == nil {
		middleware.TrackSent(ctx)
	}
	return err
}

// ParseMode maps a configured name to a telebot parse mode. Unknown and
// empty names mean plain text.
func ParseMode(name string) tele.ParseMode {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "markdown":
		return tele.ModeMarkdown
	case "markdownv2":
		return tele.ModeMarkdownV2
	case "html":
		return tele.ModeHTML
	}
	return tele.ModeDefault
}
