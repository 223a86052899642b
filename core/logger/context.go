package logger

import (
	"context"
	"log/slog"
)

// meta is the per-update logging state carried in a context. Every With*
// call stores a modified copy.
type meta struct {
	rid          string
	handler      string
	conversation string
	updateID     int
	userID       int64
	chatID       int64
	log          *slog.Logger
}

type metaKey struct{}

func metaFrom(ctx context.Context) meta {
	if ctx == nil {
		return meta{}
	}
	m, _ := ctx.Value(metaKey{}).(meta)
	return m
}

func withMeta(ctx context.Context, set func(*meta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metaFrom(ctx)
	set(&m)
	return context.WithValue(ctx, metaKey{}, m)
}

// WithLogger makes log the fallback logger for LogEvent calls under ctx.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if log == nil {
		return ctx
	}
	return withMeta(ctx, func(m *meta) { m.log = log })
}

// FromContext returns the logger stored by WithLogger, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if m := metaFrom(ctx); m.log != nil {
		return m.log
	}
	return L
}

// WithRID attaches the update correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *meta) { m.rid = rid })
}

func RIDFrom(ctx context.Context) string { return metaFrom(ctx).rid }

// WithUpdateMeta attaches the Telegram update, user and chat identifiers.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *meta) {
		m.updateID, m.userID, m.chatID = updateID, userID, chatID
	})
}

func UpdateIDFrom(ctx context.Context) int { return metaFrom(ctx).updateID }

func UserIDFrom(ctx context.Context) int64 { return metaFrom(ctx).userID }

func ChatIDFrom(ctx context.Context) int64 { return metaFrom(ctx).chatID }

// WithHandler names the route handling the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		return ctx
	}
	return withMeta(ctx, func(m *meta) { m.handler = handler })
}

func HandlerFrom(ctx context.Context) string { return metaFrom(ctx).handler }

// WithConversation tags downstream logs with the conversation id.
func WithConversation(ctx context.Context, conversationID string) context.Context {
	if conversationID == "" {
		return ctx
	}
	return withMeta(ctx, func(m *meta) { m.conversation = conversationID })
}

func ConversationFrom(ctx context.Context) string { return metaFrom(ctx).conversation }
