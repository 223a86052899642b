// Package helpers bridges tele.Context and the context.Context used by services.
package helpers

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/relaybot/core/logger"
)

const contextKey = "logger_ctx"

// StoreContext attaches ctx to c so later middleware and handlers reuse it.
func StoreContext(c tele.Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(contextKey, ctx)
}

// ContextFrom returns the context stored by StoreContext.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(contextKey).(context.Context)
	return ctx, ok && ctx != nil
}

// BuildContext returns the stored context or derives a fresh one carrying
// rid and update/user/chat identifiers.
func BuildContext(c tele.Context) context.Context {
	if cached, ok := ContextFrom(c); ok {
		return cached
	}
	if c == nil {
		return logger.Background()
	}

	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	updateID := c.Update().ID

	rid, _ := c.Get("rid").(string)
	if rid == "" {
		rid = logger.BuildRID(updateID, chatID, userID)
	}

	ctx := logger.WithRID(logger.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	StoreContext(c, ctx)
	return ctx
}

// Enrich applies fn to the update context and stores the result.
func Enrich(c tele.Context, fn func(context.Context) context.Context) context.Context {
	ctx := BuildContext(c)
	if fn == nil {
		return ctx
	}
	ctx = fn(ctx)
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the update context with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	if handler == "" {
		return BuildContext(c)
	}
	return Enrich(c, func(ctx context.Context) context.Context {
		return logger.WithHandler(ctx, handler)
	})
}
