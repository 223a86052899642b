package middleware

import (
	"context"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/m3rciful/relaybot/core/telegram/helpers"
)

const countersKey = "counters"

type countersCtxKey struct{}

// Counters tracks what a single update produced.
type Counters struct {
	messages atomic.Int64
}

// Messages returns the number of messages sent for the update.
func (c *Counters) Messages() int {
	if c == nil {
		return 0
	}
	return int(c.messages.Load())
}

// WithCounters returns a context carrying fresh counters.
func WithCounters(ctx context.Context) (context.Context, *Counters) {
	if ctx == nil {
		ctx = context.Background()
	}
	c := &Counters{}
	return context.WithValue(ctx, countersCtxKey{}, c), c
}

// TrackSent counts one delivered message against the update in ctx.
// Outbound paths that bypass tele.Context call it directly.
func TrackSent(ctx context.Context) {
	if ctx == nil {
		return
	}
	if c, ok := ctx.Value(countersCtxKey{}).(*Counters); ok && c != nil {
		c.messages.Add(1)
	}
}

// metricsContext counts messages sent through tele.Context.
type metricsContext struct {
	tele.Context
	counters *Counters
}

// Send proxies tele.Context.Send while updating the counter.
func (m metricsContext) Send(what interface{}, opts ...interface{}) error {
	err := m.Context.Send(what, opts...)
	if err == nil {
		m.counters.messages.Add(1)
	}
	return err
}

// Reply proxies tele.Context.Reply while updating the counter.
func (m metricsContext) Reply(what interface{}, opts ...interface{}) error {
	err := m.Context.Reply(what, opts...)
	if err == nil {
		m.counters.messages.Add(1)
	}
	return err
}

// MessageMetricsMiddleware attaches per-update counters to both contexts.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		var counters *Counters
		tghelpers.Enrich(c, func(ctx context.Context) context.Context {
			ctx, counters = WithCounters(ctx)
			return ctx
		})
		c.Set(countersKey, counters)
		return next(metricsContext{Context: c, counters: counters})
	}
}

// GetCounters reads the message count recorded for the update.
func GetCounters(c tele.Context) int {
	if c == nil {
		return 0
	}
	counters, _ := c.Get(countersKey).(*Counters)
	return counters.Messages()
}
