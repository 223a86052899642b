package telegram

import (
	"github.com/m3rciful/relaybot/core/telegram/middleware"
)

// DefaultMiddlewares builds the shared middleware chain: panic recovery,
// update logging and per-update send counters, in that order.
func DefaultMiddlewares() []Middleware {
	return []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
		{Name: "logger", Use: middleware.LoggerMiddleware},
		{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
	}
}
