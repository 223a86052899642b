package router

import (
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/relaybot/core/telegram"
)

// TextRoute routes plain text to the registry's text fallback. Slash
// commands that are not registered arrive here too.
func TextRoute(reg *tg.Registry) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		if reg == nil {
			return nil
		}
		fb := reg.TextFallback()
		if fb == nil {
			return nil
		}
		return handleWithSummary(c, "chat", start, func() error {
			return fb(c)
		})
	}
	return tg.Route{Endpoint: tele.OnText, Handler: handler}
}
