// Package router binds registry entries to telebot endpoints with a
// summary log line per handled update.
package router

import (
	"log/slog"
	"sort"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/relaybot/core/logger"
	tg "github.com/m3rciful/relaybot/core/telegram"
)

// CommandRoutes builds one route per registered command and alias.
func CommandRoutes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}

	cmds := reg.Commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	routes := make([]tg.Route, 0, len(cmds))
	for _, name := range names {
		def := cmds[name]
		handlerName := normalizeHandlerName(name)
		handler := def.Handler
		h := func(c tele.Context) error {
			return handleWithSummary(c, handlerName, time.Now(), func() error {
				return handler(c)
			})
		}
		routes = append(routes, tg.Route{Endpoint: name, Handler: h})
		for _, alias := range def.Aliases {
			if alias == "" {
				continue
			}
			if alias[0] != '/' {
				alias = "/" + alias
			}
			routes = append(routes, tg.Route{Endpoint: alias, Handler: h})
		}
	}

	logger.Info(logger.Background(), "tg.wire", "complete",
		slog.Int("commands", len(cmds)),
		slog.Int("routes", len(routes)),
	)
	return routes
}
