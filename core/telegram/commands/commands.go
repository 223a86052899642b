// Package commands describes entries of the bot command menu.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command binds a slash command to its handler and menu description.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// Hidden commands are routed but left out of setMyCommands.
	Hidden  bool
	Aliases []string
}
