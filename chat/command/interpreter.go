package command

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/m3rciful/relaybot/chat/fault"
	"github.com/m3rciful/relaybot/chat/transcript"
	"github.com/m3rciful/relaybot/core/logger"
)

// DefaultGreeting is sent in reply to /start when no greeting is configured.
const DefaultGreeting = "Hello, I'm a bot powered by a large language model. Just send me a message.\n/newtopic - start a new chat"

// Sender identifies who issued a command.
type Sender struct {
	UserID   int64
	Username string
}

// Interpreter applies commands to the transcript store.
type Interpreter struct {
	store    *transcript.Store
	greeting string
}

// NewInterpreter builds an Interpreter. An empty greeting selects DefaultGreeting.
func NewInterpreter(store *transcript.Store, greeting string) *Interpreter {
	if greeting == "" {
		greeting = DefaultGreeting
	}
	return &Interpreter{store: store, greeting: greeting}
}

// Execute performs the state change of cmd and returns the confirmation reply.
func (i *Interpreter) Execute(ctx context.Context, from Sender, cmd Command) (string, error) {
	var reply string
	switch c := cmd.(type) {
	case Start:
		if from.Username == "" {
			return "", fault.New(fault.MissingUsername, "command.execute", NameStart, nil)
		}
		i.store.Reset(from.UserID)
		reply = i.greeting
	case NewTopic:
		i.store.Clear(from.UserID)
		reply = "Created new chat!"
	case SetPrompt:
		i.store.SetPrompt(from.UserID, c.Prompt)
		reply = fmt.Sprintf("System prompt set to '%s'.", c.Prompt)
	case SetParam:
		i.store.SetParam(from.UserID, c.Param, c.Value)
		reply = fmt.Sprintf("%s set to %s.", paramLabel(c.Param), strconv.FormatFloat(c.Value, 'g', -1, 64))
	default:
		return "", fmt.Errorf("command: unhandled command %T", cmd)
	}

	logger.Info(ctx, "chat.command", "command.applied",
		slog.String("status", "ok"),
		slog.String("op", cmd.Name()),
		slog.Int64("user_id", from.UserID),
	)
	return reply, nil
}

func paramLabel(p transcript.Param) string {
	switch p {
	case transcript.FrequencyPenalty:
		return "Frequency penalty"
	case transcript.PresencePenalty:
		return "Presence penalty"
	}
	return "Temperature"
}

// Usage returns the help line for a command name.
func Usage(name string) string {
	switch name {
	case NameSetPrompt:
		return NameSetPrompt + " <text>"
	case NameSetTemperature, NameSetFreqPenalty, NameSetPresPenalty:
		return name + " <number>"
	}
	return name
}

// Info describes a command for the Telegram command menu.
type Info struct {
	Name        string
	Description string
}

// Catalog lists the commands in menu order.
func Catalog() []Info {
	return []Info{
		{NameStart, "Start over with default settings"},
		{NameNewTopic, "Start a new chat"},
		{NameSetPrompt, "Set the system prompt"},
		{NameSetTemperature, "Set the sampling temperature"},
		{NameSetFreqPenalty, "Set the frequency penalty"},
		{NameSetPresPenalty, "Set the presence penalty"},
	}
}
