// Package command turns slash-commands into typed values and applies them to
// the transcript store.
package command

import (
	"math"
	"strconv"
	"strings"

	"github.com/m3rciful/relaybot/chat/fault"
	"github.com/m3rciful/relaybot/chat/transcript"
)

// Command names as typed by users.
const (
	NameStart          = "/start"
	NameNewTopic       = "/newtopic"
	NameSetPrompt      = "/setprompt"
	NameSetTemperature = "/settemperature"
	NameSetFreqPenalty = "/setfreqpenalty"
	NameSetPresPenalty = "/setprespenalty"
)

// Command is one of Start, NewTopic, SetPrompt or SetParam.
type Command interface {
	Name() string
	command()
}

// Start resets the session.
type Start struct{}

// NewTopic clears the transcript.
type NewTopic struct{}

// SetPrompt replaces the transcript with a single system turn.
type SetPrompt struct {
	Prompt string
}

// SetParam changes one generation-control parameter.
type SetParam struct {
	Param transcript.Param
	Value float64
	// Raw is the argument as typed, echoed back to the user.
	Raw string
}

func (Start) Name() string     { return NameStart }
func (NewTopic) Name() string  { return NameNewTopic }
func (SetPrompt) Name() string { return NameSetPrompt }

func (c SetParam) Name() string {
	switch c.Param {
	case transcript.FrequencyPenalty:
		return NameSetFreqPenalty
	case transcript.PresencePenalty:
		return NameSetPresPenalty
	}
	return NameSetTemperature
}

func (Start) command()     {}
func (NewTopic) command()  {}
func (SetPrompt) command() {}
func (SetParam) command()  {}

var paramCommands = map[string]transcript.Param{
	NameSetTemperature: transcript.Temperature,
	NameSetFreqPenalty: transcript.FrequencyPenalty,
	NameSetPresPenalty: transcript.PresencePenalty,
}

// Parse inspects the first token of text. ok is false when text is not one
// of the recognised commands; the caller then treats it as a chat message.
// A recognised command with a bad argument yields an error and ok=true.
func Parse(text string) (cmd Command, ok bool, err error) {
	name, arg := split(text)
	switch name {
	case NameStart:
		return Start{}, true, nil
	case NameNewTopic:
		return NewTopic{}, true, nil
	case NameSetPrompt:
		if arg == "" {
			return nil, true, fault.New(fault.MissingArgument, "command.parse", name, nil)
		}
		return SetPrompt{Prompt: arg}, true, nil
	}
	if p, found := paramCommands[name]; found {
		v, perr := strconv.ParseFloat(arg, 64)
		if perr != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			if arg == "" {
				return nil, true, fault.New(fault.InvalidNumber, "command.parse", name, nil)
			}
			return nil, true, fault.New(fault.InvalidNumber, "command.parse", name, perr)
		}
		return SetParam{Param: p, Value: v, Raw: arg}, true, nil
	}
	return nil, false, nil
}

// split returns the command token without any @botname suffix and the
// trimmed remainder of the message.
func split(text string) (string, string) {
	text = strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	name, rest := text, ""
	if i := strings.IndexAny(text, " \t\r\n"); i >= 0 {
		name, rest = text[:i], text[i+1:]
	}
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	return name, strings.TrimSpace(rest)
}
