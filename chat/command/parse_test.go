package command

import (
	"errors"
	"testing"

	"github.com/m3rciful/relaybot/chat/fault"
	"github.com/m3rciful/relaybot/chat/transcript"
)

func TestParseRecognisedCommands(t *testing.T) {
	cases := []struct {
		text string
		want Command
	}{
		{"/start", Start{}},
		{"/start@relay_bot", Start{}},
		{"  /newtopic", NewTopic{}},
		{"/newtopic ignored words", NewTopic{}},
		{"/setprompt Be terse", SetPrompt{Prompt: "Be terse"}},
		{"/setprompt   You are a pirate.\nSpeak like one.  ", SetPrompt{Prompt: "You are a pirate.\nSpeak like one."}},
		{"/settemperature 1.2", SetParam{Param: transcript.Temperature, Value: 1.2, Raw: "1.2"}},
		{"/setfreqpenalty -0.5", SetParam{Param: transcript.FrequencyPenalty, Value: -0.5, Raw: "-0.5"}},
		{"/setprespenalty@relay_bot 2", SetParam{Param: transcript.PresencePenalty, Value: 2, Raw: "2"}},
	}
	for _, tc := range cases {
		got, ok, err := Parse(tc.text)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tc.text, err)
		}
		if !ok {
			t.Fatalf("Parse(%q) not recognised", tc.text)
		}
		if got != tc.want {
			t.Fatalf("Parse(%q) = %#v, want %#v", tc.text, got, tc.want)
		}
	}
}

func TestParseNotACommand(t *testing.T) {
	for _, text := range []string{
		"hello",
		"",
		"what does /start do?",
		"/Start",
		"/starting",
		"/settemp 1",
		"/help",
	} {
		cmd, ok, err := Parse(text)
		if ok || err != nil || cmd != nil {
			t.Fatalf("Parse(%q) = %v, %v, %v; want not a command", text, cmd, ok, err)
		}
	}
}

func TestParseBadArguments(t *testing.T) {
	cases := []struct {
		text string
		kind error
	}{
		{"/setprompt", fault.ErrMissingArgument},
		{"/setprompt    ", fault.ErrMissingArgument},
		{"/settemperature abc", fault.ErrInvalidNumber},
		{"/settemperature", fault.ErrInvalidNumber},
		{"/setfreqpenalty 1.0 2.0", fault.ErrInvalidNumber},
		{"/setprespenalty NaN", fault.ErrInvalidNumber},
		{"/settemperature +Inf", fault.ErrInvalidNumber},
	}
	for _, tc := range cases {
		cmd, ok, err := Parse(tc.text)
		if !ok {
			t.Fatalf("Parse(%q) must recognise the command", tc.text)
		}
		if cmd != nil {
			t.Fatalf("Parse(%q) returned command %#v with error", tc.text, cmd)
		}
		if !errors.Is(err, tc.kind) {
			t.Fatalf("Parse(%q) error = %v, want %v", tc.text, err, tc.kind)
		}
	}
}

func TestSetParamName(t *testing.T) {
	if n := (SetParam{Param: transcript.FrequencyPenalty}).Name(); n != NameSetFreqPenalty {
		t.Fatalf("name = %s", n)
	}
	if n := (SetParam{Param: transcript.Temperature}).Name(); n != NameSetTemperature {
		t.Fatalf("name = %s", n)
	}
}
