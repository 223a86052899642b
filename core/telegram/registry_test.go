package telegram

import (
	"context"
	"errors"
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/relaybot/core/telegram/commands"
)

func noop(tele.Context) error { return nil }

func TestRegisterCommandValidation(t *testing.T) {
	reg := NewRegistry()
	if !reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "Start"}) {
		t.Fatal("valid command rejected")
	}
	cases := []struct {
		name string
		cmd  commands.Command
	}{
		{"/start", commands.Command{Handler: noop, Description: "dup"}},
		{"start", commands.Command{Handler: noop, Description: "no slash"}},
		{"/nohandler", commands.Command{Description: "x"}},
		{"/nodesc", commands.Command{Handler: noop}},
		{"", commands.Command{Handler: noop, Description: "x"}},
	}
	for _, tc := range cases {
		if reg.RegisterCommand(tc.name, tc.cmd) {
			t.Fatalf("RegisterCommand(%q) accepted", tc.name)
		}
	}
	if got := len(reg.Commands()); got != 1 {
		t.Fatalf("commands = %d, want 1", got)
	}
}

func TestListCommandsSortedAndVisible(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterCommand("/setprompt", commands.Command{Handler: noop, Description: "Prompt"})
	reg.RegisterCommand("/newtopic", commands.Command{Handler: noop, Description: "Topic"})
	reg.RegisterCommand("/debug", commands.Command{Handler: noop, Description: "Debug", Hidden: true})

	all := reg.ListCommands(false)
	if len(all) != 3 {
		t.Fatalf("all = %v", all)
	}
	visible := reg.ListCommands(true)
	if len(visible) != 2 || visible[0].Text != "newtopic" || visible[1].Text != "setprompt" {
		t.Fatalf("visible = %v", visible)
	}
}

func TestCommandsReturnsCopy(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "Start"})
	cmds := reg.Commands()
	delete(cmds, "/start")
	if len(reg.Commands()) != 1 {
		t.Fatal("registry mutated through Commands()")
	}
}

type fakeSetter struct {
	got []tele.Command
	err error
}

func (f *fakeSetter) SetCommands(opts ...interface{}) error {
	if len(opts) > 0 {
		f.got, _ = opts[0].([]tele.Command)
	}
	return f.err
}

func TestInitBotCommands(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "Start"})

	setter := &fakeSetter{}
	InitBotCommands(context.Background(), setter, reg)
	if len(setter.got) != 1 || setter.got[0].Text != "start" || setter.got[0].Description != "Start" {
		t.Fatalf("published = %v", setter.got)
	}

	// Failures are logged, never fatal.
	InitBotCommands(context.Background(), &fakeSetter{err: errors.New("boom")}, reg)
	InitBotCommands(context.Background(), setter, nil)
}

func TestTextFallback(t *testing.T) {
	reg := NewRegistry()
	if reg.TextFallback() != nil {
		t.Fatal("unexpected fallback")
	}
	reg.SetTextFallback(noop)
	if reg.TextFallback() == nil {
		t.Fatal("fallback not stored")
	}
}

func TestDefaultMiddlewaresOrder(t *testing.T) {
	mws := DefaultMiddlewares()
	want := []string{"recover", "logger", "metrics"}
	if len(mws) != len(want) {
		t.Fatalf("middlewares = %d", len(mws))
	}
	for i, mw := range mws {
		if mw.Name != want[i] || mw.Use == nil {
			t.Fatalf("middleware %d = %q", i, mw.Name)
		}
	}
}
