package router

import (
	"errors"
	"fmt"
	"testing"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/relaybot/core/telegram"
	"github.com/m3rciful/relaybot/core/telegram/commands"
)

type codedErr struct{ code string }

func (e *codedErr) Error() string { return "coded" }
func (e *codedErr) Code() string  { return e.code }

type plainErr struct{}

func (plainErr) Error() string { return "plain" }

func TestDeriveErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&codedErr{code: "invalid_number"}, "INVALID_NUMBER"},
		{fmt.Errorf("wrap: %w", &codedErr{code: "delivery error"}), "DELIVERY_ERROR"},
		{plainErr{}, "PLAINERR"},
		{errors.New("x"), "ERRORSTRING"},
	}
	for _, tc := range cases {
		if got := deriveErrorCode(tc.err); got != tc.want {
			t.Fatalf("deriveErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestNormalizeHandlerName(t *testing.T) {
	cases := map[string]string{
		"/SetPrompt": "setprompt",
		" ":          "unknown",
		"new topic":  "new_topic",
	}
	for in, want := range cases {
		if got := normalizeHandlerName(in); got != want {
			t.Fatalf("normalizeHandlerName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCommandRoutesIncludeAliases(t *testing.T) {
	reg := tg.NewRegistry()
	h := func(tele.Context) error { return nil }
	reg.RegisterCommand("/newtopic", commands.Command{Handler: h, Description: "Topic", Aliases: []string{"reset"}})
	reg.RegisterCommand("/start", commands.Command{Handler: h, Description: "Start"})

	routes := CommandRoutes(reg)
	var got []string
	for _, r := range routes {
		got = append(got, r.Endpoint.(string))
		if r.Handler == nil {
			t.Fatalf("route %v has nil handler", r.Endpoint)
		}
	}
	want := []string{"/newtopic", "/reset", "/start"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("endpoints = %v, want %v", got, want)
	}
	if CommandRoutes(nil) != nil {
		t.Fatal("nil registry should yield no routes")
	}
}

func TestTextRouteEndpoint(t *testing.T) {
	r := TextRoute(tg.NewRegistry())
	if r.Endpoint != tele.OnText || r.Handler == nil {
		t.Fatalf("route = %+v", r)
	}
}
