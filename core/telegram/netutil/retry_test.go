package netutil

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad request"), false},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"url timeout", &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: &net.DNSError{IsTimeout: true}}, true},
		{"flood", tele.FloodError{RetryAfter: 3}, true},
		{"server error", &tele.Error{Code: 502, Description: "Bad Gateway"}, true},
		{"client error", &tele.Error{Code: 400, Description: "Bad Request: chat not found"}, false},
	}
	for _, tc := range cases {
		if got := ShouldRetry(tc.err); got != tc.want {
			t.Fatalf("%s: ShouldRetry = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRetryAfter(t *testing.T) {
	if got := RetryAfter(tele.FloodError{RetryAfter: 3}); got != 3*time.Second {
		t.Fatalf("RetryAfter = %v", got)
	}
	if got := RetryAfter(errors.New("x")); got != 0 {
		t.Fatalf("RetryAfter = %v", got)
	}
}
