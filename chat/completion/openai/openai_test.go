package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m3rciful/relaybot/chat/completion"
	"github.com/m3rciful/relaybot/chat/fault"
	"github.com/m3rciful/relaybot/chat/transcript"
)

type wireRequest struct {
	Model            string  `json:"model"`
	MaxTokens        int     `json:"max_tokens"`
	Temperature      float32 `json:"temperature"`
	FrequencyPenalty float32 `json:"frequency_penalty"`
	PresencePenalty  float32 `json:"presence_penalty"`
	N                int     `json:"n"`
	User             string  `json:"user"`
	Messages         []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestCompleteSendsTranscript(t *testing.T) {
	var got wireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hi there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "test-key", Model: "gpt-test", BaseURL: srv.URL})
	resp, err := c.Complete(context.Background(), completion.Request{
		Messages: []transcript.Turn{
			{Role: transcript.RoleSystem, Content: "Be terse"},
			{Role: transcript.RoleUser, Content: "Hi"},
		},
		MaxOutputTokens:  1024,
		Temperature:      0.5,
		FrequencyPenalty: 0.25,
		PresencePenalty:  0.75,
		CandidateCount:   1,
		User:             "alice",
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Content != "Hi there" || resp.InputTokens != 12 || resp.OutputTokens != 3 {
		t.Fatalf("response = %+v", resp)
	}
	if got.Model != "gpt-test" || got.MaxTokens != 1024 || got.N != 1 || got.User != "alice" {
		t.Fatalf("request = %+v", got)
	}
	if got.Temperature != 0.5 || got.FrequencyPenalty != 0.25 || got.PresencePenalty != 0.75 {
		t.Fatalf("sampling params = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "Hi" {
		t.Fatalf("messages = %+v", got.Messages)
	}
}

func TestCompleteKeepsZeroTemperature(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	_, err := New(Config{APIKey: "k", BaseURL: srv.URL}).Complete(context.Background(), completion.Request{
		Messages:    []transcript.Turn{{Role: transcript.RoleUser, Content: "Hi"}},
		Temperature: 0,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	v, ok := body["temperature"]
	if !ok {
		t.Fatalf("temperature missing from request: %v", body)
	}
	if f, _ := v.(float64); f < 0 || f > 1e-6 {
		t.Fatalf("temperature = %v, want ~0", v)
	}
}

func TestCompleteClassifiesErrors(t *testing.T) {
	cases := []struct {
		status int
		want   string
	}{
		{http.StatusTooManyRequests, "rate_limit"},
		{http.StatusUnauthorized, "auth"},
		{http.StatusBadRequest, "malformed_request"},
		{http.StatusInternalServerError, "upstream"},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"test_error"}}`))
		}))
		c := New(Config{APIKey: "k", BaseURL: srv.URL})
		_, err := c.Complete(context.Background(), completion.Request{
			Messages: []transcript.Turn{{Role: transcript.RoleUser, Content: "Hi"}},
		})
		srv.Close()
		if !errors.Is(err, fault.ErrService) {
			t.Fatalf("status %d: err = %v, want service error", tc.status, err)
		}
		if d := fault.DetailOf(err); d != tc.want {
			t.Fatalf("status %d: detail = %q, want %q", tc.status, d, tc.want)
		}
	}
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer srv.Close()

	_, err := New(Config{APIKey: "k", BaseURL: srv.URL}).Complete(context.Background(), completion.Request{
		Messages: []transcript.Turn{{Role: transcript.RoleUser, Content: "Hi"}},
	})
	if !errors.Is(err, fault.ErrService) {
		t.Fatalf("err = %v, want service error", err)
	}
}
