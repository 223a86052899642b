// Package openai implements completion.Service on top of the OpenAI chat
// completions API.
package openai

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/m3rciful/relaybot/chat/completion"
	"github.com/m3rciful/relaybot/chat/fault"
	"github.com/m3rciful/relaybot/chat/transcript"
	"github.com/m3rciful/relaybot/core/logger"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = goopenai.GPT3Dot5Turbo

// Config configures the client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the transport; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client sends completion requests to an OpenAI compatible endpoint.
type Client struct {
	api   *goopenai.Client
	model string
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		oc.BaseURL = strings.TrimRight(base, "/")
	}
	switch {
	case cfg.HTTPClient != nil:
		oc.HTTPClient = cfg.HTTPClient
	case cfg.Timeout > 0:
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	return &Client{api: goopenai.NewClientWithConfig(oc), model: model}
}

// Complete implements completion.Service.
func (c *Client) Complete(ctx context.Context, req completion.Request) (completion.Response, error) {
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, c.toRequest(req))
	dur := time.Since(start)
	if err != nil {
		class := classify(err)
		logger.Warn(ctx, "completion", "completion.failed",
			slog.String("provider", "openai"),
			slog.String("model", c.model),
			slog.String("cause", class),
			slog.Int64("duration_ms", dur.Milliseconds()),
			slog.Any("err", err),
		)
		return completion.Response{}, fault.New(fault.ServiceError, "openai.complete", class, err)
	}
	if len(resp.Choices) == 0 {
		return completion.Response{}, fault.New(fault.ServiceError, "openai.complete", completion.ClassUpstream, errors.New("no choices in response"))
	}
	logger.Debug(ctx, "completion", "completion.done",
		slog.String("provider", "openai"),
		slog.String("model", c.model),
		slog.Int("tokens_in", resp.Usage.PromptTokens),
		slog.Int("tokens_out", resp.Usage.CompletionTokens),
		slog.Int64("duration_ms", dur.Milliseconds()),
	)
	return completion.Response{
		Content:      resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (c *Client) toRequest(req completion.Request) goopenai.ChatCompletionRequest {
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, t := range req.Messages {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: roleOf(t.Role), Content: t.Content})
	}
	n := req.CandidateCount
	if n <= 0 {
		n = 1
	}
	// go-openai drops a zero temperature via omitempty.
	temp := float32(req.Temperature)
	if temp == 0 {
		temp = math.SmallestNonzeroFloat32
	}
	return goopenai.ChatCompletionRequest{
		Model:            c.model,
		Messages:         msgs,
		MaxTokens:        req.MaxOutputTokens,
		Temperature:      temp,
		FrequencyPenalty: float32(req.FrequencyPenalty),
		PresencePenalty:  float32(req.PresencePenalty),
		N:                n,
		Stop:             req.Stop,
		User:             req.User,
	}
}

func roleOf(r transcript.Role) string {
	switch r {
	case transcript.RoleSystem:
		return goopenai.ChatMessageRoleSystem
	case transcript.RoleAssistant:
		return goopenai.ChatMessageRoleAssistant
	default:
		return goopenai.ChatMessageRoleUser
	}
}

// classify maps a client error to the upstream failure class reported in
// fault.Error.Detail.
func classify(err error) string {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return completion.StatusClass(apiErr.HTTPStatusCode)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return completion.StatusClass(reqErr.HTTPStatusCode)
	}
	return completion.ClassUpstream
}
