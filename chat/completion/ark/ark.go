// Package ark implements completion.Service with an eino chat model backed by
// Volcengine Ark.
package ark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	arkmodel "github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	arkruntime "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"

	"github.com/m3rciful/relaybot/chat/completion"
	"github.com/m3rciful/relaybot/chat/fault"
	"github.com/m3rciful/relaybot/chat/transcript"
	"github.com/m3rciful/relaybot/core/logger"
)

// DefaultBaseURL and DefaultRegion point at the public Ark endpoint.
const (
	DefaultBaseURL = "https://ark.cn-beijing.volces.com/api/v3"
	DefaultRegion  = "cn-beijing"
)

// Config configures the Ark client.
type Config struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
	Timeout   time.Duration
}

// Generator is the part of an eino chat model the client calls.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Factory builds a generator for one penalty pair.
type Factory func(ctx context.Context, cfg *arkmodel.ChatModelConfig) (Generator, error)

// maxModels caps the model cache; the least recently used pair is evicted.
const maxModels = 8

// penalties keys the model cache. Ark takes the penalties only at model
// construction time.
type penalties struct {
	frequency float32
	presence  float32
}

// Client sends completion requests through eino.
type Client struct {
	cfg     Config
	factory Factory

	mu     sync.Mutex
	models map[penalties]Generator
	recent []penalties // least recently used first
}

// New returns a Client using ark.NewChatModel.
func New(cfg Config) *Client {
	return NewWithFactory(cfg, func(ctx context.Context, mc *arkmodel.ChatModelConfig) (Generator, error) {
		return arkmodel.NewChatModel(ctx, mc)
	})
}

// NewWithFactory returns a Client that builds models with f.
func NewWithFactory(cfg Config, f Factory) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	return &Client{cfg: cfg, factory: f, models: make(map[penalties]Generator)}
}

// Complete implements completion.Service.
func (c *Client) Complete(ctx context.Context, req completion.Request) (completion.Response, error) {
	gen, err := c.modelFor(ctx, penalties{
		frequency: float32(req.FrequencyPenalty),
		presence:  float32(req.PresencePenalty),
	})
	if err != nil {
		return completion.Response{}, fault.New(fault.ServiceError, "ark.complete", completion.ClassMalformedRequest, err)
	}

	opts := []model.Option{model.WithTemperature(float32(req.Temperature))}
	if req.MaxOutputTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxOutputTokens))
	}
	if len(req.Stop) > 0 {
		opts = append(opts, model.WithStop(req.Stop))
	}

	start := time.Now()
	out, err := gen.Generate(ctx, toMessages(req.Messages), opts...)
	dur := time.Since(start)
	if err != nil {
		class := classify(err)
		logger.Warn(ctx, "completion", "completion.failed",
			slog.String("provider", "ark"),
			slog.String("model", c.cfg.Model),
			slog.String("cause", class),
			slog.Int64("duration_ms", dur.Milliseconds()),
			slog.Any("err", err),
		)
		return completion.Response{}, fault.New(fault.ServiceError, "ark.complete", class, err)
	}
	if out == nil {
		return completion.Response{}, fault.New(fault.ServiceError, "ark.complete", completion.ClassUpstream, errors.New("empty response"))
	}

	resp := completion.Response{Content: out.Content}
	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		resp.InputTokens = out.ResponseMeta.Usage.PromptTokens
		resp.OutputTokens = out.ResponseMeta.Usage.CompletionTokens
	}
	logger.Debug(ctx, "completion", "completion.done",
		slog.String("provider", "ark"),
		slog.String("model", c.cfg.Model),
		slog.Int("tokens_in", resp.InputTokens),
		slog.Int("tokens_out", resp.OutputTokens),
		slog.Int64("duration_ms", dur.Milliseconds()),
	)
	return resp, nil
}

func (c *Client) modelFor(ctx context.Context, key penalties) (Generator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen, ok := c.models[key]; ok {
		c.touch(key)
		return gen, nil
	}
	gen, err := c.factory(ctx, c.modelConfig(key))
	if err != nil {
		return nil, fmt.Errorf("ark: build model: %w", err)
	}
	if len(c.recent) >= maxModels {
		delete(c.models, c.recent[0])
		c.recent = c.recent[1:]
	}
	c.models[key] = gen
	c.recent = append(c.recent, key)
	return gen, nil
}

// touch moves key to the most recently used end. Callers hold mu.
func (c *Client) touch(key penalties) {
	for i, k := range c.recent {
		if k == key {
			c.recent = append(c.recent[:i], c.recent[i+1:]...)
			break
		}
	}
	c.recent = append(c.recent, key)
}

func (c *Client) modelConfig(key penalties) *arkmodel.ChatModelConfig {
	freq, pres := key.frequency, key.presence
	retries := 0
	mc := &arkmodel.ChatModelConfig{
		BaseURL:          c.cfg.BaseURL,
		Region:           c.cfg.Region,
		APIKey:           c.cfg.APIKey,
		AccessKey:        c.cfg.AccessKey,
		SecretKey:        c.cfg.SecretKey,
		Model:            c.cfg.Model,
		FrequencyPenalty: &freq,
		PresencePenalty:  &pres,
		RetryTimes:       &retries,
	}
	if c.cfg.Timeout > 0 {
		timeout := c.cfg.Timeout
		mc.Timeout = &timeout
	}
	return mc
}

func toMessages(turns []transcript.Turn) []*schema.Message {
	out := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case transcript.RoleSystem:
			out = append(out, schema.SystemMessage(t.Content))
		case transcript.RoleAssistant:
			out = append(out, schema.AssistantMessage(t.Content, nil))
		default:
			out = append(out, schema.UserMessage(t.Content))
		}
	}
	return out
}

func classify(err error) string {
	var apiErr *arkruntime.APIError
	if errors.As(err, &apiErr) {
		return completion.StatusClass(apiErr.HTTPStatusCode)
	}
	var reqErr *arkruntime.RequestError
	if errors.As(err, &reqErr) {
		return completion.StatusClass(reqErr.HTTPStatusCode)
	}
	return completion.ClassUpstream
}
