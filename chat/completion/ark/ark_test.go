package ark

import (
	"context"
	"errors"
	"testing"

	arkmodel "github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	arkruntime "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"

	"github.com/m3rciful/relaybot/chat/completion"
	"github.com/m3rciful/relaybot/chat/fault"
	"github.com/m3rciful/relaybot/chat/transcript"
)

type fakeModel struct {
	reply *schema.Message
	err   error
	input []*schema.Message
	opts  *model.Options
}

func (f *fakeModel) Generate(_ context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.input = in
	f.opts = model.GetCommonOptions(nil, opts...)
	return f.reply, f.err
}

func TestCompleteCachesModelPerPenaltyPair(t *testing.T) {
	var built []*arkmodel.ChatModelConfig
	fake := &fakeModel{reply: &schema.Message{
		Role:         schema.Assistant,
		Content:      "Hi there",
		ResponseMeta: &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 7, CompletionTokens: 2}},
	}}
	c := NewWithFactory(Config{Model: "ep-test"}, func(_ context.Context, mc *arkmodel.ChatModelConfig) (Generator, error) {
		built = append(built, mc)
		return fake, nil
	})

	req := completion.Request{
		Messages: []transcript.Turn{
			{Role: transcript.RoleSystem, Content: "Be terse"},
			{Role: transcript.RoleUser, Content: "Hi"},
		},
		MaxOutputTokens:  512,
		Temperature:      0.9,
		FrequencyPenalty: 0.5,
	}
	resp, err := c.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Content != "Hi there" || resp.InputTokens != 7 || resp.OutputTokens != 2 {
		t.Fatalf("response = %+v", resp)
	}
	if _, err := c.Complete(context.Background(), req); err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if len(built) != 1 {
		t.Fatalf("models built = %d, want 1", len(built))
	}
	if *built[0].FrequencyPenalty != 0.5 || *built[0].PresencePenalty != 0 {
		t.Fatalf("penalties = %v/%v", *built[0].FrequencyPenalty, *built[0].PresencePenalty)
	}
	if built[0].BaseURL != DefaultBaseURL || built[0].Model != "ep-test" {
		t.Fatalf("model config = %+v", built[0])
	}

	req.PresencePenalty = 1
	if _, err := c.Complete(context.Background(), req); err != nil {
		t.Fatalf("third complete: %v", err)
	}
	if len(built) != 2 {
		t.Fatalf("models built = %d, want 2", len(built))
	}

	if len(fake.input) != 2 || fake.input[0].Role != schema.System || fake.input[1].Content != "Hi" {
		t.Fatalf("input = %+v", fake.input)
	}
	if fake.opts.Temperature == nil || *fake.opts.Temperature != 0.9 {
		t.Fatalf("temperature option missing")
	}
	if fake.opts.MaxTokens == nil || *fake.opts.MaxTokens != 512 {
		t.Fatalf("max tokens option missing")
	}
}

func TestCompleteBoundsModelCache(t *testing.T) {
	builds := 0
	fake := &fakeModel{reply: &schema.Message{Role: schema.Assistant, Content: "ok"}}
	c := NewWithFactory(Config{Model: "ep-test"}, func(_ context.Context, _ *arkmodel.ChatModelConfig) (Generator, error) {
		builds++
		return fake, nil
	})
	req := completion.Request{Messages: []transcript.Turn{{Role: transcript.RoleUser, Content: "Hi"}}}

	for i := 0; i < 3*maxModels; i++ {
		req.FrequencyPenalty = float64(i) / 100
		if _, err := c.Complete(context.Background(), req); err != nil {
			t.Fatalf("complete %d: %v", i, err)
		}
	}
	if builds != 3*maxModels {
		t.Fatalf("models built = %d, want %d", builds, 3*maxModels)
	}
	if len(c.models) != maxModels || len(c.recent) != maxModels {
		t.Fatalf("cache size = %d/%d, want %d", len(c.models), len(c.recent), maxModels)
	}

	// The newest pair is still cached; the oldest was evicted.
	if _, err := c.Complete(context.Background(), req); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if builds != 3*maxModels {
		t.Fatalf("cached pair rebuilt: builds = %d", builds)
	}
	req.FrequencyPenalty = 0
	if _, err := c.Complete(context.Background(), req); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if builds != 3*maxModels+1 {
		t.Fatalf("evicted pair not rebuilt: builds = %d", builds)
	}
	if len(c.models) != maxModels {
		t.Fatalf("cache size = %d, want %d", len(c.models), maxModels)
	}
}

func TestCompleteClassifiesErrors(t *testing.T) {
	fake := &fakeModel{err: &arkruntime.APIError{HTTPStatusCode: 429, Message: "slow down"}}
	c := NewWithFactory(Config{}, func(context.Context, *arkmodel.ChatModelConfig) (Generator, error) {
		return fake, nil
	})
	_, err := c.Complete(context.Background(), completion.Request{
		Messages: []transcript.Turn{{Role: transcript.RoleUser, Content: "Hi"}},
	})
	if !errors.Is(err, fault.ErrService) {
		t.Fatalf("err = %v, want service error", err)
	}
	if d := fault.DetailOf(err); d != completion.ClassRateLimit {
		t.Fatalf("detail = %q", d)
	}

	fake.err = errors.New("connection reset")
	_, err = c.Complete(context.Background(), completion.Request{
		Messages: []transcript.Turn{{Role: transcript.RoleUser, Content: "Hi"}},
	})
	if d := fault.DetailOf(err); d != completion.ClassUpstream {
		t.Fatalf("detail = %q", d)
	}
}

func TestCompleteFactoryError(t *testing.T) {
	c := NewWithFactory(Config{}, func(context.Context, *arkmodel.ChatModelConfig) (Generator, error) {
		return nil, errors.New("missing credentials")
	})
	_, err := c.Complete(context.Background(), completion.Request{
		Messages: []transcript.Turn{{Role: transcript.RoleUser, Content: "Hi"}},
	})
	if !errors.Is(err, fault.ErrService) {
		t.Fatalf("err = %v, want service error", err)
	}
}
