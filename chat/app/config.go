package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/relaybot/chat/completion"
	coreconfig "github.com/m3rciful/relaybot/core/config"
	coredatabase "github.com/m3rciful/relaybot/core/database"
)

const (
	// ProviderOpenAI selects the OpenAI chat completions API.
	ProviderOpenAI = "openai"
	// ProviderArk selects the Volcengine Ark API through eino.
	ProviderArk = "ark"

	defaultTimeoutSeconds = 60
)

// CompletionConfig selects and tunes the completion provider.
type CompletionConfig struct {
	Provider string `yaml:"provider" envconfig:"COMPLETION_PROVIDER"`
	Model    string `yaml:"model" envconfig:"COMPLETION_MODEL"`
	BaseURL  string `yaml:"base_url" envconfig:"COMPLETION_BASE_URL"`
	// APIKey authenticates against either provider.
	APIKey       string `yaml:"api_key" envconfig:"OPENAI_API_KEY"`
	ArkAccessKey string `yaml:"ark_access_key" envconfig:"ARK_ACCESS_KEY"`
	ArkSecretKey string `yaml:"ark_secret_key" envconfig:"ARK_SECRET_KEY"`
	ArkRegion    string `yaml:"ark_region" envconfig:"ARK_REGION"`

	MaxOutputTokens int `yaml:"max_output_tokens" envconfig:"COMPLETION_MAX_OUTPUT_TOKENS"`
	// MaxTurns bounds the context sent per request; 0 sends everything.
	MaxTurns       int `yaml:"max_turns" envconfig:"COMPLETION_MAX_TURNS"`
	TimeoutSeconds int `yaml:"timeout_seconds" envconfig:"COMPLETION_TIMEOUT_SECONDS"`
}

// Timeout returns the provider HTTP timeout.
func (c CompletionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ChatConfig holds chat behaviour settings.
type ChatConfig struct {
	// DefaultChatID receives the startup greeting; 0 disables it.
	DefaultChatID    int64  `yaml:"default_chat_id" envconfig:"CHAT_ID"`
	Greeting         string `yaml:"greeting" envconfig:"CHAT_GREETING"`
	ReplyParseMode   string `yaml:"reply_parse_mode" envconfig:"CHAT_REPLY_PARSE_MODE"`
	DropUngatedTurns bool   `yaml:"drop_ungated_turns" envconfig:"CHAT_DROP_UNGATED_TURNS"`
}

// Config is the full relaybot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database   coredatabase.Config `yaml:"database"`
	Completion CompletionConfig    `yaml:"completion"`
	Chat       ChatConfig          `yaml:"chat"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// LoadConfig reads path and the environment into a validated Config.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates cfg and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	c := &cfg.Completion
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	switch c.Provider {
	case ProviderOpenAI:
		if strings.TrimSpace(c.APIKey) == "" {
			return fmt.Errorf("completion.api_key is required for provider %q", c.Provider)
		}
	case ProviderArk:
		if strings.TrimSpace(c.APIKey) == "" && (c.ArkAccessKey == "" || c.ArkSecretKey == "") {
			return fmt.Errorf("completion.api_key or ark_access_key/ark_secret_key is required for provider %q", c.Provider)
		}
		if strings.TrimSpace(c.Model) == "" {
			return fmt.Errorf("completion.model is required for provider %q", c.Provider)
		}
	default:
		return fmt.Errorf("invalid completion.provider %q; allowed: openai, ark", c.Provider)
	}
	if c.MaxOutputTokens < 0 || c.MaxTurns < 0 || c.TimeoutSeconds < 0 {
		return fmt.Errorf("completion.max_output_tokens, max_turns and timeout_seconds must be >= 0")
	}
	if c.MaxOutputTokens == 0 {
		c.MaxOutputTokens = completion.DefaultMaxOutputTokens
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = defaultTimeoutSeconds
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Chat.ReplyParseMode)) {
	case "", "plain", "markdown", "markdownv2", "html":
	default:
		return fmt.Errorf("invalid chat.reply_parse_mode %q; allowed: plain, markdown, markdownv2, html", cfg.Chat.ReplyParseMode)
	}

	if cfg.Database.Enabled() {
		cfg.Database.Normalize()
	}
	return nil
}
