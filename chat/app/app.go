// Package app wires the chat relay onto the Telegram runtime.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/relaybot/chat/bridge"
	"github.com/m3rciful/relaybot/chat/command"
	"github.com/m3rciful/relaybot/chat/completion"
	"github.com/m3rciful/relaybot/chat/completion/ark"
	"github.com/m3rciful/relaybot/chat/completion/openai"
	"github.com/m3rciful/relaybot/chat/journal"
	"github.com/m3rciful/relaybot/chat/relay"
	"github.com/m3rciful/relaybot/chat/transcript"
	"github.com/m3rciful/relaybot/core/bootstrap"
	coreconfig "github.com/m3rciful/relaybot/core/config"
	"github.com/m3rciful/relaybot/core/logger"
	tg "github.com/m3rciful/relaybot/core/telegram"
	"github.com/m3rciful/relaybot/core/telegram/commands"
	"github.com/m3rciful/relaybot/core/telegram/router"
	tgsender "github.com/m3rciful/relaybot/core/telegram/sender"
)

// App owns the long-lived state of the bot.
type App struct {
	cfg     *Config
	infra   *bootstrap.Result
	store   *transcript.Store
	service completion.Service
	journal journal.Recorder

	now func() time.Time
}

// New bootstraps infrastructure for cfg and builds the App.
func New(ctx context.Context, cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	infra, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	var rec journal.Recorder = journal.Nop{}
	if infra.DB != nil {
		rec = journal.NewPostgres(infra.DB)
	}

	return &App{
		cfg:     cfg,
		infra:   infra,
		store:   transcript.NewStore(),
		service: NewService(cfg.Completion),
		journal: rec,
		now:     time.Now,
	}, nil
}

// NewService builds the completion service selected by cfg.Provider.
func NewService(cfg CompletionConfig) completion.Service {
	if cfg.Provider == ProviderArk {
		return ark.New(ark.Config{
			APIKey:    cfg.APIKey,
			AccessKey: cfg.ArkAccessKey,
			SecretKey: cfg.ArkSecretKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			Region:    cfg.ArkRegion,
			Timeout:   cfg.Timeout(),
		})
	}
	return openai.New(openai.Config{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout(),
	})
}

// CoreConfig exposes the embedded core configuration.
func (a *App) CoreConfig() *coreconfig.Config {
	return a.cfg.CoreConfig()
}

// Close releases the database handle, if any.
func (a *App) Close() error {
	return a.infra.Close()
}

// TelegramRunOptions builds the runtime options for the bot.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	core := a.cfg.CoreConfig()
	reg := tg.NewRegistry()

	return tg.RunOptions{
		Config:   core,
		Registry: reg,
		DispatcherOptions: tgsender.Options{
			QueueSize:    core.Sender.QueueSize,
			Workers:      core.Sender.Workers,
			MaxRetries:   core.Sender.MaxRetries,
			RetryBackoff: core.Sender.RetryBackoff(),
			MaxDuration:  core.Sender.MaxDuration(),
		},
		Middlewares: tg.DefaultMiddlewares(),
		BuildRoutes: func(rt tg.Runtime) []tg.Route {
			return a.routes(rt, reg)
		},
		OnStart: a.greet,
	}, nil
}

func (a *App) handler(rt tg.Runtime) *relay.Handler {
	var botID int64
	if rt.Bot != nil && rt.Bot.Me != nil {
		botID = rt.Bot.Me.ID
	}
	return relay.NewHandler(relay.Deps{
		Store:       a.store,
		Interpreter: command.NewInterpreter(a.store, a.cfg.Chat.Greeting),
		Builder: completion.NewBuilder(completion.Policy{
			MaxOutputTokens: a.cfg.Completion.MaxOutputTokens,
			MaxTurns:        a.cfg.Completion.MaxTurns,
		}),
		Service:          a.service,
		Messenger:        bridge.NewMessenger(rt.Bot, rt.Dispatcher, a.cfg.Chat.ReplyParseMode),
		Journal:          a.journal,
		BotID:            botID,
		DropUngatedTurns: a.cfg.Chat.DropUngatedTurns,
	})
}

// routes registers every chat command and the text fallback against one
// handler; command parsing happens inside the relay handler.
func (a *App) routes(rt tg.Runtime, reg *tg.Registry) []tg.Route {
	handle := bridge.Handler(a.handler(rt))
	for _, info := range command.Catalog() {
		reg.RegisterCommand(info.Name, commands.Command{
			Handler:     handle,
			Description: info.Description,
		})
	}
	reg.SetTextFallback(handle)

	routes := router.CommandRoutes(reg)
	return append(routes, router.TextRoute(reg))
}

// greet posts the greeting with the command list and start time to the
// configured chat. Failures are logged and never stop the bot.
func (a *App) greet(ctx context.Context, rt tg.Runtime) error {
	chatID := a.cfg.Chat.DefaultChatID
	if chatID == 0 {
		return nil
	}
	m := bridge.NewMessenger(rt.Bot, rt.Dispatcher, "")
	text := a.greetingText(a.now())
	if err := m.Send(ctx, relay.Outbound{ChatID: chatID, Text: text}); err != nil {
		logger.Warn(ctx, "chat", "greeting.sent",
			slog.String("status", "fail"),
			slog.Int64("chat_id", chatID),
			slog.String("err", logger.Redact(err.Error())),
		)
		return nil
	}
	logger.Info(ctx, "chat", "greeting.sent",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
	)
	return nil
}

func (a *App) greetingText(at time.Time) string {
	var b strings.Builder
	greeting := a.cfg.Chat.Greeting
	if greeting == "" {
		greeting = command.DefaultGreeting
	}
	b.WriteString(greeting)
	b.WriteString("\n\n")
	for _, info := range command.Catalog() {
		fmt.Fprintf(&b, "%s - %s\n", command.Usage(info.Name), info.Description)
	}
	b.WriteString("\n")
	b.WriteString(at.Format("2006-01-02 15:04:05"))
	return b.String()
}
