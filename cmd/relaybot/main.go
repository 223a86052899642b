// Command relaybot relays Telegram chats to a chat-completion API.
package main

import (
	"context"
	"log"

	"github.com/m3rciful/relaybot/chat/app"
	corecmd "github.com/m3rciful/relaybot/core/cmd"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return app.LoadConfig(path)
		},
		Bootstrap: func(ctx context.Context, cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return app.New(ctx, cfg.(*app.Config))
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
