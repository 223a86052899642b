package telegram

import (
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/relaybot/core/config"
)

const defaultPollTimeoutSeconds = 10

// allowedUpdates limits delivery to the update kinds the bot handles.
var allowedUpdates = []string{"message"}

// WebhookOptions declares webhook listener settings.
type WebhookOptions struct {
	Listen      string
	Port        int
	URL         string
	SecretToken string
}

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	Webhook                WebhookOptions
}

// BuildPoller returns a Telebot poller based on provided options.
func BuildPoller(opts PollerOptions) tele.Poller {
	if strings.EqualFold(strings.TrimSpace(opts.RunMode), coreconfig.RunModeWebhook) {
		return &tele.Webhook{
			Listen:         fmt.Sprintf("%s:%d", opts.Webhook.Listen, opts.Webhook.Port),
			SecretToken:    opts.Webhook.SecretToken,
			AllowedUpdates: allowedUpdates,
			Endpoint:       &tele.WebhookEndpoint{PublicURL: opts.Webhook.URL},
		}
	}
	return &tele.LongPoller{
		Timeout:        time.Duration(pollTimeoutSeconds(opts.LongPollTimeoutSeconds)) * time.Second,
		AllowedUpdates: allowedUpdates,
	}
}

func pollTimeoutSeconds(configured int) int {
	if configured <= 0 {
		return defaultPollTimeoutSeconds
	}
	return configured
}
