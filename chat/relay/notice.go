package relay

import (
	"github.com/m3rciful/relaybot/chat/command"
	"github.com/m3rciful/relaybot/chat/completion"
	"github.com/m3rciful/relaybot/chat/fault"
)

// Notice returns the user-visible text for a failed message.
func Notice(err error) string {
	switch fault.KindOf(err) {
	case fault.MissingUsername:
		return "Please set a username in Telegram settings and try again."
	case fault.MissingArgument:
		return "Usage: " + command.Usage(fault.DetailOf(err))
	case fault.InvalidNumber:
		return "Please provide a number. Usage: " + command.Usage(fault.DetailOf(err))
	case fault.EmptyTranscript:
		return "There is nothing to answer yet. Send me a message first."
	case fault.ServiceError:
		if fault.DetailOf(err) == completion.ClassRateLimit {
			return "The language model is busy right now. Please try again in a moment."
		}
		return "Sorry, I could not get a reply from the language model. Please try again later."
	case fault.DeliveryError:
		return "Sorry, I could not deliver the reply."
	}
	return "Something went wrong. Please try again."
}
