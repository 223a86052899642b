package logger

// defaultKeyOrder lists the keys the relay emits, in line order. Keys not
// listed follow alphabetically.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"conversation_id",
	"handler",
	"op",
	"outcome",
	"duration_ms",
	"provider",
	"model",
	"turns",
	"messages",
	"tokens_in",
	"tokens_out",
	"role",
	"count",
	"mode",
	"listen",
	"public_url",
	"db",
	"host",
	"port",
	"attempt",
	"attempts",
	"err",
	"err_code",
	"cause",
}

// outcomes are the handler outcomes kept in output; others are dropped.
var outcomes = map[string]bool{
	"ok":           true,
	"fail":         true,
	"cancelled":    true,
	"rate_limited": true,
}

// secretKeys are fields that may echo upstream error text and get Redact.
var secretKeys = []string{"err", "error", "cause", "payload"}
