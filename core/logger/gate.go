package logger

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// defaultDebugEvery keeps one in fifty high-volume debug events.
const defaultDebugEvery = 50

// gate decides which records reach the sink: a minimum level, plus 1-in-N
// sampling that callers consult before emitting high-volume debug events.
type gate struct {
	min   slog.LevelVar
	every atomic.Int64
	seen  atomic.Int64
	trace atomic.Bool
}

func (g *gate) enabled(l slog.Level) bool {
	return l >= g.min.Level()
}

// sample reports whether the next high-volume debug event passes.
func (g *gate) sample() bool {
	if g.trace.Load() {
		return true
	}
	n := g.every.Load()
	if n <= 1 {
		return true
	}
	return g.seen.Add(1)%n == 1
}

// parseEvery turns "N" or "K/N" into a keep-one-in-N interval. Empty input
// selects the default; anything unparsable or non-positive disables sampling.
func parseEvery(spec string) int64 {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return defaultDebugEvery
	}
	num, den := int64(1), int64(0)
	if a, b, ok := strings.Cut(spec, "/"); ok {
		n, err1 := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
		d, err2 := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
		if err1 != nil || err2 != nil {
			return 1
		}
		num, den = n, d
	} else {
		d, err := strconv.ParseInt(spec, 10, 64)
		if err != nil {
			return 1
		}
		den = d
	}
	if num <= 0 || den <= 0 || num >= den {
		return 1
	}
	return den / num
}

// traceRequested reports whether TRACE or LOG_TRACE asks for every debug event.
func traceRequested() bool {
	for _, name := range []string{"TRACE", "LOG_TRACE"} {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
		case "1", "true", "on", "yes":
			return true
		}
	}
	return false
}
