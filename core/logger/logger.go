package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"unicode"

	"github.com/m3rciful/relaybot/core/buildinfo"
	coreconfig "github.com/m3rciful/relaybot/core/config"
)

var (
	initOnce  sync.Once
	closeOnce sync.Once

	root gate
	out  *sink

	// L is the root logger. It stays nil until InitLogger succeeds and every
	// helper in this package tolerates that.
	L *slog.Logger
)

// settings is the resolved logging section of the config.
type settings struct {
	level   slog.Level
	enc     encoding
	order   []string
	every   int64
	profile string
	file    string
}

func resolve(cfg *coreconfig.Config) settings {
	s := settings{
		level:   slog.LevelInfo,
		enc:     encJSON,
		order:   defaultKeyOrder,
		every:   defaultDebugEvery,
		profile: "prod",
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}

	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.enc = encKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.enc = encKV
		}
	}

	if lvl := strings.TrimSpace(lc.Level); lvl != "" {
		if strings.EqualFold(lvl, "warning") {
			lvl = "warn"
		}
		if err := s.level.UnmarshalText([]byte(lvl)); err != nil {
			s.level = slog.LevelInfo
		}
	}

	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		keys := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
		if len(keys) > 0 {
			s.order = keys
		}
	}

	s.every = parseEvery(lc.DebugSample)
	if dir, name := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile); dir != "" && name != "" {
		s.file = filepath.Join(dir, name)
	}
	return s
}

// InitLogger installs the structured root logger on stdout and, when the
// config names one, an append-only log file. Only the first call has effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		s := resolve(cfg)
		outs := []io.Writer{os.Stdout}
		var closers []io.Closer
		if s.file != "" {
			f, ferr := openLogFile(s.file)
			if ferr != nil {
				err = ferr
				return
			}
			outs = append(outs, f)
			closers = append(closers, f)
		}

		root.min.Set(s.level)
		root.every.Store(s.every)
		root.trace.Store(traceRequested())
		out = newSink(outs, closers)
		L = slog.New(newHandler(&root, out, s.enc, s.order))
		slog.SetDefault(L)

		L.LogAttrs(context.Background(), slog.LevelInfo, "startup", startupAttrs(cfg, s)...)
	})
	return err
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return f, nil
}

func startupAttrs(cfg *coreconfig.Config, s settings) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("component", "app"),
		slog.String("event", "startup"),
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", buildinfo.Version),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
		slog.String("cfg_profile", s.profile),
	}
	if cfg != nil {
		attrs = append(attrs, slog.String("mode", cfg.Telegram.RunMode))
	}
	return attrs
}

// Shutdown closes the log file, if any. Later calls return nil.
func Shutdown() error {
	var err error
	closeOnce.Do(func() {
		if out != nil {
			err = out.close()
		}
	})
	return err
}

// Background returns context.Background() for call sites outside an update.
func Background() context.Context {
	return context.Background()
}

// LogEvent writes event through logg, falling back to the context logger and
// then to L. It is a no-op before InitLogger.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L scoped to a component, or nil before InitLogger.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs event for component at level.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), level, event, attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether the next high-volume debug event, such as
// a per-update receipt, should be written.
func ShouldSampleDebug() bool {
	return root.sample()
}
