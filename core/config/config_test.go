package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := "telegram:\n  token: from-file\n  run_mode: polling\nsender:\n  workers: 2\n  retry_backoff_ms: 500\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("BOT_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q, want env override", cfg.Telegram.Token)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q", cfg.Telegram.RunMode)
	}
	if cfg.Sender.Workers != 2 || cfg.Sender.RetryBackoff().Milliseconds() != 500 {
		t.Fatalf("sender = %+v", cfg.Sender)
	}
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "env-only")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "env-only" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}

func TestNormalizeErrors(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"missing token", Config{}, "token is required"},
		{"bad mode", Config{Telegram: TelegramConfig{Token: "t", RunMode: "carrier-pigeon"}}, "invalid telegram.run_mode"},
		{"webhook without url", Config{Telegram: TelegramConfig{Token: "t", RunMode: "webhook"}}, "webhook.url"},
		{"negative retries", Config{Telegram: TelegramConfig{Token: "t", HTTPRetries: -1}}, "http_retries"},
	}
	for _, tc := range cases {
		cfg := tc.cfg
		err := Normalize(&cfg)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err = %v, want %q", tc.name, err, tc.want)
		}
	}
}
