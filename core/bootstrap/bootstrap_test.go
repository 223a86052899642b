package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/relaybot/core/config"
	coredatabase "github.com/m3rciful/relaybot/core/database"
)

func TestRunWithoutDatabase(t *testing.T) {
	var connected, migrated bool
	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return nil },
		Connect: func(context.Context, coredatabase.Config) (*sqlx.DB, error) {
			connected = true
			return nil, nil
		},
		Migrate: func(context.Context, coredatabase.Config) error {
			migrated = true
			return nil
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.DB != nil || connected || migrated {
		t.Fatalf("database touched without a host: connected=%v migrated=%v", connected, migrated)
	}
	if err := res.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRunMigratesBeforeConnect(t *testing.T) {
	var order []string
	var seen coredatabase.Config
	_, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   coredatabase.Config{Host: "db", Name: "relay"},
		LoggerInit: func(*coreconfig.Config) error { return nil },
		Migrate: func(_ context.Context, cfg coredatabase.Config) error {
			order = append(order, "migrate")
			seen = cfg
			return nil
		},
		Connect: func(context.Context, coredatabase.Config) (*sqlx.DB, error) {
			order = append(order, "connect")
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(order) != 2 || order[0] != "migrate" || order[1] != "connect" {
		t.Fatalf("order = %v", order)
	}
	if seen.Port != "5432" || seen.MigrationsPath != "migrations" {
		t.Fatalf("database config not normalized: %+v", seen)
	}
}

func TestRunPropagatesFailures(t *testing.T) {
	boom := errors.New("boom")
	_, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	_, err = Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   coredatabase.Config{Host: "db"},
		LoggerInit: func(*coreconfig.Config) error { return nil },
		Migrate:    func(context.Context, coredatabase.Config) error { return boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	if _, err := Run(context.Background(), Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}
