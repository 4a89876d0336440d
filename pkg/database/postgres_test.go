package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/wonny/globallink/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	return &config.Config{
		Env: "test",
		Database: config.DatabaseConfig{
			URL:             url,
			MaxConns:        2,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: time.Minute,
		},
	}
}

func TestNew(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := New(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		t.Errorf("Failed to ping database: %v", err)
	}
	if stats := db.Stats(); stats.MaxConns != 2 {
		t.Errorf("MaxConns = %d, want 2", stats.MaxConns)
	}
}

func TestMigrate(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := New(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	stmt := `CREATE TEMP TABLE IF NOT EXISTS migrate_check (id int)`
	if err := db.Migrate(ctx, stmt, stmt); err != nil {
		t.Errorf("Migrate() should be idempotent: %v", err)
	}
}

func TestNew_InvalidURL(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{URL: "::not a url::"}}
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("expected parse error for invalid URL")
	}
}
