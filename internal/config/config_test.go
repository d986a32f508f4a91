package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Idempotency.Backend != "postgres" {
		t.Errorf("expected postgres idempotency backend, got %s", cfg.Idempotency.Backend)
	}
	if cfg.Idempotency.Retention != 72*time.Hour {
		t.Errorf("expected 72h retention, got %s", cfg.Idempotency.Retention)
	}
	if cfg.Database.LockTimeout != 5*time.Second {
		t.Errorf("expected 5s lock timeout, got %s", cfg.Database.LockTimeout)
	}
	if cfg.Checkout.VATRate != "0.15" {
		t.Errorf("expected VAT rate 0.15, got %s", cfg.Checkout.VATRate)
	}
	if cfg.IsProduction() {
		t.Error("default environment must not be production")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_ENV", "production")
	t.Setenv("IDEMPOTENCY_BACKEND", "Redis")
	t.Setenv("IDEMPOTENCY_LEASE", "5s")
	t.Setenv("CHECKOUT_VAT_MODE", "EXCLUSIVE")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg := Load()

	if !cfg.IsProduction() {
		t.Error("expected production environment")
	}
	if cfg.Idempotency.Backend != "redis" {
		t.Errorf("expected backend to be lower-cased, got %s", cfg.Idempotency.Backend)
	}
	if cfg.Idempotency.Lease != 5*time.Second {
		t.Errorf("expected 5s lease, got %s", cfg.Idempotency.Lease)
	}
	if cfg.Checkout.VATMode != "exclusive" {
		t.Errorf("expected exclusive VAT mode, got %s", cfg.Checkout.VATMode)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins: %v", cfg.CORS.AllowedOrigins)
	}
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{
		Host: "db", Port: "5432", User: "u", Password: "p",
		Database: "pos", Schema: "public", SSLMode: "disable",
	}
	want := "postgres://u:p@db:5432/pos?sslmode=disable&search_path=public"
	if got := c.DSN(); got != want {
		t.Errorf("DSN() = %s, want %s", got, want)
	}
}
