package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("MESSAGE_BUFFER_DELAY", "")

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.WahaSession != "corretores" {
		t.Errorf("expected default session corretores, got %s", cfg.WahaSession)
	}
	if cfg.BufferDelay != 3*time.Second {
		t.Errorf("expected 3s buffer delay, got %s", cfg.BufferDelay)
	}
	if cfg.LandingFollowUpDelay != 5*time.Minute {
		t.Errorf("expected 5m landing follow-up delay, got %s", cfg.LandingFollowUpDelay)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MESSAGE_BUFFER_DELAY", "500ms")
	t.Setenv("REDIS_TLS", "true")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.BufferDelay != 500*time.Millisecond {
		t.Errorf("expected 500ms buffer delay, got %s", cfg.BufferDelay)
	}
	if !cfg.RedisTLS {
		t.Error("expected RedisTLS true")
	}
}
