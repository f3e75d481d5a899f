package config

import (
	"testing"
	"time"
)

func withEnv(t *testing.T, kv map[string]string, fn func()) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
	fn()
}

func TestLoadRequiresServerSecret(t *testing.T) {
	withEnv(t, map[string]string{"SERVER_SECRET": ""}, func() {
		if _, err := Load(); err == nil {
			t.Fatal("expected error when SERVER_SECRET is unset")
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	withEnv(t, map[string]string{"SERVER_SECRET": "wire"}, func() {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.SignalingPort != 5000 {
			t.Errorf("expected default signaling port 5000, got %d", cfg.SignalingPort)
		}
		if cfg.AdminEnabled() {
			t.Error("expected admin path disabled without ADMIN_SECRET")
		}
		if cfg.Media.TURNEnabled() {
			t.Error("expected TURN disabled without host/secret")
		}
		if cfg.Speaking.Interval != 800*time.Millisecond {
			t.Errorf("expected default speaking interval 800ms, got %s", cfg.Speaking.Interval)
		}
	})
}

func TestLoadAdminEnabled(t *testing.T) {
	withEnv(t, map[string]string{
		"SERVER_SECRET": "wire",
		"ADMIN_SECRET":  "key",
	}, func() {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cfg.AdminEnabled() {
			t.Error("expected admin path enabled with ADMIN_SECRET set")
		}
	})
}

func TestLoadInvalidLogLevel(t *testing.T) {
	withEnv(t, map[string]string{
		"SERVER_SECRET": "wire",
		"LOG_LEVEL":     "verbose",
	}, func() {
		if _, err := Load(); err == nil {
			t.Fatal("expected error for invalid LOG_LEVEL")
		}
	})
}

func TestLoadInvalidPortRange(t *testing.T) {
	withEnv(t, map[string]string{
		"SERVER_SECRET":   "wire",
		"MEDIA_PORT_MIN":  "40100",
		"MEDIA_PORT_MAX":  "40000",
	}, func() {
		if _, err := Load(); err == nil {
			t.Fatal("expected error for inverted media port range")
		}
	})
}
