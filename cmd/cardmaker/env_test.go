package main

import (
	"testing"
	"time"
)

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CARDMAKER_ADDR", "0.0.0.0:4000")
	t.Setenv("CARDMAKER_POOL_SIZE", "6")
	t.Setenv("CARDMAKER_TIMEOUT", "45s")

	cfg, err := applyEnv(defaultConfig())
	if err != nil {
		t.Fatalf("applyEnv() error: %v", err)
	}
	if cfg.Addr != "0.0.0.0:4000" || cfg.PoolSize != 6 || cfg.Timeout != 45*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	// Untouched fields keep their previous values.
	if cfg.GamesDir != "games" {
		t.Errorf("GamesDir = %q, want default", cfg.GamesDir)
	}
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric pool size", "CARDMAKER_POOL_SIZE", "many"},
		{"zero pool size", "CARDMAKER_POOL_SIZE", "0"},
		{"unparseable timeout", "CARDMAKER_TIMEOUT", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := applyEnv(defaultConfig()); err == nil {
				t.Errorf("applyEnv() accepted %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("CARDMAKER_CONFIG", "/etc/cardmaker.yaml")

	if got := configPath("explicit.yaml"); got != "explicit.yaml" {
		t.Errorf("configPath(flag) = %q", got)
	}
	if got := configPath(""); got != "/etc/cardmaker.yaml" {
		t.Errorf("configPath(env) = %q", got)
	}
}
