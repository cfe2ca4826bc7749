package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.ListenPort != "5000" {
		t.Errorf("port = %q, want 5000", cfg.ListenPort)
	}
	if cfg.CriticalThreshold != 85 || cfg.HighThreshold != 65 || cfg.MediumThreshold != 40 {
		t.Errorf("thresholds = %.0f/%.0f/%.0f", cfg.CriticalThreshold, cfg.HighThreshold, cfg.MediumThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCAMDEFENDER_PORT", "8080")
	t.Setenv("SCAMDEFENDER_HIGH_THRESHOLD", "70")
	t.Setenv("SCAMDEFENDER_STREAM_POLL", "5s")
	t.Setenv("SCAMDEFENDER_SANDBOX_CONCURRENCY", "9999") // clamped

	cfg := NewDefaultConfig()
	if cfg.ListenPort != "8080" {
		t.Errorf("port = %q", cfg.ListenPort)
	}
	if cfg.HighThreshold != 70 {
		t.Errorf("high threshold = %v", cfg.HighThreshold)
	}
	if cfg.StreamPollInterval != 5*time.Second {
		t.Errorf("poll interval = %v", cfg.StreamPollInterval)
	}
	if cfg.SandboxMaxConcurrent != 256 {
		t.Errorf("concurrency = %d, want clamped 256", cfg.SandboxMaxConcurrent)
	}
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.HighThreshold = 90 // above critical

	if err := cfg.Validate(); err == nil {
		t.Error("inverted thresholds should fail validation")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION_GO", "250ms")
	if got := GetEnvDuration("TEST_DURATION_GO", time.Second); got != 250*time.Millisecond {
		t.Errorf("duration = %v", got)
	}

	// Bare seconds are accepted too
	t.Setenv("TEST_DURATION_SECS", "7")
	if got := GetEnvDuration("TEST_DURATION_SECS", time.Second); got != 7*time.Second {
		t.Errorf("bare seconds = %v", got)
	}

	if got := GetEnvDuration("TEST_DURATION_UNSET", 3*time.Second); got != 3*time.Second {
		t.Errorf("default = %v", got)
	}
}
