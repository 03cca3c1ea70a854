package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.DebounceQuietPeriod != 3*time.Second {
		t.Errorf("DebounceQuietPeriod = %v, want 3s", cfg.DebounceQuietPeriod)
	}
	if cfg.WorkerCount != 2 {
		t.Errorf("WorkerCount = %d, want 2", cfg.WorkerCount)
	}
	if cfg.DefaultLanguage != "en" {
		t.Errorf("DefaultLanguage = %q, want en", cfg.DefaultLanguage)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DEBOUNCE_QUIET_PERIOD", "750ms")
	t.Setenv("WORKER_COUNT", "5")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LLM_TEMPERATURE", "0.9")

	cfg := Load()

	if cfg.DebounceQuietPeriod != 750*time.Millisecond {
		t.Errorf("DebounceQuietPeriod = %v, want 750ms", cfg.DebounceQuietPeriod)
	}
	if cfg.WorkerCount != 5 {
		t.Errorf("WorkerCount = %d, want 5", cfg.WorkerCount)
	}
	if !cfg.UseMemoryQueue {
		t.Error("UseMemoryQueue should be true")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	if cfg.LLMTemperature != 0.9 {
		t.Errorf("LLMTemperature = %v, want 0.9", cfg.LLMTemperature)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("DEBOUNCE_QUIET_PERIOD", "not-a-duration")
	t.Setenv("WORKER_COUNT", "many")

	cfg := Load()

	if cfg.DebounceQuietPeriod != 3*time.Second {
		t.Errorf("DebounceQuietPeriod = %v, want default 3s", cfg.DebounceQuietPeriod)
	}
	if cfg.WorkerCount != 2 {
		t.Errorf("WorkerCount = %d, want default 2", cfg.WorkerCount)
	}
}
