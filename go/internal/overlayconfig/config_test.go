package overlayconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Intake.TickInterval != 300*time.Millisecond {
		t.Errorf("expected 300ms tick, got %s", cfg.Intake.TickInterval)
	}
	if cfg.Intake.StaleAfter != 120*time.Second {
		t.Errorf("expected 120s staleness, got %s", cfg.Intake.StaleAfter)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	content := []byte(`
port: "9000"
nats:
  channel_id: "streamer"
intake:
  tick_interval: 500ms
stats:
  base_url: "http://stats.local"
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OVERLAY_STALE_AFTER", "90s")
	t.Setenv("PORT", "9100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "9100" {
		t.Errorf("expected env port 9100, got %s", cfg.Port)
	}
	if cfg.NATS.ChannelID != "streamer" {
		t.Errorf("expected channel streamer, got %s", cfg.NATS.ChannelID)
	}
	if cfg.Intake.TickInterval != 500*time.Millisecond {
		t.Errorf("expected 500ms tick, got %s", cfg.Intake.TickInterval)
	}
	if cfg.Intake.StaleAfter != 90*time.Second {
		t.Errorf("expected 90s staleness, got %s", cfg.Intake.StaleAfter)
	}
	if cfg.Stats.BaseURL != "http://stats.local" {
		t.Errorf("unexpected stats base url %s", cfg.Stats.BaseURL)
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected default NATS url, got %s", cfg.NATS.URL)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	if err := os.WriteFile(path, []byte("intake:\n  stale_after: -1s\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestInitialLatency(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Intake.InitialLatency != nil {
		t.Fatalf("expected no initial latency by default, got %s", *cfg.Intake.InitialLatency)
	}

	path := filepath.Join(t.TempDir(), "overlay.yaml")
	if err := os.WriteFile(path, []byte("intake:\n  initial_latency: 0s\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Intake.InitialLatency == nil || *cfg.Intake.InitialLatency != 0 {
		t.Fatalf("expected zero initial latency from file, got %v", cfg.Intake.InitialLatency)
	}

	t.Setenv("OVERLAY_INITIAL_LATENCY", "4s")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Intake.InitialLatency == nil || *cfg.Intake.InitialLatency != 4*time.Second {
		t.Errorf("expected env initial latency 4s, got %v", cfg.Intake.InitialLatency)
	}

	t.Setenv("OVERLAY_INITIAL_LATENCY", "-2s")
	if _, err := Load(path); err == nil {
		t.Error("expected negative initial latency to be rejected")
	}
}

func TestReconnectWaitFromEnv(t *testing.T) {
	t.Setenv("NATS_RECONNECT_WAIT", "750ms")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NATS.ReconnectWait != 750*time.Millisecond {
		t.Errorf("expected 750ms reconnect wait, got %s", cfg.NATS.ReconnectWait)
	}
}
