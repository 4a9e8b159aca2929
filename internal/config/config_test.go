package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if cfg.Network.TickRateHz != 30 {
		t.Fatalf("TickRateHz=%d want 30", cfg.Network.TickRateHz)
	}
	if cfg.World.Width != 2000 || cfg.World.Height != 2000 {
		t.Fatalf("world=%vx%v want 2000x2000", cfg.World.Width, cfg.World.Height)
	}
	if cfg.Rules.AbsorbRatio != 1.25 {
		t.Fatalf("AbsorbRatio=%v want 1.25", cfg.Rules.AbsorbRatio)
	}
}

func TestLoad_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.toml")
	body := `
[network]
tick_rate_hz = 60

[world]
max_players = 8
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Network.TickRateHz != 60 {
		t.Fatalf("TickRateHz=%d want 60", cfg.Network.TickRateHz)
	}
	if cfg.World.MaxPlayers != 8 {
		t.Fatalf("MaxPlayers=%d want 8", cfg.World.MaxPlayers)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Network.BindAddress != "0.0.0.0:14192" {
		t.Fatalf("BindAddress=%q want default", cfg.Network.BindAddress)
	}
}

func TestTickInterval(t *testing.T) {
	n := NetworkConfig{TickRateHz: 30}
	if got := n.TickInterval(); got != time.Second/30 {
		t.Fatalf("TickInterval=%v want %v", got, time.Second/30)
	}
	// Zero/negative rates fall back to 30Hz instead of dividing by zero.
	n.TickRateHz = 0
	if got := n.TickInterval(); got != time.Second/30 {
		t.Fatalf("TickInterval(0)=%v want %v", got, time.Second/30)
	}
}

func TestLoad_MalformedFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[network\ntick"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
