package data

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestRadiusForMass_Curve(t *testing.T) {
	tun := defaultTuning()

	// mass = π·r² with radius_k=1, so π·100 → radius 10.
	r := tun.RadiusForMass(float32(math.Pi * 100))
	if math.Abs(float64(r)-10) > 1e-3 {
		t.Fatalf("RadiusForMass(π·100)=%v want 10", r)
	}

	if got := tun.RadiusForMass(0); got != 0 {
		t.Fatalf("RadiusForMass(0)=%v want 0", got)
	}
	if got := tun.RadiusForMass(-5); got != 0 {
		t.Fatalf("RadiusForMass(-5)=%v want 0", got)
	}

	// Radius is capped.
	if got := tun.RadiusForMass(1e12); got != tun.MaxRadius {
		t.Fatalf("huge mass radius=%v want cap %v", got, tun.MaxRadius)
	}
}

func TestMaxSpeed_ShrinksWithRadius(t *testing.T) {
	tun := defaultTuning()

	// At the initial radius the denominator clamps to 1 → full speed.
	if got := tun.MaxSpeed(tun.InitRadius); got != tun.SpeedK {
		t.Fatalf("MaxSpeed(r0)=%v want %v", got, tun.SpeedK)
	}
	// Radius 109 → denominator 100.
	if got := tun.MaxSpeed(109); math.Abs(float64(got)-10) > 1e-3 {
		t.Fatalf("MaxSpeed(109)=%v want 10", got)
	}
	if tun.MaxSpeed(500) >= tun.MaxSpeed(50) {
		t.Fatalf("speed must shrink as radius grows")
	}
}

func TestLoadTuning_MissingFileUsesDefaults(t *testing.T) {
	tun, err := LoadTuning(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if tun.SpeedK != defaultTuning().SpeedK {
		t.Fatalf("SpeedK=%v want default %v", tun.SpeedK, defaultTuning().SpeedK)
	}
}

func TestLoadTuning_OverridesAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(path, []byte("speed_k: 500\neject_mass: 20\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tun, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tun.SpeedK != 500 {
		t.Fatalf("SpeedK=%v want 500", tun.SpeedK)
	}
	if tun.EjectMass != 20 {
		t.Fatalf("EjectMass=%v want 20", tun.EjectMass)
	}
	// Untouched keys keep defaults.
	if tun.VirusMass != 100 {
		t.Fatalf("VirusMass=%v want default 100", tun.VirusMass)
	}

	// Invalid values are an error, not a silent fallback.
	if err := os.WriteFile(path, []byte("impulse_damping: 1.5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadTuning(path); err == nil {
		t.Fatalf("expected validation error for impulse_damping=1.5")
	}
}
