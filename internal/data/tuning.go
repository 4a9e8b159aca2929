package data

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds the physics and balance curve constants loaded from YAML.
// These are the knobs a gameplay designer edits without touching server
// config: movement curve, eat geometry, impulses, pellet ranges.
type Tuning struct {
	InitRadius float32 `yaml:"init_radius"` // r0 of the speed curve
	RadiusK    float32 `yaml:"radius_k"`    // radius = sqrt(mass/π) * k
	MaxRadius  float32 `yaml:"max_radius"`
	SpeedK     float32 `yaml:"speed_k"` // max speed = speed_k / (radius + 1 - r0)

	EatOverlap float32 `yaml:"eat_overlap"` // fraction of the smaller radius that must be covered

	SplitImpulse   float32 `yaml:"split_impulse"`   // outward speed of split halves
	EjectImpulse   float32 `yaml:"eject_impulse"`   // launch speed of ejected pellets
	EjectMass      float32 `yaml:"eject_mass"`      // mass carried by one ejected pellet
	ImpulseDamping float32 `yaml:"impulse_damping"` // impulse velocity multiplier per tick

	FoodMassMin     float32 `yaml:"food_mass_min"`
	FoodMassMax     float32 `yaml:"food_mass_max"`
	VirusMass       float32 `yaml:"virus_mass"`
	EjectedTTLTicks int     `yaml:"ejected_ttl_ticks"` // ejected pellets evaporate after this

	ViewBase      float32 `yaml:"view_base"`       // viewport half-extent at start mass
	ViewMassScale float32 `yaml:"view_mass_scale"` // extra half-extent per sqrt(aggregate mass)
	ViewMargin    float32 `yaml:"view_margin"`     // fixed pop-in margin
}

// RadiusForMass derives a cell radius. Radius is always a pure function of
// mass; nothing stores it independently.
func (t *Tuning) RadiusForMass(mass float32) float32 {
	if mass <= 0 {
		return 0
	}
	r := float32(math.Sqrt(float64(mass)/math.Pi)) * t.RadiusK
	if t.MaxRadius > 0 && r > t.MaxRadius {
		return t.MaxRadius
	}
	return r
}

// MaxSpeed is the speed cap for a cell of the given radius. Shrinks as the
// cell grows; the denominator is clamped so tiny cells do not diverge.
func (t *Tuning) MaxSpeed(radius float32) float32 {
	d := radius + 1 - t.InitRadius
	if d < 1 {
		d = 1
	}
	return t.SpeedK / d
}

// LoadTuning reads the tuning table from YAML. A missing file yields the
// built-in defaults; a malformed file is an error.
func LoadTuning(path string) (*Tuning, error) {
	t := defaultTuning()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("read tuning %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, t); err != nil {
		return nil, fmt.Errorf("parse tuning %s: %w", path, err)
	}
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("tuning %s: %w", path, err)
	}
	return t, nil
}

func (t *Tuning) validate() error {
	if t.RadiusK <= 0 {
		return fmt.Errorf("radius_k must be > 0")
	}
	if t.SpeedK <= 0 {
		return fmt.Errorf("speed_k must be > 0")
	}
	if t.EatOverlap < 0 || t.EatOverlap > 1 {
		return fmt.Errorf("eat_overlap must be in [0,1]")
	}
	if t.ImpulseDamping < 0 || t.ImpulseDamping >= 1 {
		return fmt.Errorf("impulse_damping must be in [0,1)")
	}
	if t.FoodMassMax < t.FoodMassMin {
		return fmt.Errorf("food_mass_max < food_mass_min")
	}
	return nil
}

func defaultTuning() *Tuning {
	return &Tuning{
		InitRadius:      10,
		RadiusK:         1,
		MaxRadius:       1000,
		SpeedK:          1000,
		EatOverlap:      1.0 / 3.0,
		SplitImpulse:    300,
		EjectImpulse:    400,
		EjectMass:       16,
		ImpulseDamping:  0.85,
		FoodMassMin:     1,
		FoodMassMax:     3,
		VirusMass:       100,
		EjectedTTLTicks: 900,
		ViewBase:        500,
		ViewMassScale:   10,
		ViewMargin:      100,
	}
}
