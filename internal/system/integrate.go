package system

import (
	"time"

	"github.com/agargo/server/internal/config"
	coresys "github.com/agargo/server/internal/core/system"
	"github.com/agargo/server/internal/data"
	"github.com/agargo/server/internal/world"
)

// IntegrateSystem advances movement and per-entity timers. Steering velocity
// is rederived from the owner's aim every tick (mass decides the speed cap);
// only split/eject impulses persist on the transform, damped geometrically.
type IntegrateSystem struct {
	ws  *world.State
	cfg *config.Config
	tun *data.Tuning
}

func NewIntegrateSystem(ws *world.State, cfg *config.Config, tun *data.Tuning) *IntegrateSystem {
	return &IntegrateSystem{ws: ws, cfg: cfg, tun: tun}
}

func (s *IntegrateSystem) Phase() coresys.Phase { return coresys.PhaseIntegrate }

func (s *IntegrateSystem) Update(dt time.Duration) {
	step := float32(dt.Seconds())

	for _, id := range s.ws.Stores.Cells.SortedIDs() {
		cd, _ := s.ws.Stores.Cells.Get(id)
		tr, okT := s.ws.Stores.Transforms.Get(id)
		b, okB := s.ws.Stores.Bodies.Get(id)
		if cd == nil || !okT || !okB {
			continue
		}

		if cd.MergeCooldown > 0 {
			cd.MergeCooldown--
		}

		var aimX, aimY float32
		if p := s.ws.GetByID(cd.Owner); p != nil {
			aimX, aimY = p.AimX, p.AimY
		}
		speed := s.tun.MaxSpeed(b.Radius)

		tr.X += (aimX*speed + tr.VX) * step
		tr.Y += (aimY*speed + tr.VY) * step
		tr.VX *= s.tun.ImpulseDamping
		tr.VY *= s.tun.ImpulseDamping

		s.clamp(tr)
	}

	for _, id := range s.ws.Stores.Ejected.SortedIDs() {
		tr, ok := s.ws.Stores.Transforms.Get(id)
		if !ok {
			continue
		}
		tr.X += tr.VX * step
		tr.Y += tr.VY * step
		tr.VX *= s.tun.ImpulseDamping
		tr.VY *= s.tun.ImpulseDamping
		s.clamp(tr)
	}
}

// clamp keeps a position inside the world rectangle. Walls are hard; no
// bounce, the impulse just decays while the entity slides along the edge.
func (s *IntegrateSystem) clamp(tr *world.Transform) {
	if tr.X < 0 {
		tr.X = 0
	} else if tr.X > s.cfg.World.Width {
		tr.X = s.cfg.World.Width
	}
	if tr.Y < 0 {
		tr.Y = 0
	} else if tr.Y > s.cfg.World.Height {
		tr.Y = s.cfg.World.Height
	}
}
