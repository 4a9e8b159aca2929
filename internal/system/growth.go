package system

import (
	"time"

	"github.com/agargo/server/internal/config"
	coresys "github.com/agargo/server/internal/core/system"
	"github.com/agargo/server/internal/world"
)

// GrowthSystem handles the slow economy of the world: mass decay on large
// cells, evaporation of stale ejected pellets, and the food respawn budget.
type GrowthSystem struct {
	ws  *world.State
	cfg *config.Config
}

func NewGrowthSystem(ws *world.State, cfg *config.Config) *GrowthSystem {
	return &GrowthSystem{ws: ws, cfg: cfg}
}

func (s *GrowthSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *GrowthSystem) Update(dt time.Duration) {
	s.decay()
	s.evaporate()
	s.respawnFood()
}

// decay taxes cells above the anti-turtling threshold a small fraction per
// tick, never below the threshold itself.
func (s *GrowthSystem) decay() {
	rate := s.cfg.Rules.DecayRate
	floor := s.cfg.Rules.DecayMinMass
	if rate <= 0 {
		return
	}
	for _, id := range s.ws.Stores.Cells.SortedIDs() {
		b, ok := s.ws.Stores.Bodies.Get(id)
		if !ok || b.Mass <= floor {
			continue
		}
		m := b.Mass * (1 - rate)
		if m < floor {
			m = floor
		}
		s.ws.SetMass(b, m)
	}
}

func (s *GrowthSystem) evaporate() {
	for _, id := range s.ws.Stores.Ejected.SortedIDs() {
		e, ok := s.ws.Stores.Ejected.Get(id)
		if !ok {
			continue
		}
		e.TTL--
		if e.TTL <= 0 {
			s.ws.ECS.MarkForDestruction(id)
		}
	}
}

// respawnFood refills up to food_per_tick pellets while the population is
// below the cap. Positions and masses come from the world RNG, so refills are
// part of the deterministic run.
func (s *GrowthSystem) respawnFood() {
	budget := s.cfg.Rules.FoodPerTick
	for i := 0; i < budget && s.ws.Stores.Food.Len() < s.cfg.World.FoodCap; i++ {
		x, y := s.ws.RandPos()
		s.ws.SpawnFood(x, y, s.ws.RandFoodMass())
	}
}
