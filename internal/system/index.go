package system

import (
	"time"

	"github.com/agargo/server/internal/core/ecs"
	coresys "github.com/agargo/server/internal/core/system"
	"github.com/agargo/server/internal/world"
)

// IndexSystem rebuilds the spatial grid from scratch each tick, after
// integration and before collision. A full rebuild is cheaper to reason about
// than incremental moves and makes the grid trivially consistent: it is a
// cache over the stores, never a source of truth.
type IndexSystem struct {
	ws *world.State
}

func NewIndexSystem(ws *world.State) *IndexSystem {
	return &IndexSystem{ws: ws}
}

func (s *IndexSystem) Phase() coresys.Phase { return coresys.PhaseIndex }

func (s *IndexSystem) Update(dt time.Duration) {
	s.ws.Grid.Reset()
	// Insert order is irrelevant: buckets are sets, so the unordered join
	// over the two stores is fine here.
	ecs.Each2(s.ws.Stores.Transforms, s.ws.Stores.Bodies,
		func(id ecs.EntityID, tr *world.Transform, b *world.Body) {
			s.ws.Grid.Insert(id, tr.X, tr.Y, b.Radius)
		})
}
