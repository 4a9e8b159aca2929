package world

import (
	"github.com/agargo/server/internal/core/ecs"
)

// Kind tags every simulation entity. Values match the wire protocol.
type Kind uint8

const (
	KindCell    Kind = 1
	KindFood    Kind = 2
	KindVirus   Kind = 3
	KindEjected Kind = 4
)

// Transform holds position plus impulse velocity. Steering velocity is
// derived from the owner's aim every tick and never stored; VX/VY only carry
// split/eject impulses, damped each tick.
type Transform struct {
	X, Y   float32
	VX, VY float32
}

// Body holds the physical footprint. Radius is always recomputed from mass
// via SetMass — never assign Mass directly.
type Body struct {
	Kind   Kind
	Mass   float32
	Radius float32
}

// CellData marks player-owned cells.
type CellData struct {
	Owner         uint32
	MergeCooldown int32 // ticks until same-owner merge is allowed
}

// EjectedData marks ejected-mass pellets, which evaporate after a TTL.
type EjectedData struct {
	TTL int32
}

type FoodData struct{}

type VirusData struct{}

// Stores bundles every component store, registered for bulk removal.
type Stores struct {
	Transforms *ecs.PtrComponentStore[Transform]
	Bodies     *ecs.PtrComponentStore[Body]
	Cells      *ecs.PtrComponentStore[CellData]
	Food       *ecs.PtrComponentStore[FoodData]
	Viruses    *ecs.PtrComponentStore[VirusData]
	Ejected    *ecs.PtrComponentStore[EjectedData]
}

func NewStores(reg *ecs.Registry) *Stores {
	s := &Stores{
		Transforms: ecs.NewPtrComponentStore[Transform](),
		Bodies:     ecs.NewPtrComponentStore[Body](),
		Cells:      ecs.NewPtrComponentStore[CellData](),
		Food:       ecs.NewPtrComponentStore[FoodData](),
		Viruses:    ecs.NewPtrComponentStore[VirusData](),
		Ejected:    ecs.NewPtrComponentStore[EjectedData](),
	}
	reg.Register(s.Transforms)
	reg.Register(s.Bodies)
	reg.Register(s.Cells)
	reg.Register(s.Food)
	reg.Register(s.Viruses)
	reg.Register(s.Ejected)
	return s
}
