package system

import (
	"time"

	"github.com/agargo/server/internal/core/event"
	coresys "github.com/agargo/server/internal/core/system"
)

// EventSystem rotates the double-buffered bus and delivers last tick's events
// to subscribers. Runs first so every subscriber sees a consistent pre-tick
// world.
type EventSystem struct {
	bus *event.Bus
}

func NewEventSystem(bus *event.Bus) *EventSystem {
	return &EventSystem{bus: bus}
}

func (s *EventSystem) Phase() coresys.Phase { return coresys.PhaseEvents }

func (s *EventSystem) Update(dt time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}
