package event

import "github.com/agargo/server/internal/core/ecs"

// Simulation event types. Emitted by systems during a tick, delivered to
// subscribers at the start of the next tick.

type PlayerJoined struct {
	PlayerID  uint32
	SessionID uint64
	Name      string
}

// PlayerDied fires when a player's last cell is destroyed. The session stays
// connected; the player may re-join to respawn.
type PlayerDied struct {
	PlayerID  uint32
	SessionID uint64
}

type PlayerDisconnected struct {
	PlayerID  uint32
	SessionID uint64
}

// CellAbsorbed fires for cell-vs-cell absorption only, not pellet pickups.
type CellAbsorbed struct {
	Winner ecs.EntityID
	Loser  ecs.EntityID
	Mass   float32 // mass transferred
}

type VirusPopped struct {
	Cell      ecs.EntityID
	Fragments int
}
