package system

import (
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/agargo/server/internal/config"
	coresys "github.com/agargo/server/internal/core/system"
	"github.com/agargo/server/internal/data"
	"github.com/agargo/server/internal/world"
)

// CommandSystem consumes each player's command inbox at the start of the
// simulation part of the tick. Commands were already validated at ingestion;
// this system only re-checks conditions that may have changed since (a cell
// eaten between enqueue and apply) and mutates world state.
type CommandSystem struct {
	ws  *world.State
	cfg *config.Config
	tun *data.Tuning
	log *zap.Logger
}

func NewCommandSystem(ws *world.State, cfg *config.Config, tun *data.Tuning, log *zap.Logger) *CommandSystem {
	return &CommandSystem{ws: ws, cfg: cfg, tun: tun, log: log}
}

func (s *CommandSystem) Phase() coresys.Phase { return coresys.PhaseCommand }

func (s *CommandSystem) Update(dt time.Duration) {
	s.ws.AllPlayers(func(p *world.PlayerInfo) {
		for _, cmd := range p.Inbox {
			switch cmd.Kind {
			case world.CmdMove:
				p.AimX, p.AimY = cmd.DX, cmd.DY
			case world.CmdSplit:
				s.applySplit(p)
			case world.CmdEject:
				s.applyEject(p)
			}
		}
		p.Inbox = p.Inbox[:0]
	})
}

// aimDir returns the player's aim, or +X for a player that never moved, so
// split/eject always have a direction.
func aimDir(p *world.PlayerInfo) (float32, float32) {
	if p.AimX == 0 && p.AimY == 0 {
		return 1, 0
	}
	return p.AimX, p.AimY
}

// applySplit halves every eligible cell, launching the new half along the aim
// direction. Stops at the per-player cell cap; mass is conserved exactly
// (half + remainder equals the original).
func (s *CommandSystem) applySplit(p *world.PlayerInfo) {
	dirX, dirY := aimDir(p)
	cooldown := int32(s.cfg.Rules.MergeCooldownTicks)
	maxCells := s.cfg.World.MaxCellsPerPlayer

	// Snapshot: SpawnCell appends to p.Cells and new halves must not split
	// again within the same command.
	cells := slices.Clone(p.Cells)
	for _, id := range cells {
		if len(p.Cells) >= maxCells {
			break
		}
		b, ok := s.ws.Stores.Bodies.Get(id)
		if !ok || b.Mass < s.cfg.Rules.MinSplitMass {
			continue
		}
		tr, ok := s.ws.Stores.Transforms.Get(id)
		if !ok {
			continue
		}

		half := b.Mass / 2
		if half < s.cfg.Rules.MinCellMass {
			continue
		}
		rest := b.Mass - half
		s.ws.SetMass(b, rest)

		off := s.tun.RadiusForMass(half)
		s.ws.SpawnCell(p,
			tr.X+dirX*off, tr.Y+dirY*off,
			half,
			dirX*s.tun.SplitImpulse, dirY*s.tun.SplitImpulse,
			cooldown,
		)
		if cd, ok := s.ws.Stores.Cells.Get(id); ok {
			cd.MergeCooldown = cooldown
		}
	}
}

// applyEject sheds one pellet from every cell that can afford it. The pellet
// carries the tuned eject mass, deducted from the cell so mass is conserved
// until the pellet evaporates.
func (s *CommandSystem) applyEject(p *world.PlayerInfo) {
	dirX, dirY := aimDir(p)

	for _, id := range p.Cells {
		b, ok := s.ws.Stores.Bodies.Get(id)
		if !ok || b.Mass-s.tun.EjectMass < s.cfg.Rules.MinEjectMass {
			continue
		}
		tr, ok := s.ws.Stores.Transforms.Get(id)
		if !ok {
			continue
		}

		s.ws.SetMass(b, b.Mass-s.tun.EjectMass)
		// Launch from just outside the cell edge so the owner does not
		// instantly re-eat it.
		launch := b.Radius + s.tun.RadiusForMass(s.tun.EjectMass) + 1
		s.ws.SpawnEjected(
			tr.X+dirX*launch, tr.Y+dirY*launch,
			s.tun.EjectMass,
			dirX*s.tun.EjectImpulse, dirY*s.tun.EjectImpulse,
		)
	}
}
