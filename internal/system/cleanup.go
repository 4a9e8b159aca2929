package system

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/agargo/server/internal/config"
	"github.com/agargo/server/internal/core/event"
	coresys "github.com/agargo/server/internal/core/system"
	"github.com/agargo/server/internal/net/packet"
	"github.com/agargo/server/internal/world"
)

// CleanupSystem is the commit point of the tick: it enforces the mass
// invariants, flushes the destroy queue, detects player deaths, and advances
// the tick counter. After Update returns, the world is the canonical state
// the synchronizer publishes.
type CleanupSystem struct {
	ws  *world.State
	cfg *config.Config
	bus *event.Bus
	log *zap.Logger
}

func NewCleanupSystem(ws *world.State, cfg *config.Config, bus *event.Bus, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{ws: ws, cfg: cfg, bus: bus, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(dt time.Duration) {
	s.scanInvariants()
	s.ws.ECS.FlushDestroyQueue()
	s.reapPlayers()
	s.ws.Tick++
}

// scanInvariants queues any entity whose mass went illegal. A NaN or
// negative mass is a bug upstream (SetMass clamps), so it is logged loudly;
// a cell under the floor is normal attrition.
func (s *CleanupSystem) scanInvariants() {
	for _, id := range s.ws.Stores.Bodies.SortedIDs() {
		b, ok := s.ws.Stores.Bodies.Get(id)
		if !ok {
			continue
		}
		if math.IsNaN(float64(b.Mass)) || b.Mass < 0 {
			s.log.Error("實體質量非法，強制移除",
				zap.Uint64("entity", uint64(id)),
				zap.Float64("mass", float64(b.Mass)),
			)
			s.ws.ECS.MarkForDestruction(id)
			continue
		}
		if b.Kind == world.KindCell {
			if b.Mass < s.cfg.Rules.MinCellMass {
				s.ws.ECS.MarkForDestruction(id)
			}
		} else if b.Mass <= 0 {
			s.ws.ECS.MarkForDestruction(id)
		}
	}
}

// reapPlayers prunes destroyed cells from each player and demotes players
// whose last cell is gone. The session stays open; a Join re-enters the
// world.
func (s *CleanupSystem) reapPlayers() {
	s.ws.AllPlayers(func(p *world.PlayerInfo) {
		live := p.Cells[:0]
		for _, id := range p.Cells {
			if s.ws.ECS.Alive(id) {
				live = append(live, id)
			}
		}
		p.Cells = live

		if len(p.Cells) == 0 && !p.Dead {
			p.Dead = true
			event.Emit(s.bus, event.PlayerDied{PlayerID: p.ID, SessionID: p.SessionID})
			if p.Session != nil && !p.Session.IsClosed() {
				p.Session.SetState(packet.StateDead)
			}
			s.log.Info("玩家陣亡",
				zap.Uint32("player", p.ID),
				zap.String("name", p.Name),
			)
		}
	})
}
