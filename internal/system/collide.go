package system

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/agargo/server/internal/config"
	"github.com/agargo/server/internal/core/ecs"
	"github.com/agargo/server/internal/core/event"
	coresys "github.com/agargo/server/internal/core/system"
	"github.com/agargo/server/internal/data"
	"github.com/agargo/server/internal/world"
)

// pair is a canonical (low id, high id) candidate collision.
type pair struct {
	a, b ecs.EntityID
}

// CollisionSystem gathers candidate pairs from the grid and resolves them in
// ascending (a, b) order, so two runs with identical state resolve identical
// outcomes. An entity consumed by an earlier pair is skipped by later pairs
// via the destroy queue; double-eat within one tick is impossible.
type CollisionSystem struct {
	ws  *world.State
	cfg *config.Config
	tun *data.Tuning
	bus *event.Bus
	log *zap.Logger

	queryBuf []ecs.EntityID
	pairBuf  []pair
	pairSeen map[pair]struct{}
}

func NewCollisionSystem(ws *world.State, cfg *config.Config, tun *data.Tuning, bus *event.Bus, log *zap.Logger) *CollisionSystem {
	return &CollisionSystem{
		ws:       ws,
		cfg:      cfg,
		tun:      tun,
		bus:      bus,
		log:      log,
		pairSeen: make(map[pair]struct{}, 256),
	}
}

func (s *CollisionSystem) Phase() coresys.Phase { return coresys.PhaseCollide }

func (s *CollisionSystem) Update(dt time.Duration) {
	s.collectPairs()
	for _, pr := range s.pairBuf {
		s.resolve(pr.a, pr.b)
	}
}

// collectPairs queries the grid around every cell. Only cells initiate
// collisions; food, viruses and ejected pellets are passive.
func (s *CollisionSystem) collectPairs() {
	s.pairBuf = s.pairBuf[:0]
	clear(s.pairSeen)

	for _, id := range s.ws.Stores.Cells.SortedIDs() {
		tr, okT := s.ws.Stores.Transforms.Get(id)
		b, okB := s.ws.Stores.Bodies.Get(id)
		if !okT || !okB {
			continue
		}
		s.queryBuf = s.ws.Grid.QueryNeighbors(tr.X, tr.Y, b.Radius, s.queryBuf[:0])
		for _, other := range s.queryBuf {
			if other == id {
				continue
			}
			pr := pair{a: id, b: other}
			if other < id {
				pr = pair{a: other, b: id}
			}
			if _, dup := s.pairSeen[pr]; dup {
				continue
			}
			s.pairSeen[pr] = struct{}{}
			s.pairBuf = append(s.pairBuf, pr)
		}
	}

	sort.Slice(s.pairBuf, func(i, j int) bool {
		if s.pairBuf[i].a != s.pairBuf[j].a {
			return s.pairBuf[i].a < s.pairBuf[j].a
		}
		return s.pairBuf[i].b < s.pairBuf[j].b
	})
}

func (s *CollisionSystem) resolve(a, b ecs.EntityID) {
	if !s.ws.ECS.Alive(a) || !s.ws.ECS.Alive(b) {
		return
	}
	if s.ws.ECS.PendingDestroy(a) || s.ws.ECS.PendingDestroy(b) {
		return
	}

	cellA := s.ws.Stores.Cells.Has(a)
	cellB := s.ws.Stores.Cells.Has(b)
	switch {
	case cellA && cellB:
		s.resolveCells(a, b)
	case cellA:
		s.resolveCellOther(a, b)
	case cellB:
		s.resolveCellOther(b, a)
	}
}

// distance returns center distance; zero-safe (exactly stacked entities
// report 0 and are pushed apart along +X).
func (s *CollisionSystem) distance(a, b ecs.EntityID) (dist, dx, dy float32, ok bool) {
	ta, okA := s.ws.Stores.Transforms.Get(a)
	tb, okB := s.ws.Stores.Transforms.Get(b)
	if !okA || !okB {
		return 0, 0, 0, false
	}
	dx = tb.X - ta.X
	dy = tb.Y - ta.Y
	dist = float32(math.Sqrt(float64(dx*dx + dy*dy)))
	return dist, dx, dy, true
}

// eaten is the absorb geometry test: the bigger circle must cover the
// smaller one's center deep enough that only an eat_overlap fraction of the
// small radius sticks out.
func (s *CollisionSystem) eaten(dist, rBig, rSmall float32) bool {
	return dist <= rBig-rSmall*s.tun.EatOverlap
}

func (s *CollisionSystem) resolveCells(a, b ecs.EntityID) {
	ca, _ := s.ws.Stores.Cells.Get(a)
	cb, _ := s.ws.Stores.Cells.Get(b)
	ba, okA := s.ws.Stores.Bodies.Get(a)
	bb, okB := s.ws.Stores.Bodies.Get(b)
	if ca == nil || cb == nil || !okA || !okB {
		return
	}
	dist, dx, dy, ok := s.distance(a, b)
	if !ok {
		return
	}

	if ca.Owner == cb.Owner {
		s.resolveSameOwner(a, b, ca, cb, ba, bb, dist, dx, dy)
		return
	}

	// Cross-player: strict mass-ratio dominance plus overlap depth, else
	// the cells pass through each other freely.
	big, small := a, b
	bigB, smallB := ba, bb
	if bb.Mass > ba.Mass {
		big, small = b, a
		bigB, smallB = bb, ba
	}
	if bigB.Mass <= smallB.Mass*s.cfg.Rules.AbsorbRatio {
		return
	}
	if !s.eaten(dist, bigB.Radius, smallB.Radius) {
		return
	}
	s.absorbCell(big, bigB, small, smallB)
}

// resolveSameOwner merges cells whose merge cooldowns both elapsed, and
// pushes still-cooling cells apart so a freshly split player stays a cluster
// instead of a stack.
func (s *CollisionSystem) resolveSameOwner(a, b ecs.EntityID, ca, cb *world.CellData, ba, bb *world.Body, dist, dx, dy float32) {
	overlap := ba.Radius + bb.Radius - dist
	if overlap <= 0 {
		return
	}

	if ca.MergeCooldown <= 0 && cb.MergeCooldown <= 0 {
		// Merge once centers are close, not merely touching.
		if dist < max(ba.Radius, bb.Radius) {
			winner, loser := a, b
			winB, loseB := ba, bb
			if bb.Mass > ba.Mass {
				winner, loser = b, a
				winB, loseB = bb, ba
			}
			s.absorbCell(winner, winB, loser, loseB)
			return
		}
	}

	// Separation push, half the overlap each.
	nx, ny := float32(1), float32(0)
	if dist > 0 {
		nx, ny = dx/dist, dy/dist
	}
	ta, _ := s.ws.Stores.Transforms.Get(a)
	tb, _ := s.ws.Stores.Transforms.Get(b)
	if ta == nil || tb == nil {
		return
	}
	ta.X -= nx * overlap / 2
	ta.Y -= ny * overlap / 2
	tb.X += nx * overlap / 2
	tb.Y += ny * overlap / 2
}

// absorbCell moves the loser's whole mass onto the winner and queues the
// loser for destruction. Exact addition — the conservation invariant rests
// on this being the only cross-cell mass transfer.
func (s *CollisionSystem) absorbCell(winner ecs.EntityID, winB *world.Body, loser ecs.EntityID, loseB *world.Body) {
	transferred := loseB.Mass
	s.ws.SetMass(winB, winB.Mass+transferred)

	if cd, ok := s.ws.Stores.Cells.Get(loser); ok {
		if p := s.ws.GetByID(cd.Owner); p != nil {
			s.ws.DetachCell(p, loser)
		}
	}
	s.ws.ECS.MarkForDestruction(loser)
	s.ws.Grid.Remove(loser)

	event.Emit(s.bus, event.CellAbsorbed{Winner: winner, Loser: loser, Mass: transferred})
}

func (s *CollisionSystem) resolveCellOther(cell, other ecs.EntityID) {
	cellB, okC := s.ws.Stores.Bodies.Get(cell)
	otherB, okO := s.ws.Stores.Bodies.Get(other)
	if !okC || !okO {
		return
	}
	dist, _, _, ok := s.distance(cell, other)
	if !ok {
		return
	}

	switch otherB.Kind {
	case world.KindFood, world.KindEjected:
		if cellB.Mass <= otherB.Mass {
			return
		}
		if !s.eaten(dist, cellB.Radius, otherB.Radius) {
			return
		}
		s.ws.SetMass(cellB, cellB.Mass+otherB.Mass)
		s.ws.ECS.MarkForDestruction(other)
		s.ws.Grid.Remove(other)

	case world.KindVirus:
		if cellB.Mass <= s.tun.VirusMass*s.cfg.Rules.VirusTriggerRatio {
			return
		}
		if !s.eaten(dist, cellB.Radius, otherB.Radius) {
			return
		}
		s.popVirus(cell, cellB, other)
	}
}

// popVirus bursts the cell into fragments summing exactly to the cell's own
// mass; the virus's mass is never transferred, it reappears with the virus
// respawned elsewhere. The fragment count is capped both by the tuned
// maximum and by the owner's remaining cell budget. A full player just
// detonates the virus without bursting.
func (s *CollisionSystem) popVirus(cell ecs.EntityID, cellB *world.Body, virus ecs.EntityID) {
	cd, ok := s.ws.Stores.Cells.Get(cell)
	if !ok {
		return
	}
	p := s.ws.GetByID(cd.Owner)
	if p == nil {
		return
	}

	total := cellB.Mass

	s.ws.ECS.MarkForDestruction(virus)
	s.ws.Grid.Remove(virus)

	avail := s.cfg.World.MaxCellsPerPlayer - len(p.Cells)
	n := min(s.cfg.Rules.VirusMaxFragments, avail+1)
	if n < 2 {
		return
	}

	tr, ok := s.ws.Stores.Transforms.Get(cell)
	if !ok {
		return
	}
	per := total / float32(n)
	cooldown := int32(s.cfg.Rules.MergeCooldownTicks)

	// The original cell keeps the rounding remainder so the fragment masses
	// sum exactly to the pre-pop total.
	s.ws.SetMass(cellB, total-per*float32(n-1))
	cd.MergeCooldown = cooldown

	for k := 1; k < n; k++ {
		angle := 2 * math.Pi * float64(k) / float64(n)
		dx := float32(math.Cos(angle))
		dy := float32(math.Sin(angle))
		off := s.tun.RadiusForMass(per)
		s.ws.SpawnCell(p,
			tr.X+dx*off, tr.Y+dy*off,
			per,
			dx*s.tun.SplitImpulse, dy*s.tun.SplitImpulse,
			cooldown,
		)
	}

	// Keep the virus population constant.
	vx, vy := s.ws.RandPos()
	s.ws.SpawnVirus(vx, vy)

	event.Emit(s.bus, event.VirusPopped{Cell: cell, Fragments: n})
	s.log.Debug("病毒引爆",
		zap.Uint32("player", p.ID),
		zap.Int("fragments", n),
	)
}
