package system

import (
	"math"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/agargo/server/internal/config"
	"github.com/agargo/server/internal/core/ecs"
	coresys "github.com/agargo/server/internal/core/system"
	"github.com/agargo/server/internal/data"
	"github.com/agargo/server/internal/handler"
	"github.com/agargo/server/internal/net/packet"
	"github.com/agargo/server/internal/world"
)

// posEpsilon is the movement threshold below which an entity is not worth an
// update record. Mass uses the same threshold.
const posEpsilon = 0.01

// SyncSystem publishes the committed tick to each client: a full snapshot
// when one is owed (first sync after join, or after output coalescing),
// otherwise a delta of entered/updated/left entities against the per-player
// known set. Runs after cleanup, so it only ever serializes live entities.
type SyncSystem struct {
	ws  *world.State
	cfg *config.Config
	tun *data.Tuning
	log *zap.Logger

	enc *zstd.Encoder

	visBuf []ecs.EntityID
	visSet map[ecs.EntityID]struct{}
}

func NewSyncSystem(ws *world.State, cfg *config.Config, tun *data.Tuning, log *zap.Logger) *SyncSystem {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		// Only reachable with bad options; run uncompressed.
		log.Warn("zstd 編碼器建立失敗，停用快照壓縮", zap.Error(err))
		enc = nil
	}
	return &SyncSystem{
		ws:     ws,
		cfg:    cfg,
		tun:    tun,
		log:    log,
		enc:    enc,
		visSet: make(map[ecs.EntityID]struct{}, 512),
	}
}

func (s *SyncSystem) Phase() coresys.Phase { return coresys.PhaseSync }

func (s *SyncSystem) Update(dt time.Duration) {
	var leaderboard []byte
	if n := s.cfg.Rules.LeaderboardTicks; n > 0 && s.ws.Tick%uint32(n) == 0 {
		leaderboard = s.buildLeaderboard()
	}

	s.ws.AllPlayers(func(p *world.PlayerInfo) {
		sess := p.Session
		if sess == nil || sess.IsClosed() {
			return
		}

		visible := s.collectVisible(p)
		if p.NeedFull || sess.WantFullSnapshot() {
			sess.Send(s.buildSnapshot(p, visible))
			p.NeedFull = false
			sess.ClearWantFull()
		} else if delta := s.buildDelta(p, visible); delta != nil {
			sess.Send(delta)
		}

		if leaderboard != nil {
			sess.Send(leaderboard)
		}
	})
}

// collectVisible gathers the sorted, live entity ids inside the player's
// viewport. The player's own cells are always included — fragments spawned
// after the grid rebuild would otherwise be invisible for one tick.
func (s *SyncSystem) collectVisible(p *world.PlayerInfo) []ecs.EntityID {
	cx, cy := s.ws.Centroid(p)
	half := s.tun.ViewBase + s.tun.ViewMassScale*sqrt32(s.ws.TotalMass(p)) + s.tun.ViewMargin

	clear(s.visSet)
	s.visBuf = s.ws.Grid.QueryRect(cx-half, cy-half, cx+half, cy+half, s.visBuf[:0])

	out := make([]ecs.EntityID, 0, len(s.visBuf)+len(p.Cells))
	for _, id := range s.visBuf {
		if !s.ws.ECS.Alive(id) || !s.ws.Stores.Bodies.Has(id) {
			continue
		}
		if _, dup := s.visSet[id]; dup {
			continue
		}
		s.visSet[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range p.Cells {
		if !s.ws.ECS.Alive(id) {
			continue
		}
		if _, dup := s.visSet[id]; dup {
			continue
		}
		s.visSet[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *SyncSystem) ownerOf(id ecs.EntityID) uint32 {
	if cd, ok := s.ws.Stores.Cells.Get(id); ok {
		return cd.Owner
	}
	return 0
}

// buildSnapshot serializes every visible entity and rebuilds the player's
// known set from it. The entity block is zstd-compressed above the
// configured threshold; deltas stay uncompressed, they are small.
func (s *SyncSystem) buildSnapshot(p *world.PlayerInfo, visible []ecs.EntityID) []byte {
	block := packet.NewWriter()
	block.WriteH(uint16(len(visible)))

	clear(p.Known)
	for _, id := range visible {
		tr, okT := s.ws.Stores.Transforms.Get(id)
		b, okB := s.ws.Stores.Bodies.Get(id)
		if !okT || !okB {
			continue
		}
		handler.WriteEntityFull(block, id, b, tr, s.ownerOf(id))
		p.Known[id] = world.KnownEntity{X: tr.X, Y: tr.Y, Mass: b.Mass}
	}

	var flags byte
	payload := block.Bytes()
	if s.enc != nil && len(payload) >= s.cfg.Network.CompressMinBytes {
		payload = s.enc.EncodeAll(payload, nil)
		flags |= packet.SnapshotFlagZstd
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_SNAPSHOT)
	w.WriteD(s.ws.Tick)
	w.WriteC(flags)
	w.WriteBytes(payload)
	return w.Bytes()
}

// buildDelta computes entered/updated/left against the known set and
// returns nil when nothing changed (no frame is sent for a quiet viewport).
func (s *SyncSystem) buildDelta(p *world.PlayerInfo, visible []ecs.EntityID) []byte {
	var entered, updated []ecs.EntityID
	for _, id := range visible {
		tr, okT := s.ws.Stores.Transforms.Get(id)
		b, okB := s.ws.Stores.Bodies.Get(id)
		if !okT || !okB {
			continue
		}
		known, seen := p.Known[id]
		if !seen {
			entered = append(entered, id)
			continue
		}
		if abs32(tr.X-known.X) > posEpsilon ||
			abs32(tr.Y-known.Y) > posEpsilon ||
			abs32(b.Mass-known.Mass) > posEpsilon {
			updated = append(updated, id)
		}
	}

	var left []ecs.EntityID
	for id := range p.Known {
		if _, vis := s.visSet[id]; !vis {
			left = append(left, id)
		}
	}
	sort.Slice(left, func(i, j int) bool { return left[i] < left[j] })

	if len(entered) == 0 && len(updated) == 0 && len(left) == 0 {
		return nil
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_DELTA)
	w.WriteD(s.ws.Tick)

	w.WriteH(uint16(len(entered)))
	for _, id := range entered {
		tr, _ := s.ws.Stores.Transforms.Get(id)
		b, _ := s.ws.Stores.Bodies.Get(id)
		handler.WriteEntityFull(w, id, b, tr, s.ownerOf(id))
		p.Known[id] = world.KnownEntity{X: tr.X, Y: tr.Y, Mass: b.Mass}
	}

	w.WriteH(uint16(len(updated)))
	for _, id := range updated {
		tr, _ := s.ws.Stores.Transforms.Get(id)
		b, _ := s.ws.Stores.Bodies.Get(id)
		handler.WriteEntityUpdate(w, id, tr, b)
		p.Known[id] = world.KnownEntity{X: tr.X, Y: tr.Y, Mass: b.Mass}
	}

	w.WriteH(uint16(len(left)))
	for _, id := range left {
		w.WriteQ(uint64(id))
		delete(p.Known, id)
	}
	return w.Bytes()
}

// buildLeaderboard ranks alive players by aggregate mass, ties broken by
// join order (lower id first).
func (s *SyncSystem) buildLeaderboard() []byte {
	type row struct {
		p    *world.PlayerInfo
		mass float32
	}
	rows := make([]row, 0, s.ws.PlayerCount())
	s.ws.AllPlayers(func(p *world.PlayerInfo) {
		if p.Dead {
			return
		}
		rows = append(rows, row{p: p, mass: s.ws.TotalMass(p)})
	})
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].mass > rows[j].mass })

	size := s.cfg.Rules.LeaderboardSize
	if size <= 0 || size > len(rows) {
		size = len(rows)
	}
	entries := make([]handler.LeaderEntry, 0, size)
	for _, r := range rows[:size] {
		entries = append(entries, handler.LeaderEntry{
			PlayerID: r.p.ID,
			Name:     r.p.Name,
			Mass:     r.mass,
		})
	}
	return handler.BuildLeaderboard(entries)
}

func sqrt32(v float32) float32 {
	if v <= 0 {
		return 0
	}
	return float32(math.Sqrt(float64(v)))
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
