package world

import (
	"math"
	"math/rand"
	"slices"

	"github.com/agargo/server/internal/config"
	"github.com/agargo/server/internal/core/ecs"
	"github.com/agargo/server/internal/data"
	gonet "github.com/agargo/server/internal/net"
)

// CommandKind discriminates validated player commands.
type CommandKind uint8

const (
	CmdMove CommandKind = iota + 1
	CmdSplit
	CmdEject
)

// Command is one validated client input, buffered in the owner's inbox and
// consumed atomically at the start of the next tick.
type Command struct {
	Seq    uint32
	Kind   CommandKind
	DX, DY float32
}

// KnownEntity is the last state of an entity sent to a client, used by the
// synchronizer to compute entered/updated/left sets.
type KnownEntity struct {
	X, Y float32
	Mass float32
}

// PlayerInfo is a view/grouping over cells — players never hold entity
// references, only ids. Game loop only.
type PlayerInfo struct {
	ID        uint32
	Name      string
	SessionID uint64
	Session   *gonet.Session

	Cells []ecs.EntityID
	Dead  bool

	// Latest validated aim direction, unit-length or zero.
	AimX, AimY float32

	LastSeq uint32
	Inbox   []Command
	Bucket  TokenBucket

	// Synchronizer state.
	Known    map[ecs.EntityID]KnownEntity
	NeedFull bool
}

// State owns all simulation entities and derived indices. The tick loop is
// its sole mutator; sessions talk to it only through queues.
type State struct {
	Cfg    *config.Config
	Tuning *data.Tuning

	ECS    *ecs.World
	Stores *Stores
	Grid   *Grid

	Tick uint32
	RNG  *rand.Rand

	players      map[uint32]*PlayerInfo
	bySession    map[uint64]*PlayerInfo
	nextPlayerID uint32

	inboxCap int
}

func NewState(cfg *config.Config, tun *data.Tuning, seed int64) *State {
	w := ecs.NewWorld()
	stores := NewStores(w.Registry())

	// Bucket size ≈ diameter of a fresh player cell: big enough that a
	// typical neighbor query touches a 3x3 neighbourhood, small enough
	// that food-dense buckets stay short.
	cellSize := 2 * tun.RadiusForMass(cfg.Rules.StartMass)

	inboxCap := cfg.RateLimit.InboxCap
	if inboxCap <= 0 {
		inboxCap = 8
	}

	return &State{
		Cfg:       cfg,
		Tuning:    tun,
		ECS:       w,
		Stores:    stores,
		Grid:      NewGrid(cellSize),
		RNG:       rand.New(rand.NewSource(seed)),
		players:   make(map[uint32]*PlayerInfo, cfg.World.MaxPlayers),
		bySession: make(map[uint64]*PlayerInfo, cfg.World.MaxPlayers),
		inboxCap:  inboxCap,
	}
}

// ── Players ───────────────────────────────────────────────────────

// AddPlayer registers a new player for a session. Returns nil when the
// world is at max_players.
func (s *State) AddPlayer(sess *gonet.Session, name string) *PlayerInfo {
	if len(s.players) >= s.Cfg.World.MaxPlayers {
		return nil
	}
	s.nextPlayerID++
	p := &PlayerInfo{
		ID:        s.nextPlayerID,
		Name:      name,
		SessionID: sess.ID,
		Session:   sess,
		Bucket:    NewTokenBucket(s.commandRate()),
		Known:     make(map[ecs.EntityID]KnownEntity, 256),
		NeedFull:  true,
	}
	s.players[p.ID] = p
	s.bySession[sess.ID] = p
	return p
}

func (s *State) commandRate() (float64, float64) {
	if !s.Cfg.RateLimit.Enabled {
		return 0, 0
	}
	return s.Cfg.RateLimit.CommandsPerSecond, s.Cfg.RateLimit.CommandBurst
}

// RemovePlayer detaches a player from the world and queues all owned cells
// for destruction at the next cleanup. Returns the removed player, or nil.
func (s *State) RemovePlayer(sessionID uint64) *PlayerInfo {
	p, ok := s.bySession[sessionID]
	if !ok {
		return nil
	}
	for _, id := range p.Cells {
		s.ECS.MarkForDestruction(id)
	}
	p.Cells = nil
	delete(s.players, p.ID)
	delete(s.bySession, sessionID)
	return p
}

func (s *State) GetBySession(sessionID uint64) *PlayerInfo {
	return s.bySession[sessionID]
}

func (s *State) GetByID(id uint32) *PlayerInfo {
	return s.players[id]
}

// AllPlayers visits players in ascending ID order.
func (s *State) AllPlayers(fn func(*PlayerInfo)) {
	ids := make([]uint32, 0, len(s.players))
	for id := range s.players {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if p, ok := s.players[id]; ok {
			fn(p)
		}
	}
}

func (s *State) PlayerCount() int {
	return len(s.players)
}

// EnqueueCommand buffers a validated command for the next tick. Returns
// false when the inbox is full (command dropped, counted by the caller).
func (s *State) EnqueueCommand(p *PlayerInfo, cmd Command) bool {
	if len(p.Inbox) >= s.inboxCap {
		return false
	}
	p.Inbox = append(p.Inbox, cmd)
	return true
}

// ── Entities ──────────────────────────────────────────────────────

// SetMass assigns a cell mass and rederives the radius. NaN or negative
// input is clamped to zero so a corrupt value can never propagate; the
// cleanup phase removes zero-mass entities.
func (s *State) SetMass(b *Body, mass float32) {
	if math.IsNaN(float64(mass)) || mass < 0 {
		mass = 0
	}
	b.Mass = mass
	b.Radius = s.Tuning.RadiusForMass(mass)
}

// SpawnCell creates a player cell and appends it to the owner's cell list.
func (s *State) SpawnCell(p *PlayerInfo, x, y, mass, vx, vy float32, cooldown int32) ecs.EntityID {
	id := s.ECS.CreateEntity()
	s.Stores.Transforms.Set(id, &Transform{X: x, Y: y, VX: vx, VY: vy})
	b := &Body{Kind: KindCell}
	s.SetMass(b, mass)
	s.Stores.Bodies.Set(id, b)
	s.Stores.Cells.Set(id, &CellData{Owner: p.ID, MergeCooldown: cooldown})
	p.Cells = append(p.Cells, id)
	return id
}

// DetachCell removes a cell id from its owner's list (the entity itself is
// destroyed separately via the ECS destroy queue).
func (s *State) DetachCell(p *PlayerInfo, id ecs.EntityID) {
	for i, c := range p.Cells {
		if c == id {
			p.Cells = append(p.Cells[:i], p.Cells[i+1:]...)
			return
		}
	}
}

func (s *State) SpawnFood(x, y, mass float32) ecs.EntityID {
	id := s.ECS.CreateEntity()
	s.Stores.Transforms.Set(id, &Transform{X: x, Y: y})
	b := &Body{Kind: KindFood}
	s.SetMass(b, mass)
	s.Stores.Bodies.Set(id, b)
	s.Stores.Food.Set(id, &FoodData{})
	return id
}

func (s *State) SpawnVirus(x, y float32) ecs.EntityID {
	id := s.ECS.CreateEntity()
	s.Stores.Transforms.Set(id, &Transform{X: x, Y: y})
	b := &Body{Kind: KindVirus}
	s.SetMass(b, s.Tuning.VirusMass)
	s.Stores.Bodies.Set(id, b)
	s.Stores.Viruses.Set(id, &VirusData{})
	return id
}

func (s *State) SpawnEjected(x, y, mass, vx, vy float32) ecs.EntityID {
	id := s.ECS.CreateEntity()
	s.Stores.Transforms.Set(id, &Transform{X: x, Y: y, VX: vx, VY: vy})
	b := &Body{Kind: KindEjected}
	s.SetMass(b, mass)
	s.Stores.Bodies.Set(id, b)
	s.Stores.Ejected.Set(id, &EjectedData{TTL: int32(s.Tuning.EjectedTTLTicks)})
	return id
}

// RandPos draws a uniform position inside the world bounds from the world
// RNG. Tick goroutine only; draw order is part of the deterministic run.
func (s *State) RandPos() (float32, float32) {
	x := s.RNG.Float32() * s.Cfg.World.Width
	y := s.RNG.Float32() * s.Cfg.World.Height
	return x, y
}

// RandFoodMass draws a pellet mass from the tuned range. Tick goroutine only.
func (s *State) RandFoodMass() float32 {
	return s.Tuning.FoodMassMin + s.RNG.Float32()*(s.Tuning.FoodMassMax-s.Tuning.FoodMassMin)
}

// TotalMass sums the live cells of a player.
func (s *State) TotalMass(p *PlayerInfo) float32 {
	var sum float32
	for _, id := range p.Cells {
		if b, ok := s.Stores.Bodies.Get(id); ok {
			sum += b.Mass
		}
	}
	return sum
}

// Centroid is the mass-weighted center of a player's cells. Falls back to
// the world center for a player with no cells.
func (s *State) Centroid(p *PlayerInfo) (float32, float32) {
	var sx, sy, sm float32
	for _, id := range p.Cells {
		tr, okT := s.Stores.Transforms.Get(id)
		b, okB := s.Stores.Bodies.Get(id)
		if !okT || !okB || b.Mass <= 0 {
			continue
		}
		sx += tr.X * b.Mass
		sy += tr.Y * b.Mass
		sm += b.Mass
	}
	if sm <= 0 {
		return s.Cfg.World.Width / 2, s.Cfg.World.Height / 2
	}
	return sx / sm, sy / sm
}

// EntityCount returns the number of live simulation entities.
func (s *State) EntityCount() int {
	return s.ECS.Pool().Live()
}
