package handler

import (
	"github.com/agargo/server/internal/config"
	"github.com/agargo/server/internal/core/ecs"
	"github.com/agargo/server/internal/net/packet"
	"github.com/agargo/server/internal/world"
)

// Server packet builders. Free functions so both handlers and systems can
// build frames without import cycles.

// BuildWelcome carries the assigned player id and the immutable world
// parameters a client needs before the first snapshot.
func BuildWelcome(playerID uint32, cfg *config.Config) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_WELCOME)
	w.WriteD(playerID)
	w.WriteF(cfg.World.Width)
	w.WriteF(cfg.World.Height)
	w.WriteH(uint16(cfg.Network.TickRateHz))
	return w.Bytes()
}

func BuildReject(code byte) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_REJECT)
	w.WriteC(code)
	return w.Bytes()
}

func BuildPong(nonce uint32) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_PONG)
	w.WriteD(nonce)
	return w.Bytes()
}

func BuildDead() []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_DEAD)
	return w.Bytes()
}

// LeaderEntry is one row of the periodic leaderboard push.
type LeaderEntry struct {
	PlayerID uint32
	Name     string
	Mass     float32
}

func BuildLeaderboard(entries []LeaderEntry) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_LEADERBOARD)
	w.WriteC(byte(len(entries)))
	for _, e := range entries {
		w.WriteD(e.PlayerID)
		w.WriteS(e.Name)
		w.WriteF(e.Mass)
	}
	return w.Bytes()
}

// WriteEntityFull appends one full entity record: id, kind, position, mass,
// and the owner id for cells.
func WriteEntityFull(w *packet.Writer, id ecs.EntityID, b *world.Body, tr *world.Transform, owner uint32) {
	w.WriteQ(uint64(id))
	w.WriteC(byte(b.Kind))
	w.WriteF(tr.X)
	w.WriteF(tr.Y)
	w.WriteF(b.Mass)
	if b.Kind == world.KindCell {
		w.WriteD(owner)
	}
}

// WriteEntityUpdate appends one changed-fields record for an entity the
// client already knows: id, position, mass.
func WriteEntityUpdate(w *packet.Writer, id ecs.EntityID, tr *world.Transform, b *world.Body) {
	w.WriteQ(uint64(id))
	w.WriteF(tr.X)
	w.WriteF(tr.Y)
	w.WriteF(b.Mass)
}
