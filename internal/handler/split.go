package handler

import (
	"time"

	gonet "github.com/agargo/server/internal/net"
	"github.com/agargo/server/internal/net/packet"
	"github.com/agargo/server/internal/world"
)

// HandleSplit validates a split request. Hitting the per-player cell cap is
// the one rejection the client is told about (a defined resource-exhausted
// code); everything else is dropped silently.
func HandleSplit(deps *Deps, sess *gonet.Session, r *packet.Reader) {
	p := deps.World.GetBySession(sess.ID)
	if p == nil || p.Dead {
		return
	}

	seq := r.ReadD()
	if staleSeq(p.LastSeq, seq) {
		sess.Rejected++
		return
	}
	if !p.Bucket.Allow(time.Now()) {
		sess.Rejected++
		return
	}

	if len(p.Cells) >= deps.Cfg.World.MaxCellsPerPlayer {
		sess.Send(BuildReject(packet.RejectTooManyCells))
		p.LastSeq = seq
		return
	}
	if !hasCellAbove(deps, p, deps.Cfg.Rules.MinSplitMass) {
		sess.Rejected++
		return
	}

	if !deps.World.EnqueueCommand(p, world.Command{Seq: seq, Kind: world.CmdSplit}) {
		sess.Rejected++
		return
	}
	p.LastSeq = seq
}

// hasCellAbove reports whether the player owns at least one cell at or above
// the given mass.
func hasCellAbove(deps *Deps, p *world.PlayerInfo, mass float32) bool {
	for _, id := range p.Cells {
		if b, ok := deps.World.Stores.Bodies.Get(id); ok && b.Mass >= mass {
			return true
		}
	}
	return false
}
