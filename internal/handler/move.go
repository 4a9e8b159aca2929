package handler

import (
	"time"

	gonet "github.com/agargo/server/internal/net"
	"github.com/agargo/server/internal/net/packet"
	"github.com/agargo/server/internal/world"
)

// HandleMove validates a steering command and buffers it for the next tick.
// Every rejection path is silent — the server never argues with a client,
// it just ignores it (diagnostic counter only).
func HandleMove(deps *Deps, sess *gonet.Session, r *packet.Reader) {
	p := deps.World.GetBySession(sess.ID)
	if p == nil || p.Dead {
		return
	}

	seq := r.ReadD()
	dx := r.ReadF()
	dy := r.ReadF()

	if staleSeq(p.LastSeq, seq) || !finiteDir(dx, dy) {
		sess.Rejected++
		return
	}
	if !p.Bucket.Allow(time.Now()) {
		sess.Rejected++
		return
	}

	dx, dy = clampDir(dx, dy)
	if !deps.World.EnqueueCommand(p, world.Command{Seq: seq, Kind: world.CmdMove, DX: dx, DY: dy}) {
		sess.Rejected++
		return
	}
	p.LastSeq = seq
}
