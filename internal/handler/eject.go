package handler

import (
	"time"

	gonet "github.com/agargo/server/internal/net"
	"github.com/agargo/server/internal/net/packet"
	"github.com/agargo/server/internal/world"
)

// HandleEject validates an eject-mass request. Refused silently when no cell
// could eject without dropping below the mass floor.
func HandleEject(deps *Deps, sess *gonet.Session, r *packet.Reader) {
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

	floor := deps.Cfg.Rules.MinEjectMass + deps.Tun.EjectMass
	if !hasCellAbove(deps, p, floor) {
		sess.Rejected++
		return
	}

	if !deps.World.EnqueueCommand(p, world.Command{Seq: seq, Kind: world.CmdEject}) {
		sess.Rejected++
		return
	}
	p.LastSeq = seq
}
