package handler

import (
	"strings"

	"go.uber.org/zap"

	"github.com/agargo/server/internal/core/event"
	gonet "github.com/agargo/server/internal/net"
	"github.com/agargo/server/internal/net/packet"
)

// HandleJoin admits a player into the world, or respawns a dead one. Runs on
// the game loop, so spawning here keeps the world's single-writer model and
// draws spawn positions from the world RNG in command order.
func HandleJoin(deps *Deps, sess *gonet.Session, r *packet.Reader) {
	name := strings.TrimSpace(r.ReadS())
	if !validName(name) {
		sess.Send(BuildReject(packet.RejectBadName))
		return
	}

	ws := deps.World
	p := ws.GetBySession(sess.ID)
	switch {
	case p == nil:
		p = ws.AddPlayer(sess, name)
		if p == nil {
			deps.Log.Info("世界已滿，拒絕加入", zap.Uint64("session", sess.ID))
			sess.Send(BuildReject(packet.RejectServerFull))
			return
		}
		event.Emit(deps.Bus, event.PlayerJoined{PlayerID: p.ID, SessionID: sess.ID, Name: name})
	case p.Dead:
		// Respawn: same player id, fresh cell, fresh view.
		p.Dead = false
		p.Name = name
		p.NeedFull = true
	default:
		// Already alive; duplicate Join frames are dropped.
		return
	}

	x, y := ws.RandPos()
	ws.SpawnCell(p, x, y, deps.Cfg.Rules.StartMass, 0, 0, 0)

	sess.Nickname = name
	sess.SetState(packet.StateInWorld)
	sess.Send(BuildWelcome(p.ID, deps.Cfg))

	deps.Log.Info("玩家進入世界",
		zap.Uint64("session", sess.ID),
		zap.Uint32("player", p.ID),
		zap.String("name", name),
	)
}
