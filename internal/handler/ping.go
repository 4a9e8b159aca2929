package handler

import (
	gonet "github.com/agargo/server/internal/net"
	"github.com/agargo/server/internal/net/packet"
)

// HandlePing echoes the client nonce. Doubles as the heartbeat that keeps
// the session's read deadline from firing.
func HandlePing(deps *Deps, sess *gonet.Session, r *packet.Reader) {
	nonce := r.ReadD()
	sess.Send(BuildPong(nonce))
}
