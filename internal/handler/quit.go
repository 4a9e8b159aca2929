package handler

import (
	"go.uber.org/zap"

	gonet "github.com/agargo/server/internal/net"
	"github.com/agargo/server/internal/net/packet"
)

// HandleQuit is an explicit goodbye. The input system does the actual world
// cleanup when it observes the closed session.
func HandleQuit(deps *Deps, sess *gonet.Session, r *packet.Reader) {
	deps.Log.Info("玩家主動離線", zap.Uint64("session", sess.ID))
	sess.Close()
}
