package handler

import (
	gonet "github.com/agargo/server/internal/net"
	"github.com/agargo/server/internal/net/packet"
)

// RegisterAll wires every client opcode to its handler with the session
// states it is legal in.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	joinStates := []packet.SessionState{packet.StateHandshake, packet.StateDead}
	playStates := []packet.SessionState{packet.StateInWorld}
	anyStates := []packet.SessionState{packet.StateHandshake, packet.StateInWorld, packet.StateDead}

	reg.Register(packet.C_OPCODE_JOIN, joinStates, func(sess any, r *packet.Reader) {
		HandleJoin(deps, sess.(*gonet.Session), r)
	})
	reg.Register(packet.C_OPCODE_MOVE, playStates, func(sess any, r *packet.Reader) {
		HandleMove(deps, sess.(*gonet.Session), r)
	})
	reg.Register(packet.C_OPCODE_SPLIT, playStates, func(sess any, r *packet.Reader) {
		HandleSplit(deps, sess.(*gonet.Session), r)
	})
	reg.Register(packet.C_OPCODE_EJECT, playStates, func(sess any, r *packet.Reader) {
		HandleEject(deps, sess.(*gonet.Session), r)
	})
	reg.Register(packet.C_OPCODE_PING, anyStates, func(sess any, r *packet.Reader) {
		HandlePing(deps, sess.(*gonet.Session), r)
	})
	reg.Register(packet.C_OPCODE_QUIT, anyStates, func(sess any, r *packet.Reader) {
		HandleQuit(deps, sess.(*gonet.Session), r)
	})
}
