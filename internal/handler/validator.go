package handler

import (
	"math"
	"unicode/utf8"
)

// maxDirMagnitude bounds the raw direction vector a client may send. Clients
// send unit-ish vectors; anything wildly larger is a corrupt or hostile
// frame, not an aim.
const maxDirMagnitude = 16.0

const maxNameLen = 16

// finiteDir rejects NaN/Inf and out-of-range direction vectors before they
// can reach the simulation.
func finiteDir(dx, dy float32) bool {
	fx, fy := float64(dx), float64(dy)
	if math.IsNaN(fx) || math.IsInf(fx, 0) || math.IsNaN(fy) || math.IsInf(fy, 0) {
		return false
	}
	return fx*fx+fy*fy <= maxDirMagnitude*maxDirMagnitude
}

// clampDir normalizes a direction to unit length or shorter. The server is
// the authority on magnitude; the client only suggests a heading.
func clampDir(dx, dy float32) (float32, float32) {
	l := math.Sqrt(float64(dx)*float64(dx) + float64(dy)*float64(dy))
	if l <= 1 {
		return dx, dy
	}
	inv := float32(1 / l)
	return dx * inv, dy * inv
}

func validName(name string) bool {
	if name == "" || !utf8.ValidString(name) {
		return false
	}
	return utf8.RuneCountInString(name) <= maxNameLen
}

// staleSeq reports whether a command's sequence number is not strictly
// greater than the last accepted one. Stale or duplicate commands are the
// most common replay artifact on a flaky link; they are dropped without
// touching any state. LastSeq advances only when a command is enqueued.
func staleSeq(last, seq uint32) bool {
	return seq <= last
}
