package net

import (
	"net"
	"time"
)

// Conn is the subset of *websocket.Conn the session layer depends on.
// The simulation core never touches transport specifics beyond this.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}
