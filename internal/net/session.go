package net

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agargo/server/internal/net/packet"
)

// Session represents a single client connection. Network I/O runs in
// dedicated goroutines; everything else is accessed only from the game loop.
type Session struct {
	ID   uint64
	conn Conn

	state atomic.Int32 // packet.SessionState stored as int32

	InQueue  chan []byte // game loop reads frames from here
	OutQueue chan []byte // writer goroutine reads from here

	IP       string
	Nickname string // set at Join, for logs only

	// Game-loop-only state. Never touched by the I/O goroutines.
	outBuf     [][]byte // buffered packets, flushed once per tick
	wantFull   bool     // pending deltas were coalesced; next sync must be a full snapshot
	stallTicks int      // consecutive ticks the output queue was full
	Rejected   uint64   // commands dropped by the validator (diagnostics)

	stallLimit int

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	readTimeout  time.Duration
	writeTimeout time.Duration

	// Per-second frame rate limiter (readLoop goroutine only, no lock needed)
	pktPerSec  int
	pktCount   int
	pktResetAt int64

	log *zap.Logger
}

func NewSession(conn Conn, id uint64, opt SessionOptions, log *zap.Logger) *Session {
	s := &Session{
		ID:           id,
		conn:         conn,
		InQueue:      make(chan []byte, opt.InQueueSize),
		OutQueue:     make(chan []byte, opt.OutQueueSize),
		IP:           conn.RemoteAddr().String(),
		closeCh:      make(chan struct{}),
		stallLimit:   opt.StallTicksLimit,
		readTimeout:  opt.ReadTimeout,
		writeTimeout: opt.WriteTimeout,
		pktPerSec:    opt.PacketsPerSecond,
		log:          log.With(zap.Uint64("session", id)),
	}
	s.state.Store(int32(packet.StateHandshake))
	return s
}

// SessionOptions bundles the per-session knobs derived from config.
type SessionOptions struct {
	InQueueSize      int
	OutQueueSize     int
	StallTicksLimit  int
	ReadTimeout      time.Duration // heartbeat window; no inbound frame → dead
	WriteTimeout     time.Duration
	PacketsPerSecond int
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a packet for sending. Nothing is written to the socket until
// FlushOutput runs at the Output phase. Game loop only — no lock on outBuf.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// FlushOutput drains the output buffer into OutQueue for the writeLoop.
// Called once per tick at the Output phase.
//
// Backpressure is handled by coalescing, not by blocking the tick: if the
// queue fills, every still-buffered packet for this tick is dropped and the
// session is marked so the next sync pass sends one full snapshot instead of
// the lost deltas. Only a client that cannot even drain coalesced snapshots
// for stallLimit consecutive ticks gets disconnected.
func (s *Session) FlushOutput() {
	s.flush(true)
}

// FlushEarly drains like FlushOutput but leaves the stall counter alone:
// the Output-phase flush is the one measure of a stalled tick, so an extra
// mid-tick flush never counts one saturated tick twice.
func (s *Session) FlushEarly() {
	s.flush(false)
}

func (s *Session) flush(countStall bool) {
	for i, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Debug("輸出佇列已滿，合併為完整快照",
				zap.Int("dropped", len(s.outBuf)-i),
				zap.Int("stall_ticks", s.stallTicks),
			)
			s.wantFull = true
			s.outBuf = s.outBuf[:0]
			if !countStall {
				return
			}
			s.stallTicks++
			if s.stallLimit > 0 && s.stallTicks >= s.stallLimit {
				s.log.Warn("客戶端長時間無法消化輸出，斷線", zap.Int("stall_ticks", s.stallTicks))
				s.Close()
			}
			return
		}
	}
	s.outBuf = s.outBuf[:0]
	if countStall {
		s.stallTicks = 0
	}
}

// WantFullSnapshot reports whether deltas were coalesced since the last full
// snapshot. Game loop only.
func (s *Session) WantFullSnapshot() bool { return s.wantFull }

// ClearWantFull is called by the synchronizer after it queued a full snapshot.
func (s *Session) ClearWantFull() { s.wantFull = false }

// Close gracefully shuts down the session. Pending I/O is cancelled; the
// game loop observes the closure when it next iterates the session store.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop reads binary frames from the websocket and pushes them onto
// InQueue for the game loop. The read deadline doubles as the heartbeat
// timeout: a silent client is dead.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		if s.readTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		msgType, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("讀取錯誤", zap.Error(err))
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			s.log.Debug("非二進位訊框，斷線", zap.Int("type", msgType))
			return
		}

		// Per-second frame rate limiter
		if s.pktPerSec > 0 {
			now := time.Now().Unix()
			if now != s.pktResetAt {
				s.pktCount = 0
				s.pktResetAt = now
			}
			s.pktCount++
			if s.pktCount > s.pktPerSec {
				s.log.Warn("封包速率超限，斷開連線", zap.Int("pps", s.pktCount))
				return
			}
		}

		// Block until InQueue has space or the session closes. The readLoop
		// goroutine is per-session, so this only ever stalls this client.
		select {
		case s.InQueue <- payload:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop drains OutQueue and writes each packet as one binary message.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if s.writeTimeout > 0 {
				s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				if !s.closed.Load() {
					s.log.Debug("寫入錯誤", zap.Error(err))
				}
				return
			}
		case <-s.closeCh:
			return
		}
	}
}
