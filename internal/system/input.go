package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/agargo/server/internal/core/event"
	coresys "github.com/agargo/server/internal/core/system"
	gonet "github.com/agargo/server/internal/net"
	"github.com/agargo/server/internal/net/packet"
	"github.com/agargo/server/internal/world"
)

// InputSystem is the only bridge between session goroutines and the
// simulation: it accepts new sessions, reaps closed ones, and drains each
// live session's InQueue through the packet registry.
//
// Handlers reached from here only validate and enqueue commands, so the main
// loop may also run this system between ticks for low-latency input polling.
type InputSystem struct {
	server   *gonet.Server
	store    *gonet.SessionStore
	registry *packet.Registry
	ws       *world.State
	bus      *event.Bus

	maxPerTick int
	log        *zap.Logger
}

func NewInputSystem(server *gonet.Server, store *gonet.SessionStore, registry *packet.Registry, ws *world.State, bus *event.Bus, maxPerTick int, log *zap.Logger) *InputSystem {
	if maxPerTick <= 0 {
		maxPerTick = 16
	}
	return &InputSystem{
		server:     server,
		store:      store,
		registry:   registry,
		ws:         ws,
		bus:        bus,
		maxPerTick: maxPerTick,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(dt time.Duration) {
	s.acceptNew()

	s.store.ForEach(func(sess *gonet.Session) {
		if sess.IsClosed() {
			s.reap(sess)
			return
		}
		s.drain(sess)
	})

	// Flush early so handshake replies (Welcome, Pong, Reject) do not wait
	// for the Output phase at the end of the tick. Stall accounting stays
	// with the Output-phase flush.
	s.store.ForEach(func(sess *gonet.Session) {
		if !sess.IsClosed() {
			sess.FlushEarly()
		}
	})
}

func (s *InputSystem) acceptNew() {
	for {
		select {
		case sess := <-s.server.NewSessions():
			s.store.Add(sess)
		default:
			return
		}
	}
}

// reap removes a closed session and its player from the world.
func (s *InputSystem) reap(sess *gonet.Session) {
	if p := s.ws.RemovePlayer(sess.ID); p != nil {
		event.Emit(s.bus, event.PlayerDisconnected{PlayerID: p.ID, SessionID: sess.ID})
		s.log.Info("玩家離開世界",
			zap.Uint64("session", sess.ID),
			zap.Uint32("player", p.ID),
			zap.String("name", p.Name),
		)
	}
	s.store.Remove(sess.ID)
}

// drain dispatches up to maxPerTick frames from one session. A dispatch
// error is a protocol violation and closes the session; cleanup happens on
// the next visit.
func (s *InputSystem) drain(sess *gonet.Session) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case data := <-sess.InQueue:
			if err := s.registry.Dispatch(sess, sess.State(), data); err != nil {
				s.log.Warn("協議違規，斷開連線",
					zap.Uint64("session", sess.ID),
					zap.Error(err),
				)
				sess.Close()
				return
			}
		default:
			return
		}
	}
}
