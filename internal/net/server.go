package net

import (
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agargo/server/internal/config"
)

// Server upgrades websocket connections and creates Sessions.
// New sessions are handed to the game loop via a channel; closed
// sessions are observed by the loop itself when it iterates the store.
type Server struct {
	listener net.Listener
	httpSrv  *http.Server
	upgrader websocket.Upgrader

	nextID   atomic.Uint64
	newConns chan *Session

	opts SessionOptions

	log     *zap.Logger
	closeCh chan struct{}
}

func NewServer(cfg config.NetworkConfig, rl config.RateLimitConfig, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", cfg.BindAddress)
	if err != nil {
		return nil, err
	}

	pps := 0
	if rl.Enabled {
		pps = rl.PacketsPerSecond
	}
	s := &Server{
		listener: ln,
		newConns: make(chan *Session, 64),
		opts: SessionOptions{
			InQueueSize:      cfg.InQueueSize,
			OutQueueSize:     cfg.OutQueueSize,
			StallTicksLimit:  cfg.StallTicksLimit,
			ReadTimeout:      time.Duration(cfg.HeartbeatTicks) * cfg.TickInterval(),
			WriteTimeout:     cfg.WriteTimeout,
			PacketsPerSecond: pps,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // browser clients come from anywhere
		},
		log:     log,
		closeCh: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.WSPath, s.handleWS)
	s.httpSrv = &http.Server{Handler: mux}
	return s, nil
}

// Serve runs the HTTP server in its own goroutine.
func (s *Server) Serve() {
	if err := s.httpSrv.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		select {
		case <-s.closeCh:
		default:
			s.log.Error("HTTP 伺服器中止", zap.Error(err))
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	id := s.nextID.Add(1)
	sess := NewSession(conn, id, s.opts, s.log)
	sess.Start()

	s.log.Info("玩家連線", zap.Uint64("session", id), zap.String("ip", sess.IP))

	select {
	case s.newConns <- sess:
	default:
		s.log.Warn("連線佇列已滿，拒絕新連線")
		sess.Close()
	}
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.httpSrv.Close()
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
