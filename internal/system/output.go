package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/agargo/server/internal/config"
	coresys "github.com/agargo/server/internal/core/system"
	gonet "github.com/agargo/server/internal/net"
	"github.com/agargo/server/internal/world"
)

// OutputSystem is the last phase: it flushes every session's buffered frames
// into its write queue and logs periodic world diagnostics.
type OutputSystem struct {
	store *gonet.SessionStore
	ws    *world.State
	cfg   *config.Config
	log   *zap.Logger
}

func NewOutputSystem(store *gonet.SessionStore, ws *world.State, cfg *config.Config, log *zap.Logger) *OutputSystem {
	return &OutputSystem{store: store, ws: ws, cfg: cfg, log: log}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(dt time.Duration) {
	s.store.ForEach(func(sess *gonet.Session) {
		if !sess.IsClosed() {
			sess.FlushOutput()
		}
	})

	if n := s.cfg.Rules.StatsTicks; n > 0 && s.ws.Tick%uint32(n) == 0 {
		var rejected uint64
		s.store.ForEach(func(sess *gonet.Session) { rejected += sess.Rejected })
		s.log.Info("世界統計",
			zap.Uint32("tick", s.ws.Tick),
			zap.Int("players", s.ws.PlayerCount()),
			zap.Int("sessions", s.store.Len()),
			zap.Int("entities", s.ws.EntityCount()),
			zap.Int("food", s.ws.Stores.Food.Len()),
			zap.Int("viruses", s.ws.Stores.Viruses.Len()),
			zap.Uint64("rejected_cmds", rejected),
		)
	}
}
