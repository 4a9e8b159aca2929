package handler

import (
	"go.uber.org/zap"

	"github.com/agargo/server/internal/config"
	"github.com/agargo/server/internal/core/event"
	"github.com/agargo/server/internal/data"
	"github.com/agargo/server/internal/world"
)

// Deps bundles everything packet handlers need. Handlers run on the game
// loop goroutine only; they validate, enqueue, and reply — the simulation
// systems do the mutating.
type Deps struct {
	World *world.State
	Cfg   *config.Config
	Tun   *data.Tuning
	Bus   *event.Bus
	Log   *zap.Logger
}
