package system

import (
	"time"

	coresys "github.com/agargo/server/internal/core/system"
	"github.com/agargo/server/internal/scripting"
	"github.com/agargo/server/internal/world"
)

// ScriptSystem fires Lua interval hooks after the simulation phases, so
// scripts observe (and may amend) the tick's final pre-commit state.
type ScriptSystem struct {
	engine *scripting.Engine
	ws     *world.State
}

func NewScriptSystem(engine *scripting.Engine, ws *world.State) *ScriptSystem {
	return &ScriptSystem{engine: engine, ws: ws}
}

func (s *ScriptSystem) Phase() coresys.Phase { return coresys.PhaseScript }

func (s *ScriptSystem) Update(dt time.Duration) {
	s.engine.RunInterval(s.ws.Tick)
}
