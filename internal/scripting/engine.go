package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/agargo/server/internal/world"
)

// APIVersion is exposed to scripts as API_VERSION so a script can refuse to
// run against an incompatible server.
const APIVersion = 1

// Engine embeds a single Lua VM for world bootstrap and scheduled world
// events. Scripts register interval hooks at load time; the script system
// fires them from the tick goroutine, so scripts see a consistent world and
// may use the same spawn API as Go code.
type Engine struct {
	vm  *lua.LState
	ws  *world.State
	log *zap.Logger

	api       *lua.LTable
	intervals []intervalHook
}

type intervalHook struct {
	every uint32
	fn    *lua.LFunction
	src   string
}

func NewEngine(dir string, ws *world.State, log *zap.Logger) (*Engine, error) {
	e := &Engine{
		vm:  lua.NewState(),
		ws:  ws,
		log: log,
	}
	e.registerAPI()
	if err := e.loadDir(dir); err != nil {
		e.vm.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) Close() {
	e.vm.Close()
}

// loadDir executes every .lua file in the directory, sorted by name so load
// order is stable.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			e.log.Info("腳本目錄不存在，略過", zap.String("dir", dir))
			return nil
		}
		return fmt.Errorf("read scripts dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, ent := range entries {
		if !ent.IsDir() && strings.HasSuffix(ent.Name(), ".lua") {
			names = append(names, ent.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load script %s: %w", path, err)
		}
		e.log.Info("腳本已載入", zap.String("script", name))
	}
	return nil
}

// registerAPI installs the globals scripts see: register_interval for
// scheduling, and the world table passed to every hook.
func (e *Engine) registerAPI() {
	vm := e.vm
	vm.SetGlobal("API_VERSION", lua.LNumber(APIVersion))

	vm.SetGlobal("register_interval", vm.NewFunction(func(L *lua.LState) int {
		every := L.CheckInt(1)
		fn := L.CheckFunction(2)
		if every <= 0 {
			L.ArgError(1, "interval must be > 0 ticks")
			return 0
		}
		e.intervals = append(e.intervals, intervalHook{
			every: uint32(every),
			fn:    fn,
			src:   fn.Proto.SourceName,
		})
		return 0
	}))

	api := vm.NewTable()
	api.RawSetString("spawn_food", vm.NewFunction(func(L *lua.LState) int {
		n := L.CheckInt(1)
		for i := 0; i < n && e.ws.Stores.Food.Len() < e.ws.Cfg.World.FoodCap; i++ {
			x, y := e.ws.RandPos()
			e.ws.SpawnFood(x, y, e.ws.RandFoodMass())
		}
		return 0
	}))
	api.RawSetString("spawn_virus", vm.NewFunction(func(L *lua.LState) int {
		x, y := e.ws.RandPos()
		if L.GetTop() >= 2 {
			x = float32(L.CheckNumber(1))
			y = float32(L.CheckNumber(2))
		}
		id := e.ws.SpawnVirus(x, y)
		L.Push(lua.LNumber(id))
		return 1
	}))
	api.RawSetString("food_count", vm.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(e.ws.Stores.Food.Len()))
		return 1
	}))
	api.RawSetString("virus_count", vm.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(e.ws.Stores.Viruses.Len()))
		return 1
	}))
	api.RawSetString("player_count", vm.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(e.ws.PlayerCount()))
		return 1
	}))
	api.RawSetString("tick", vm.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(e.ws.Tick))
		return 1
	}))
	api.RawSetString("world_width", lua.LNumber(e.ws.Cfg.World.Width))
	api.RawSetString("world_height", lua.LNumber(e.ws.Cfg.World.Height))
	e.api = api
}

// WorldInit calls the optional world_init(world) hook once at boot, after
// the built-in seeding.
func (e *Engine) WorldInit() error {
	fn := e.vm.GetGlobal("world_init")
	if fn == lua.LNil {
		return nil
	}
	return e.vm.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, e.api)
}

// RunInterval fires every hook whose interval divides the tick. A failing
// hook is logged and skipped; one bad script must not stall the world.
func (e *Engine) RunInterval(tick uint32) {
	for _, h := range e.intervals {
		if tick%h.every != 0 {
			continue
		}
		if err := e.vm.CallByParam(lua.P{Fn: h.fn, NRet: 0, Protect: true}, e.api); err != nil {
			e.log.Error("腳本執行失敗",
				zap.String("script", h.src),
				zap.Uint32("tick", tick),
				zap.Error(err),
			)
		}
	}
}

// HookCount reports registered interval hooks, for boot diagnostics.
func (e *Engine) HookCount() int {
	return len(e.intervals)
}
