package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agargo/server/internal/config"
	"github.com/agargo/server/internal/core/event"
	coresys "github.com/agargo/server/internal/core/system"
	"github.com/agargo/server/internal/data"
	"github.com/agargo/server/internal/handler"
	gonet "github.com/agargo/server/internal/net"
	"github.com/agargo/server/internal/net/packet"
	"github.com/agargo/server/internal/scripting"
	"github.com/agargo/server/internal/system"
	"github.com/agargo/server/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m             AgarGo  v0.1.0                \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      吞噬競技場 · Go 遊戲伺服器           \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m伺服器:\033[0m %s\n\n", serverName)
}

func printSection(title string) {
	// Use rune count for CJK width calculation (each CJK char = 2 columns)
	displayWidth := 0
	for _, r := range title {
		if r > 0x7F {
			displayWidth += 2
		} else {
			displayWidth++
		}
	}
	lineLen := 46 - displayWidth - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	// Use display width for CJK characters
	displayWidth := 0
	for _, r := range label {
		if r > 0x7F {
			displayWidth += 2
		} else {
			displayWidth++
		}
	}
	dotsLen := 42 - displayWidth - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("AGARSRV_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name)

	// 3. Load tuning table and build the world
	printSection("資料載入")

	tun, err := data.LoadTuning(cfg.Data.TuningPath)
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	printOK("物理調校表載入完成")

	seed := cfg.Server.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Info("世界種子", zap.Int64("seed", seed))

	worldState := world.NewState(cfg, tun, seed)
	seedWorld(worldState)
	printStat("食物", worldState.Stores.Food.Len())
	printStat("病毒", worldState.Stores.Viruses.Len())

	// 3a. Lua scripting engine (optional)
	var luaEngine *scripting.Engine
	if cfg.Scripting.ScriptsDir != "" {
		luaEngine, err = scripting.NewEngine(cfg.Scripting.ScriptsDir, worldState, log)
		if err != nil {
			return fmt.Errorf("lua engine: %w", err)
		}
		defer luaEngine.Close()
		if err := luaEngine.WorldInit(); err != nil {
			return fmt.Errorf("lua world_init: %w", err)
		}
		printStat("腳本排程", luaEngine.HookCount())
	}
	fmt.Println()

	// 4. Event bus and subscriptions
	bus := event.NewBus()

	// 5. Packet handler registry
	pktReg := packet.NewRegistry(log)
	deps := &handler.Deps{
		World: worldState,
		Cfg:   cfg,
		Tun:   tun,
		Bus:   bus,
		Log:   log,
	}
	handler.RegisterAll(pktReg, deps)

	// 6. Network server
	netServer, err := gonet.NewServer(cfg.Network, cfg.RateLimit, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go netServer.Serve()

	sessions := gonet.NewSessionStore()
	subscribeEvents(bus, sessions, log)

	// 7. Systems, in tick-phase order
	runner := coresys.NewRunner()
	runner.Register(system.NewEventSystem(bus))
	runner.Register(system.NewInputSystem(netServer, sessions, pktReg, worldState, bus, cfg.Network.MaxPacketsPerTick, log))
	runner.Register(system.NewCommandSystem(worldState, cfg, tun, log))
	runner.Register(system.NewIntegrateSystem(worldState, cfg, tun))
	runner.Register(system.NewIndexSystem(worldState))
	runner.Register(system.NewCollisionSystem(worldState, cfg, tun, bus, log))
	runner.Register(system.NewGrowthSystem(worldState, cfg))
	if luaEngine != nil {
		runner.Register(system.NewScriptSystem(luaEngine, worldState))
	}
	runner.Register(system.NewCleanupSystem(worldState, cfg, bus, log))
	runner.Register(system.NewSyncSystem(worldState, cfg, tun, log))
	runner.Register(system.NewOutputSystem(sessions, worldState, cfg, log))

	// 8. Game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	tickInterval := cfg.Network.TickInterval()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	// Fast input poll between ticks: handlers only validate and enqueue,
	// so running the input phase alone off-tick is safe.
	var pollCh <-chan time.Time
	if cfg.Network.InputPoll > 0 && cfg.Network.InputPoll < tickInterval {
		poller := time.NewTicker(cfg.Network.InputPoll)
		defer poller.Stop()
		pollCh = poller.C
	}

	printSection("伺服器就緒")
	printReady(fmt.Sprintf("監聽位址 ws://%s%s", netServer.Addr().String(), cfg.Network.WSPath))
	printReady(fmt.Sprintf("遊戲迴圈啟動 (tick: %s)", tickInterval))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(tickInterval)
		case <-pollCh:
			runner.TickPhase(coresys.PhaseInput, 0)
		case sig := <-shutdownCh:
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			netServer.Shutdown()
			sessions.ForEach(func(s *gonet.Session) { s.Close() })
			log.Info("伺服器已停止")
			return nil
		}
	}
}

// seedWorld fills the arena with the initial food and virus population.
func seedWorld(ws *world.State) {
	for i := 0; i < ws.Cfg.World.FoodCap; i++ {
		x, y := ws.RandPos()
		ws.SpawnFood(x, y, ws.RandFoodMass())
	}
	for i := 0; i < ws.Cfg.World.VirusCount; i++ {
		x, y := ws.RandPos()
		ws.SpawnVirus(x, y)
	}
}

// subscribeEvents wires the cross-cutting event consumers: the death notice
// frame and diagnostics logging. Handlers run on the tick goroutine at the
// Events phase, one tick after the emit.
func subscribeEvents(bus *event.Bus, sessions *gonet.SessionStore, log *zap.Logger) {
	event.Subscribe(bus, func(ev event.PlayerDied) {
		if sess := sessions.Get(ev.SessionID); sess != nil && !sess.IsClosed() {
			sess.Send(handler.BuildDead())
		}
	})
	event.Subscribe(bus, func(ev event.PlayerJoined) {
		log.Info("玩家加入世界",
			zap.Uint32("player", ev.PlayerID),
			zap.String("name", ev.Name),
		)
	})
	event.Subscribe(bus, func(ev event.PlayerDisconnected) {
		log.Debug("玩家斷線事件", zap.Uint32("player", ev.PlayerID))
	})
	event.Subscribe(bus, func(ev event.CellAbsorbed) {
		log.Debug("細胞被吞噬",
			zap.Uint64("winner", uint64(ev.Winner)),
			zap.Uint64("loser", uint64(ev.Loser)),
			zap.Float64("mass", float64(ev.Mass)),
		)
	})
	event.Subscribe(bus, func(ev event.VirusPopped) {
		log.Debug("病毒爆裂事件", zap.Int("fragments", ev.Fragments))
	})
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
