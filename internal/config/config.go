package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Network   NetworkConfig   `toml:"network"`
	World     WorldConfig     `toml:"world"`
	Rules     RulesConfig     `toml:"rules"`
	Logging   LoggingConfig   `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Scripting ScriptingConfig `toml:"scripting"`
	Data      DataConfig      `toml:"data"`
}

type ServerConfig struct {
	Name string `toml:"name"`
	Seed int64  `toml:"seed"` // 0 = derive from wall clock at boot
}

type NetworkConfig struct {
	BindAddress       string        `toml:"bind_address"`
	WSPath            string        `toml:"ws_path"`
	TickRateHz        int           `toml:"tick_rate_hz"`
	InputPoll         time.Duration `toml:"input_poll"`
	InQueueSize       int           `toml:"in_queue_size"`
	OutQueueSize      int           `toml:"out_queue_size"`
	MaxPacketsPerTick int           `toml:"max_packets_per_tick"`
	WriteTimeout      time.Duration `toml:"write_timeout"`
	HeartbeatTicks    int           `toml:"heartbeat_ticks"`    // no inbound traffic for this many ticks → close
	StallTicksLimit   int           `toml:"stall_ticks_limit"`  // consecutive full output queues → close
	CompressMinBytes  int           `toml:"compress_min_bytes"` // full snapshots at or above this size are zstd-compressed
}

// TickInterval converts the configured rate to the fixed tick duration.
func (n NetworkConfig) TickInterval() time.Duration {
	hz := n.TickRateHz
	if hz <= 0 {
		hz = 30
	}
	return time.Second / time.Duration(hz)
}

type WorldConfig struct {
	Width             float32 `toml:"width"`
	Height            float32 `toml:"height"`
	MaxPlayers        int     `toml:"max_players"`
	MaxCellsPerPlayer int     `toml:"max_cells_per_player"`
	FoodCap           int     `toml:"food_cap"`
	VirusCount        int     `toml:"virus_count"`
}

type RulesConfig struct {
	AbsorbRatio        float32 `toml:"absorb_ratio"`         // larger eats smaller when larger > smaller*ratio
	StartMass          float32 `toml:"start_mass"`           // mass of a freshly spawned player cell
	MinCellMass        float32 `toml:"min_cell_mass"`        // cells below this are removed
	MinSplitMass       float32 `toml:"min_split_mass"`       // minimum mass for a Split to apply
	MinEjectMass       float32 `toml:"min_eject_mass"`       // cell must keep at least this mass after ejecting
	MergeCooldownTicks int     `toml:"merge_cooldown_ticks"` // same-owner merge lockout after a split
	VirusTriggerRatio  float32 `toml:"virus_trigger_ratio"`  // cell pops when mass > virus_mass*ratio
	VirusMaxFragments  int     `toml:"virus_max_fragments"`
	DecayRate          float32 `toml:"decay_rate"`     // fraction of mass lost per tick above decay_min_mass
	DecayMinMass       float32 `toml:"decay_min_mass"` // anti-turtling threshold
	FoodPerTick        int     `toml:"food_per_tick"`  // respawn budget per tick while below food_cap
	LeaderboardSize    int     `toml:"leaderboard_size"`
	LeaderboardTicks   int     `toml:"leaderboard_ticks"` // push interval
	StatsTicks         int     `toml:"stats_ticks"`       // diagnostics log interval (0 = off)
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	CommandsPerSecond float64 `toml:"commands_per_second"` // token-bucket refill rate per player
	CommandBurst      float64 `toml:"command_burst"`
	PacketsPerSecond  int     `toml:"packets_per_second"` // raw frame limit per session (0 = unlimited)
	InboxCap          int     `toml:"inbox_cap"`          // queued commands per player per tick
}

type ScriptingConfig struct {
	ScriptsDir string `toml:"scripts_dir"` // "" disables the Lua engine
}

type DataConfig struct {
	TuningPath string `toml:"tuning_path"`
}

func Load(path string) (*Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // run on defaults; a missing config file is not an error
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "AgarGo",
			Seed: 0,
		},
		Network: NetworkConfig{
			BindAddress:       "0.0.0.0:14192",
			WSPath:            "/play",
			TickRateHz:        30,
			InputPoll:         5 * time.Millisecond,
			InQueueSize:       128,
			OutQueueSize:      256,
			MaxPacketsPerTick: 32,
			WriteTimeout:      10 * time.Second,
			HeartbeatTicks:    300, // 10s at 30Hz
			StallTicksLimit:   90,
			CompressMinBytes:  512,
		},
		World: WorldConfig{
			Width:             2000,
			Height:            2000,
			MaxPlayers:        64,
			MaxCellsPerPlayer: 16,
			FoodCap:           100,
			VirusCount:        8,
		},
		Rules: RulesConfig{
			AbsorbRatio:        1.25,
			StartMass:          314, // π·r0² with the default radius curve, r0=10
			MinCellMass:        10,
			MinSplitMass:       36,
			MinEjectMass:       16,
			MergeCooldownTicks: 450, // 15s at 30Hz
			VirusTriggerRatio:  2.0,
			VirusMaxFragments:  8,
			DecayRate:          0.0005,
			DecayMinMass:       400,
			FoodPerTick:        2,
			LeaderboardSize:    10,
			LeaderboardTicks:   30,
			StatsTicks:         300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			CommandsPerSecond: 40,
			CommandBurst:      20,
			PacketsPerSecond:  60,
			InboxCap:          8,
		},
		Scripting: ScriptingConfig{
			ScriptsDir: "scripts",
		},
		Data: DataConfig{
			TuningPath: "data/yaml/tuning.yaml",
		},
	}
}
