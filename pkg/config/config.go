// Package config loads the server's JSON configuration document and applies
// documented defaults for missing keys.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Server holds player-facing server options.
type Server struct {
	Name               string `json:"name"`
	MOTD               string `json:"motd"`
	Host               string `json:"host"`
	Port               uint16 `json:"port"`
	MaxPlayers         int    `json:"max_players"`
	ViewDistance       int    `json:"view_distance"`
	SimulationDistance int    `json:"simulation_distance"`
	Difficulty         string `json:"difficulty"`
	GameMode           string `json:"gamemode"`
	Hardcore           bool   `json:"hardcore"`
	PVP                bool   `json:"pvp"`
	OnlineMode         bool   `json:"online_mode"`
	SpawnProtection    int    `json:"spawn_protection"`
}

// World holds world generation and spawn options.
type World struct {
	Name      string `json:"name"`
	Seed      int64  `json:"seed"`
	Generator string `json:"generator"`
	SpawnX    int    `json:"spawn_x"`
	SpawnY    int    `json:"spawn_y"`
	SpawnZ    int    `json:"spawn_z"`
}

// Performance holds tuning knobs for threads, chunk residency and saves.
type Performance struct {
	IOThreads            int   `json:"io_threads"`
	WorkerThreads        int   `json:"worker_threads"` // 0 = hardware concurrency
	MaxChunksLoaded      int   `json:"max_chunks_loaded"`
	ChunkUnloadTimeout   int64 `json:"chunk_unload_timeout"` // ms
	AutoSaveInterval     int64 `json:"auto_save_interval"`   // ms
	CompressionThreshold int   `json:"compression_threshold"`
	NetworkBufferSize    int   `json:"network_buffer_size"`
}

// Logging configures the log sink.
type Logging struct {
	Level       string `json:"level"`
	File        string `json:"file"`
	Console     bool   `json:"console"`
	MaxFileSize int64  `json:"max_file_size"`
	MaxFiles    int    `json:"max_files"`
}

// Security configures connection admission.
type Security struct {
	IPForwarding          bool  `json:"ip_forwarding"`
	MaxConnectionsPerIP   int   `json:"max_connections_per_ip"`
	ConnectionThrottle    int64 `json:"connection_throttle"` // ms between accepts per IP
	PacketLimitPerSecond  int   `json:"packet_limit_per_second"`
}

// Config is the full server configuration.
type Config struct {
	Server      Server      `json:"server"`
	World       World       `json:"world"`
	Performance Performance `json:"performance"`
	Logging     Logging     `json:"logging"`
	Security    Security    `json:"security"`
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		Server: Server{
			Name:               "High Performance Minecraft Server",
			MOTD:               "A fast Go Minecraft server",
			Host:               "0.0.0.0",
			Port:               25565,
			MaxPlayers:         100,
			ViewDistance:       10,
			SimulationDistance: 10,
			Difficulty:         "normal",
			GameMode:           "survival",
			Hardcore:           false,
			PVP:                true,
			OnlineMode:         false,
			SpawnProtection:    16,
		},
		World: World{
			Name:      "world",
			Seed:      0,
			Generator: "flat",
			SpawnX:    0,
			SpawnY:    65,
			SpawnZ:    0,
		},
		Performance: Performance{
			IOThreads:            4,
			WorkerThreads:        0,
			MaxChunksLoaded:      1000,
			ChunkUnloadTimeout:   300000,
			AutoSaveInterval:     300000,
			CompressionThreshold: 256,
			NetworkBufferSize:    8192,
		},
		Logging: Logging{
			Level:       "info",
			File:        "server.log",
			Console:     true,
			MaxFileSize: 10485760,
			MaxFiles:    5,
		},
		Security: Security{
			IPForwarding:         false,
			MaxConnectionsPerIP:  3,
			ConnectionThrottle:   4000,
			PacketLimitPerSecond: 500,
		},
	}
}

// schema describes the recognised option tree. Validation catches type
// mistakes before they silently fall back to defaults.
const schema = `{
  "type": "object",
  "properties": {
    "server": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "motd": {"type": "string"},
        "host": {"type": "string"},
        "port": {"type": "integer", "minimum": 0, "maximum": 65535},
        "max_players": {"type": "integer", "minimum": 0},
        "view_distance": {"type": "integer", "minimum": 2, "maximum": 32},
        "simulation_distance": {"type": "integer", "minimum": 2, "maximum": 32},
        "difficulty": {"type": "string"},
        "gamemode": {"enum": ["survival", "creative", "adventure", "spectator"]},
        "hardcore": {"type": "boolean"},
        "pvp": {"type": "boolean"},
        "online_mode": {"type": "boolean"},
        "spawn_protection": {"type": "integer", "minimum": 0}
      }
    },
    "world": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "seed": {"type": "integer"},
        "generator": {"type": "string"},
        "spawn_x": {"type": "integer"},
        "spawn_y": {"type": "integer"},
        "spawn_z": {"type": "integer"}
      }
    },
    "performance": {
      "type": "object",
      "properties": {
        "io_threads": {"type": "integer", "minimum": 1},
        "worker_threads": {"type": "integer", "minimum": 0},
        "max_chunks_loaded": {"type": "integer", "minimum": 1},
        "chunk_unload_timeout": {"type": "integer", "minimum": 0},
        "auto_save_interval": {"type": "integer", "minimum": 0},
        "compression_threshold": {"type": "integer"},
        "network_buffer_size": {"type": "integer", "minimum": 256}
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"enum": ["trace", "debug", "info", "warn", "warning", "error", "fatal"]},
        "file": {"type": "string"},
        "console": {"type": "boolean"},
        "max_file_size": {"type": "integer", "minimum": 0},
        "max_files": {"type": "integer", "minimum": 1}
      }
    },
    "security": {
      "type": "object",
      "properties": {
        "ip_forwarding": {"type": "boolean"},
        "max_connections_per_ip": {"type": "integer", "minimum": 0},
        "connection_throttle": {"type": "integer", "minimum": 0},
        "packet_limit_per_second": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

var compiled = jsonschema.MustCompileString("config.schema.json", schema)

// Load reads the configuration at path. A missing file writes the defaults
// to disk and returns them; a present file is schema-validated and decoded
// on top of the defaults so absent keys keep their documented values.
func Load(path string) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := cfg.Save(path); werr != nil {
			return nil, fmt.Errorf("write default config: %w", werr)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := Validate(raw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks a raw JSON document against the config schema.
func Validate(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// WorkerThreads resolves performance.worker_threads, where 0 means hardware
// concurrency.
func (c *Config) WorkerThreads() int {
	if c.Performance.WorkerThreads <= 0 {
		return runtime.NumCPU()
	}
	return c.Performance.WorkerThreads
}

// Address returns the host:port the acceptor binds.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ClampedViewDistance bounds a client-requested view distance by the server
// limit and the protocol range [2, 32].
func (c *Config) ClampedViewDistance(requested int) int {
	d := requested
	if d > c.Server.ViewDistance {
		d = c.Server.ViewDistance
	}
	if d < 2 {
		d = 2
	}
	if d > 32 {
		d = 32
	}
	return d
}
