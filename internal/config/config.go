// Package config loads and validates vsmcore's node configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vsmcore/vsmcore/internal/bus"
	"github.com/vsmcore/vsmcore/internal/infra/store"
	"github.com/vsmcore/vsmcore/internal/mcpclient"
	"github.com/vsmcore/vsmcore/internal/variety"
	"github.com/vsmcore/vsmcore/internal/vsm"
)

// Config holds all node configuration.
type Config struct {
	Node      NodeConfig       `toml:"node"`
	API       APIConfig        `toml:"api"`
	Store     StoreConfig      `toml:"store"`
	Bus       BusConfig        `toml:"bus"`
	CRDT      CRDTConfig       `toml:"crdt"`
	Runtime   RuntimeConfig    `toml:"runtime"`
	Variety   VarietyConfig    `toml:"variety"`
	Servers   []ServerConfig   `toml:"server"`
	Logging   LoggingConfig    `toml:"logging"`
	Telemetry TelemetryConfig  `toml:"telemetry"`
}

// NodeConfig identifies this node and drives the hybrid logical clock.
type NodeConfig struct {
	ID     string `toml:"id"`
	Region string `toml:"region"`
}

// APIConfig controls the status HTTP surface.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StoreConfig controls the tiered context store.
type StoreConfig struct {
	HotLimit        int    `toml:"hot_limit"`
	WarmLimit       int    `toml:"warm_limit"`
	AccessThreshold int    `toml:"access_threshold"`
	DecayIntervalMs int    `toml:"decay_interval_ms"`
	ColdPath        string `toml:"cold_path"`
	RegistryPath    string `toml:"registry_path"`
}

// BusConfig controls the publish/subscribe fabric.
type BusConfig struct {
	MailboxSize           int    `toml:"mailbox_size"`
	BrokerURL             string `toml:"broker_url"`
	HeartbeatIntervalMs   int    `toml:"heartbeat_interval_ms"`
	PrefetchCount         int    `toml:"prefetch_count"`
	ReconnectBaseDelayMs  int    `toml:"reconnect_base_delay_ms"`
	ReconnectMaxDelayMs   int    `toml:"reconnect_max_delay_ms"`
}

// CRDTConfig controls the delta-CRDT context store's anti-entropy loop.
type CRDTConfig struct {
	AntiEntropyIntervalMs int `toml:"anti_entropy_interval_ms"`
}

// RuntimeConfig controls the subsystem actor runtime.
type RuntimeConfig struct {
	ScanningIntervalMs int64 `toml:"scanning_interval_ms"`
	RestartBaseDelayMs int   `toml:"restart_base_delay_ms"`
	RestartMaxDelayMs  int   `toml:"restart_max_delay_ms"`
	MaxRestarts        int   `toml:"max_restarts"`
}

// VarietyConfig controls the variety/gap controller.
type VarietyConfig struct {
	TickIntervalMs   int     `toml:"tick_interval_ms"`
	Autonomous       bool    `toml:"autonomous"`
	CriticalStep     int     `toml:"critical_step"`
	HighStep         int     `toml:"high_step"`
	CriticalGap      float64 `toml:"critical_gap"`
	HighGap          float64 `toml:"high_gap"`
	EntropyThreshold float64 `toml:"entropy_threshold"`
}

// ServerConfig addresses one MCP capability server the node may connect
// to for external tool acquisition.
type ServerConfig struct {
	Name      string   `toml:"name"`
	Transport string   `toml:"transport"` // "stdio", "tcp", or "websocket"
	Command   string   `toml:"command"`
	Args      []string `toml:"args"`
	Address   string   `toml:"address"`
	URL       string   `toml:"url"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level     string `toml:"level"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxFiles  int    `toml:"max_files"`
}

// TelemetryConfig controls observability.
type TelemetryConfig struct {
	Enabled        bool `toml:"enabled"`
	Prometheus     bool `toml:"prometheus"`
	PrometheusPort int  `toml:"prometheus_port"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	home := vsmcoreHome()
	return Config{
		Node: NodeConfig{Region: "auto"},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 7421,
		},
		Store: StoreConfig{
			HotLimit:        1000,
			WarmLimit:       10000,
			AccessThreshold: 10,
			DecayIntervalMs: 60_000,
			ColdPath:        filepath.Join(home, "context.db"),
			RegistryPath:    filepath.Join(home, "registry.db"),
		},
		Bus: BusConfig{
			MailboxSize:          10_000,
			HeartbeatIntervalMs:  10_000,
			PrefetchCount:        32,
			ReconnectBaseDelayMs: 500,
			ReconnectMaxDelayMs:  30_000,
		},
		CRDT: CRDTConfig{
			AntiEntropyIntervalMs: 30_000,
		},
		Runtime: RuntimeConfig{
			ScanningIntervalMs: 0,
			RestartBaseDelayMs: 1_000,
			RestartMaxDelayMs:  30_000,
		},
		Variety: VarietyConfig{
			TickIntervalMs:   30_000,
			Autonomous:       false,
			CriticalStep:     4,
			HighStep:         2,
			CriticalGap:      0.7,
			HighGap:          0.5,
			EntropyThreshold: 4.5,
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      filepath.Join(home, "vsmcore.log"),
			MaxSizeMB: 50,
			MaxFiles:  5,
		},
		Telemetry: TelemetryConfig{
			Enabled:        true,
			Prometheus:     false,
			PrometheusPort: 9090,
		},
	}
}

// LoadConfig reads config from ~/.vsmcore/config.toml, falling back to
// defaults when no file exists.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(vsmcoreHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to ~/.vsmcore/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(vsmcoreHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// vsmcoreHome returns the node's data directory.
func vsmcoreHome() string {
	if env := os.Getenv("VSMCORE_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".vsmcore")
}

// VsmcoreHome is exported for use by other packages.
func VsmcoreHome() string {
	return vsmcoreHome()
}

// StoreConfig converts this node's store settings into store.Config.
func (c Config) StoreConfig() store.Config {
	return store.Config{
		HotLimit:        c.Store.HotLimit,
		WarmLimit:       c.Store.WarmLimit,
		AccessThreshold: c.Store.AccessThreshold,
		DecayInterval:   time.Duration(c.Store.DecayIntervalMs) * time.Millisecond,
		ColdPath:        c.Store.ColdPath,
	}
}

// BusConfig converts this node's bus settings into bus.Config.
func (c Config) BusConfig() bus.Config {
	return bus.Config{
		MailboxSize:        c.Bus.MailboxSize,
		BrokerURL:          c.Bus.BrokerURL,
		HeartbeatInterval:  time.Duration(c.Bus.HeartbeatIntervalMs) * time.Millisecond,
		PrefetchCount:      c.Bus.PrefetchCount,
		ReconnectBaseDelay: time.Duration(c.Bus.ReconnectBaseDelayMs) * time.Millisecond,
		ReconnectMaxDelay:  time.Duration(c.Bus.ReconnectMaxDelayMs) * time.Millisecond,
	}
}

// AntiEntropyInterval converts this node's CRDT anti-entropy tunable.
func (c Config) AntiEntropyInterval() time.Duration {
	return time.Duration(c.CRDT.AntiEntropyIntervalMs) * time.Millisecond
}

// RestartPolicy converts this node's runtime settings into a
// vsm.RestartPolicy for the subsystem actor supervisor.
func (c Config) RestartPolicy() vsm.RestartPolicy {
	return vsm.RestartPolicy{
		BaseDelay:   time.Duration(c.Runtime.RestartBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.Runtime.RestartMaxDelayMs) * time.Millisecond,
		MaxRestarts: c.Runtime.MaxRestarts,
	}
}

// VarietyConfig converts this node's variety settings into
// variety.Config.
func (c Config) VarietyConfig() variety.Config {
	return variety.Config{
		TickInterval: time.Duration(c.Variety.TickIntervalMs) * time.Millisecond,
		Thresholds: variety.Thresholds{
			CriticalGap:      c.Variety.CriticalGap,
			HighGap:          c.Variety.HighGap,
			EntropyThreshold: c.Variety.EntropyThreshold,
		},
		Autonomous:   c.Variety.Autonomous,
		CriticalStep: c.Variety.CriticalStep,
		HighStep:     c.Variety.HighStep,
	}
}

// MCPServerConfigs converts this node's configured servers into
// mcpclient.ServerConfig values.
func (c Config) MCPServerConfigs() []mcpclient.ServerConfig {
	out := make([]mcpclient.ServerConfig, len(c.Servers))
	for i, s := range c.Servers {
		out[i] = mcpclient.ServerConfig{
			Name:      s.Name,
			Transport: mcpclient.TransportKind(s.Transport),
			Command:   s.Command,
			Args:      s.Args,
			Address:   s.Address,
			URL:       s.URL,
		}
	}
	return out
}
