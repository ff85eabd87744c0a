package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 7421 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 7421)
	}
	if cfg.Variety.CriticalGap != 0.7 {
		t.Errorf("Variety.CriticalGap = %v, want 0.7", cfg.Variety.CriticalGap)
	}
	if cfg.Bus.MailboxSize != 10_000 {
		t.Errorf("Bus.MailboxSize = %d, want 10000", cfg.Bus.MailboxSize)
	}
	if cfg.Store.RegistryPath == "" {
		t.Error("Store.RegistryPath is empty, want a default home-relative path")
	}
}

func TestLoadConfig_FallsBackToDefaultsWhenFileAbsent(t *testing.T) {
	t.Setenv("VSMCORE_HOME", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != 7421 {
		t.Errorf("API.Port = %d, want default 7421", cfg.API.Port)
	}
}

func TestSaveAndLoadConfig_RoundTrips(t *testing.T) {
	t.Setenv("VSMCORE_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.Node.ID = "node-a"
	cfg.API.Port = 9999
	cfg.Servers = []ServerConfig{{Name: "search", Transport: "stdio", Command: "search-mcp"}}

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	got, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got.Node.ID != "node-a" {
		t.Errorf("Node.ID = %q, want %q", got.Node.ID, "node-a")
	}
	if got.API.Port != 9999 {
		t.Errorf("API.Port = %d, want 9999", got.API.Port)
	}
	if len(got.Servers) != 1 || got.Servers[0].Name != "search" {
		t.Errorf("Servers = %+v, want one server named search", got.Servers)
	}
}

func TestVsmcoreHome_RespectsEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VSMCORE_HOME", dir)
	if got := VsmcoreHome(); got != dir {
		t.Errorf("VsmcoreHome() = %q, want %q", got, dir)
	}
}

func TestStoreConfig_ConvertsMillisecondsToDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.DecayIntervalMs = 2000
	if got := cfg.StoreConfig().DecayInterval; got != 2*time.Second {
		t.Errorf("DecayInterval = %v, want 2s", got)
	}
}

func TestMCPServerConfigs_ConvertsEachEntry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Servers = []ServerConfig{
		{Name: "a", Transport: "tcp", Address: "localhost:9000"},
	}
	out := cfg.MCPServerConfigs()
	if len(out) != 1 || out[0].Name != "a" || out[0].Address != "localhost:9000" {
		t.Errorf("MCPServerConfigs() = %+v", out)
	}
}

func TestSaveConfig_CreatesParentDirectory(t *testing.T) {
	base := t.TempDir()
	t.Setenv("VSMCORE_HOME", filepath.Join(base, "nested", "dir"))

	if err := SaveConfig(DefaultConfig()); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "nested", "dir", "config.toml")); err != nil {
		t.Errorf("expected config file to exist: %v", err)
	}
}
