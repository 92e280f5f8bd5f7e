package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Board.Port != 8080 {
		t.Errorf("Board.Port = %d, want 8080", cfg.Board.Port)
	}
	if cfg.BLE.DeviceName != "NAOchess Board" {
		t.Errorf("BLE.DeviceName = %q", cfg.BLE.DeviceName)
	}
	if !cfg.Board.Preflight {
		t.Error("preflight should default to on")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
board:
  host: 192.168.1.50
  port: 9090
  check_delay: 250ms
ble:
  scan_timeout: 3s
suite:
  wifi_ssid: HomeNet
emulator:
  reachable_ssids: [HomeNet, Lab]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Board.Host != "192.168.1.50" || cfg.Board.Port != 9090 {
		t.Errorf("board = %+v", cfg.Board)
	}
	if cfg.Board.CheckDelay != 250*time.Millisecond {
		t.Errorf("CheckDelay = %v", cfg.Board.CheckDelay)
	}
	if cfg.BLE.ScanTimeout != 3*time.Second {
		t.Errorf("ScanTimeout = %v", cfg.BLE.ScanTimeout)
	}
	// Untouched fields keep their defaults.
	if cfg.Board.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want default 5s", cfg.Board.Timeout)
	}
	if len(cfg.Emulator.ReachableSSIDs) != 2 {
		t.Errorf("ReachableSSIDs = %v", cfg.Emulator.ReachableSSIDs)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, "board: [unterminated")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadRejectsWorldWritable(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, "board:\n  port: 8080\n")
	if err := os.Chmod(path, 0o666); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "insecure permissions") {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHESSPROBE_BOARD_HOST", "10.0.0.7")
	t.Setenv("CHESSPROBE_BOARD_PORT", "8181")
	t.Setenv("CHESSPROBE_BOARD_CHECK_DELAY", "0s")
	t.Setenv("CHESSPROBE_BREAKER_ENABLED", "true")
	t.Setenv("CHESSPROBE_EMULATOR_REACHABLE_SSIDS", " A , ,B ")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Board.Host != "10.0.0.7" || cfg.Board.Port != 8181 {
		t.Errorf("board = %+v", cfg.Board)
	}
	if cfg.Board.CheckDelay != 0 {
		t.Errorf("CheckDelay = %v, want 0", cfg.Board.CheckDelay)
	}
	if !cfg.Breaker.Enabled {
		t.Error("breaker should be enabled")
	}
	if got := cfg.Emulator.ReachableSSIDs; len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("ReachableSSIDs = %q", got)
	}
}

func TestEnvOverrideIgnoresBadPort(t *testing.T) {
	t.Setenv("CHESSPROBE_BOARD_PORT", "http")
	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.Board.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Board.Port)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CHESSPROBE_SUITE_WIFI_SSID=FromDotEnv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("CHESSPROBE_SUITE_WIFI_SSID") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Suite.WiFiSSID != "FromDotEnv" {
		t.Errorf("WiFiSSID = %q, want FromDotEnv", cfg.Suite.WiFiSSID)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chessprobe.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
