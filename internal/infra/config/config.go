package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"chessprobe/internal/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for chessprobe.
type Config struct {
	Board    BoardConfig    `yaml:"board"`
	BLE      BLEConfig      `yaml:"ble"`
	Suite    SuiteConfig    `yaml:"suite"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
	Emulator EmulatorConfig `yaml:"emulator"`
}

// BoardConfig holds the HTTP side of the board.
type BoardConfig struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
	// CheckDelay is the pause between consecutive checks.
	CheckDelay time.Duration `yaml:"check_delay"`
	// SendInterval is the minimum spacing between two sends. 0 = unpaced.
	SendInterval time.Duration `yaml:"send_interval"`
	// Preflight pings the board before any check and aborts when it is down.
	Preflight bool `yaml:"preflight"`
	// Watch listens on /events for this long after each send. 0 = off.
	Watch time.Duration `yaml:"watch"`
}

// BLEConfig holds the Bluetooth side of the board.
type BLEConfig struct {
	DeviceName         string        `yaml:"device_name"`
	ServiceUUID        string        `yaml:"service_uuid"`
	CharacteristicUUID string        `yaml:"characteristic_uuid"`
	ScanTimeout        time.Duration `yaml:"scan_timeout"`
	GreetingWindow     time.Duration `yaml:"greeting_window"`
	ReplyWindow        time.Duration `yaml:"reply_window"`
	WiFiWindow         time.Duration `yaml:"wifi_window"`
}

// SuiteConfig holds values sent by the checks.
type SuiteConfig struct {
	WiFiSSID string `yaml:"wifi_ssid"`
	// WiFiPassword may be "enc:..." (see EncryptValue); it is decrypted with
	// CHESSPROBE_CONFIG_KEY at load time.
	WiFiPassword string `yaml:"wifi_password"`
	WiFiSecurity string `yaml:"wifi_security"`
}

// BreakerConfig configures the optional send circuit breaker.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stderr, stdout, discard, or a file path
}

// TracerConfig holds OpenTelemetry settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout, stderr, file, noop
	Output   string `yaml:"output"`   // file path when exporter is "file"
}

// EmulatorConfig configures `chessprobe emulate`.
type EmulatorConfig struct {
	Addr           string        `yaml:"addr"`
	Name           string        `yaml:"name"`
	Version        string        `yaml:"version"`
	IPAddress      string        `yaml:"ip_address"`
	ReachableSSIDs []string      `yaml:"reachable_ssids"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	Advertise      bool          `yaml:"advertise"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Board: BoardConfig{
			Port:       domain.DefaultHTTPPort,
			Timeout:    5 * time.Second,
			CheckDelay: time.Second,
			Preflight:  true,
		},
		BLE: BLEConfig{
			DeviceName:         domain.BLEDeviceName,
			ServiceUUID:        domain.BLEServiceUUID,
			CharacteristicUUID: domain.BLECharacteristicUUID,
			ScanTimeout:        10 * time.Second,
			GreetingWindow:     5 * time.Second,
			ReplyWindow:        3 * time.Second,
			WiFiWindow:         5 * time.Second,
		},
		Suite: SuiteConfig{
			WiFiSSID:     "TestNetwork",
			WiFiPassword: "testpassword",
			WiFiSecurity: "WPA2",
		},
		Breaker: BreakerConfig{
			MaxFailures: 3,
			Timeout:     15 * time.Second,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
		Emulator: EmulatorConfig{
			Addr:         ":8080",
			Version:      "1.0.0",
			IPAddress:    "192.168.4.2",
			PingInterval: 30 * time.Second,
		},
	}
}

// Load reads the YAML config at path. A missing file is not an error: the
// defaults are used. A .env file in the working directory, when present,
// is loaded into the process environment before overrides are applied.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	// Real environment variables win over .env entries.
	_ = godotenv.Load()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			absPath, err := filepath.Abs(path)
			if err != nil {
				return nil, fmt.Errorf("resolve config path: %w", err)
			}
			if err := validatePermissions(absPath); err != nil {
				return nil, err
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if err := decryptSecrets(cfg, os.Getenv("CHESSPROBE_CONFIG_KEY")); err != nil {
		return nil, fmt.Errorf("decrypt secrets: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps CHESSPROBE_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHESSPROBE_BOARD_HOST"); v != "" {
		cfg.Board.Host = v
	}
	if v := os.Getenv("CHESSPROBE_BOARD_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Board.Port = n
		}
	}
	if v := os.Getenv("CHESSPROBE_BOARD_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Board.Timeout = d
		}
	}
	if v := os.Getenv("CHESSPROBE_BOARD_CHECK_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Board.CheckDelay = d
		}
	}
	if v := os.Getenv("CHESSPROBE_BOARD_PREFLIGHT"); v != "" {
		cfg.Board.Preflight = v == "true"
	}
	if v := os.Getenv("CHESSPROBE_BLE_DEVICE_NAME"); v != "" {
		cfg.BLE.DeviceName = v
	}
	if v := os.Getenv("CHESSPROBE_BLE_SCAN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.BLE.ScanTimeout = d
		}
	}
	if v := os.Getenv("CHESSPROBE_SUITE_WIFI_SSID"); v != "" {
		cfg.Suite.WiFiSSID = v
	}
	if v := os.Getenv("CHESSPROBE_SUITE_WIFI_PASSWORD"); v != "" {
		cfg.Suite.WiFiPassword = v
	}
	if v := os.Getenv("CHESSPROBE_BREAKER_ENABLED"); v == "true" {
		cfg.Breaker.Enabled = true
	}
	if v := os.Getenv("CHESSPROBE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("CHESSPROBE_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("CHESSPROBE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("CHESSPROBE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("CHESSPROBE_EMULATOR_ADDR"); v != "" {
		cfg.Emulator.Addr = v
	}
	if v := os.Getenv("CHESSPROBE_EMULATOR_REACHABLE_SSIDS"); v != "" {
		cfg.Emulator.ReachableSSIDs = splitAndTrim(v, ",")
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element,
// dropping empty ones.
func splitAndTrim(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
