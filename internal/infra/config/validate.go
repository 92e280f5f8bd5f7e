package config

import (
	"fmt"
	"strings"
)

// ValidationError collects multiple configuration problems.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(e.Errors, "\n  - ")
}

// HasErrors reports whether any problem was recorded.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// Add records a problem.
func (e *ValidationError) Add(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for invalid values and returns all problems at once.
func Validate(cfg *Config) error {
	ve := &ValidationError{}

	validateBoard(cfg, ve)
	validateBLE(cfg, ve)
	validateSuite(cfg, ve)
	validateBreaker(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateEmulator(cfg, ve)

	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateBoard(cfg *Config, ve *ValidationError) {
	if cfg.Board.Port <= 0 || cfg.Board.Port > 65535 {
		ve.Add("board.port must be in 1..65535, got %d", cfg.Board.Port)
	}
	if cfg.Board.Timeout <= 0 {
		ve.Add("board.timeout must be > 0")
	}
	if cfg.Board.CheckDelay < 0 {
		ve.Add("board.check_delay must be >= 0")
	}
	if cfg.Board.SendInterval < 0 {
		ve.Add("board.send_interval must be >= 0")
	}
	if cfg.Board.Watch < 0 {
		ve.Add("board.watch must be >= 0")
	}
}

func validateBLE(cfg *Config, ve *ValidationError) {
	if cfg.BLE.DeviceName == "" {
		ve.Add("ble.device_name must not be empty")
	}
	if cfg.BLE.ServiceUUID == "" {
		ve.Add("ble.service_uuid must not be empty")
	}
	if cfg.BLE.CharacteristicUUID == "" {
		ve.Add("ble.characteristic_uuid must not be empty")
	}
	if cfg.BLE.ScanTimeout <= 0 {
		ve.Add("ble.scan_timeout must be > 0")
	}
	if cfg.BLE.GreetingWindow < 0 || cfg.BLE.ReplyWindow < 0 || cfg.BLE.WiFiWindow < 0 {
		ve.Add("ble listen windows must be >= 0")
	}
}

func validateSuite(cfg *Config, ve *ValidationError) {
	if cfg.Suite.WiFiSSID == "" {
		ve.Add("suite.wifi_ssid must not be empty")
	}
	if IsEncrypted(cfg.Suite.WiFiPassword) {
		ve.Add("suite.wifi_password is still encrypted")
	}
}

func validateBreaker(cfg *Config, ve *ValidationError) {
	if !cfg.Breaker.Enabled {
		return
	}
	if cfg.Breaker.MaxFailures == 0 {
		ve.Add("breaker.max_failures must be > 0 when breaker is enabled")
	}
	if cfg.Breaker.Timeout <= 0 {
		ve.Add("breaker.timeout must be > 0 when breaker is enabled")
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level must be one of debug, info, warn, error; got %q", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "text", "json":
	default:
		ve.Add("logger.format must be text or json, got %q", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "stderr", "noop", "":
	case "file":
		if cfg.Tracer.Output == "" {
			ve.Add("tracer.output is required when tracer.exporter is file")
		}
	default:
		ve.Add("tracer.exporter must be stdout, stderr, file or noop, got %q", cfg.Tracer.Exporter)
	}
}

func validateEmulator(cfg *Config, ve *ValidationError) {
	if cfg.Emulator.Addr == "" {
		ve.Add("emulator.addr must not be empty")
	}
	if cfg.Emulator.PingInterval < 0 {
		ve.Add("emulator.ping_interval must be >= 0")
	}
	if cfg.Emulator.Version == "" {
		ve.Add("emulator.version must not be empty")
	}
}
