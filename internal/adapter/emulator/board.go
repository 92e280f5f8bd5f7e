// Package emulator implements the device side of the board protocol so the
// prober can be exercised without hardware.
package emulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chessprobe/internal/adapter/codec"
	"chessprobe/internal/domain"
)

// Board defaults mirror the firmware's power-on state.
const (
	DefaultVersion = "1.0.0"
	DefaultFEN     = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	DefaultPlayer  = "white"
	DefaultIP      = "192.168.4.2"
)

// Capabilities advertised in DEVICE_INFO.
var Capabilities = []string{"LED_CONTROL", "HAPTIC_FEEDBACK", "MOVE_DETECTION", "GAME_STATE"}

// Config configures an emulated board.
type Config struct {
	Name    string
	Version string
	// IPAddress is reported after a successful WIFI_CONFIG.
	IPAddress      string
	SignalStrength int
	// ReachableSSIDs limits which networks WIFI_CONFIG can join. Empty means all.
	ReachableSSIDs []string
	// PingInterval enables keep-alive PINGs from Run. Zero disables them.
	PingInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = domain.BLEDeviceName
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.IPAddress == "" {
		c.IPAddress = DefaultIP
	}
	if c.SignalStrength == 0 {
		c.SignalStrength = -55
	}
}

// Board is an in-memory chessboard controller. Every envelope it emits is
// fanned out to all subscribers.
type Board struct {
	cfg    Config
	codec  *codec.Codec
	logger *slog.Logger
	boot   time.Time

	mu            sync.Mutex
	game          domain.GameState
	wifiConnected bool
	ssid          string
	bleConnected  bool
	received      []domain.Envelope
	subs          map[int]func([]byte)
	nextSub       int
}

// NewBoard creates a board in its power-on state.
func NewBoard(cfg Config, logger *slog.Logger) *Board {
	cfg.applyDefaults()
	return &Board{
		cfg:    cfg,
		codec:  codec.New(),
		logger: logger,
		boot:   time.Now(),
		game: domain.GameState{
			FEN:           DefaultFEN,
			CurrentPlayer: DefaultPlayer,
		},
		subs: make(map[int]func([]byte)),
	}
}

// Subscribe registers fn for every emitted envelope and returns a cancel func.
func (b *Board) Subscribe(fn func([]byte)) func() {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// GameState returns the current game state.
func (b *Board) GameState() domain.GameState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.game
}

// Received returns every envelope the board accepted, in arrival order.
func (b *Board) Received() []domain.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Envelope{}, b.received...)
}

// SetBluetoothConnected records the BLE link state shown on /status.
func (b *Board) SetBluetoothConnected(v bool) {
	b.mu.Lock()
	b.bleConnected = v
	b.mu.Unlock()
}

// Greet emits what the firmware sends when a central connects.
func (b *Board) Greet() []domain.Envelope {
	return []domain.Envelope{
		b.emit(b.deviceInfo()),
		b.emit(domain.SetupStatus{Status: domain.SetupScanning, Message: "Chessboard ready for connection", Timestamp: b.uptime()}),
	}
}

// Run emits keep-alive PINGs until ctx is cancelled.
func (b *Board) Run(ctx context.Context) {
	if b.cfg.PingInterval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(b.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.emit(domain.Ping{Timestamp: b.uptime()})
		}
	}
}

// Handle processes one inbound message and returns the envelopes it emitted.
func (b *Board) Handle(raw []byte) []domain.Envelope {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		b.logger.Warn("JSON parsing failed", "error", err)
		return []domain.Envelope{b.errorReport(domain.ErrorCodeInvalidMessage, "JSON parsing failed", err.Error())}
	}
	for _, field := range []string{"type", "id", "data"} {
		if _, ok := top[field]; !ok {
			b.logger.Warn("message rejected", "missing", field)
			return []domain.Envelope{b.errorReport(domain.ErrorCodeInvalidMessage, "Message missing "+field+" field", "")}
		}
	}

	env, err := codec.Decode(raw)
	if err != nil {
		b.logger.Warn("message rejected", "error", err)
		return []domain.Envelope{b.errorReport(domain.ErrorCodeInvalidMessage, "Invalid message data", err.Error())}
	}

	b.mu.Lock()
	b.received = append(b.received, env)
	b.mu.Unlock()
	b.logger.Info("message received", "type", env.Type, "id", env.ID)

	switch p := env.Data.(type) {
	case domain.WiFiConfig:
		return b.handleWiFiConfig(p)
	case domain.GameState:
		b.mu.Lock()
		lastMove := b.game.LastMove
		b.game = p
		if p.LastMove == "" {
			b.game.LastMove = lastMove
		}
		b.mu.Unlock()
		b.logger.Info("game state updated", "fen", p.FEN)
		return nil
	case domain.LEDControl:
		b.logger.Info("LED control", "pattern", p.Pattern, "color", p.Color, "squares", strings.Join(p.Squares, ","))
		return nil
	case domain.HapticFeedback:
		b.logger.Info("haptic feedback", "pattern", p.Pattern, "duration", p.Duration)
		return nil
	case domain.Ping:
		original := env.Timestamp
		if p.Timestamp != nil {
			original = *p.Timestamp
		}
		return []domain.Envelope{b.emit(domain.Pong{OriginalTimestamp: original, ResponseTimestamp: *b.uptime()})}
	case domain.MoveDetected:
		b.mu.Lock()
		b.game.LastMove = p.FromSquare + p.ToSquare
		b.mu.Unlock()
		b.logger.Info("move detected", "from", p.FromSquare, "to", p.ToSquare, "piece", p.PieceType)
		return []domain.Envelope{b.emit(domain.MoveConfirm{MoveID: env.ID, Status: domain.MoveAccepted})}
	case domain.DeviceInfoRequest:
		return []domain.Envelope{b.emit(b.deviceInfo())}
	case domain.SetupStatus:
		b.logger.Info("setup status", "status", p.Status, "message", p.Message)
		return nil
	case domain.DeviceInfo:
		b.logger.Info("peer device info", "name", p.Name, "version", p.Version)
		return nil
	default:
		b.logger.Warn("unknown message type", "type", env.Type)
		return []domain.Envelope{b.errorReport(domain.ErrorCodeInvalidMessage, fmt.Sprintf("Unknown message type: %s", env.Type), "")}
	}
}

func (b *Board) handleWiFiConfig(p domain.WiFiConfig) []domain.Envelope {
	out := []domain.Envelope{
		b.emit(domain.SetupStatus{Status: domain.SetupConfiguringWiFi, Message: "Connecting to " + p.SSID, Timestamp: b.uptime()}),
	}

	if !b.reachable(p.SSID) {
		b.mu.Lock()
		b.wifiConnected = false
		b.mu.Unlock()
		b.logger.Warn("wifi connection failed", "ssid", p.SSID)
		return append(out,
			b.emit(domain.WiFiStatus{Status: "FAILED", ErrorMessage: "Connection timeout"}),
			b.emit(domain.SetupStatus{Status: domain.SetupFailed, Message: "WiFi connection failed", Timestamp: b.uptime()}),
			b.errorReport(domain.ErrorCodeWiFiFailed, "Failed to connect to WiFi network", ""),
		)
	}

	b.mu.Lock()
	b.wifiConnected = true
	b.ssid = p.SSID
	b.mu.Unlock()
	b.logger.Info("wifi connected", "ssid", p.SSID, "ip", b.cfg.IPAddress)
	return append(out,
		b.emit(domain.WiFiStatus{Status: "CONNECTED", IPAddress: b.cfg.IPAddress, SignalStrength: b.cfg.SignalStrength}),
		b.emit(domain.SetupStatus{Status: domain.SetupCompleted, Message: "Setup completed successfully! IP: " + b.cfg.IPAddress, Timestamp: b.uptime()}),
	)
}

func (b *Board) reachable(ssid string) bool {
	if len(b.cfg.ReachableSSIDs) == 0 {
		return true
	}
	for _, s := range b.cfg.ReachableSSIDs {
		if s == ssid {
			return true
		}
	}
	return false
}

func (b *Board) deviceInfo() domain.DeviceInfo {
	return domain.DeviceInfo{
		Name:         b.cfg.Name,
		Version:      b.cfg.Version,
		Status:       "READY",
		Capabilities: append([]string{}, Capabilities...),
	}
}

func (b *Board) errorReport(code, msg, details string) domain.Envelope {
	return b.emit(domain.ErrorReport{ErrorCode: code, ErrorMessage: msg, Details: details})
}

// uptime is the firmware's millis(): ms since boot.
func (b *Board) uptime() *int64 {
	ms := time.Since(b.boot).Milliseconds()
	return &ms
}

// GameEnvelope wraps the current game state as a GAME_STATE envelope.
func (b *Board) GameEnvelope() (domain.Envelope, error) {
	return b.codec.Envelope(b.GameState())
}

// StatusText renders the plain-text /status page.
func (b *Board) StatusText(port int) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	yesNo := func(v bool) string {
		if v {
			return "Yes"
		}
		return "No"
	}
	var sb strings.Builder
	sb.WriteString("NAOchess Chessboard Status\n")
	sb.WriteString("==========================\n")
	sb.WriteString("WiFi Connected: " + yesNo(b.wifiConnected) + "\n")
	if b.wifiConnected {
		sb.WriteString("SSID: " + b.ssid + "\n")
		sb.WriteString("IP Address: " + b.cfg.IPAddress + "\n")
		sb.WriteString(fmt.Sprintf("Port: %d\n", port))
	}
	sb.WriteString("Bluetooth Connected: " + yesNo(b.bleConnected) + "\n")
	sb.WriteString("Current FEN: " + b.game.FEN + "\n")
	sb.WriteString("Current Player: " + b.game.CurrentPlayer + "\n")
	sb.WriteString("Last Move: " + b.game.LastMove + "\n")
	sb.WriteString("Check: " + yesNo(b.game.IsCheck) + "\n")
	sb.WriteString("Checkmate: " + yesNo(b.game.IsCheckmate) + "\n")
	sb.WriteString("Stalemate: " + yesNo(b.game.IsStalemate) + "\n")
	return sb.String()
}

// emit stamps p, fans it out to subscribers and returns the envelope.
// Encoding failures are logged; typed payloads cannot produce them.
func (b *Board) emit(p domain.Payload) domain.Envelope {
	env, err := b.codec.Envelope(p)
	if err != nil {
		b.logger.Error("envelope failed", "type", p.MessageType(), "error", err)
		return domain.Envelope{Type: p.MessageType(), Data: p}
	}
	raw, err := codec.Marshal(env)
	if err != nil {
		b.logger.Error("encode failed", "type", env.Type, "error", err)
		return env
	}

	b.mu.Lock()
	sinks := make([]func([]byte), 0, len(b.subs))
	for _, fn := range b.subs {
		sinks = append(sinks, fn)
	}
	b.mu.Unlock()

	for _, fn := range sinks {
		fn(raw)
	}
	return env
}
