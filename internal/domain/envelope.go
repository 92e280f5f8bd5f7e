package domain

import "encoding/json"

// MessageType tags an envelope and selects the shape of its data.
type MessageType string

// Message types sent to the board.
const (
	TypePing           MessageType = "PING"
	TypeWiFiConfig     MessageType = "WIFI_CONFIG"
	TypeLEDControl     MessageType = "LED_CONTROL"
	TypeHapticFeedback MessageType = "HAPTIC_FEEDBACK"
	TypeGameState      MessageType = "GAME_STATE"
	TypeMoveDetected   MessageType = "MOVE_DETECTED"
	TypeDeviceInfo     MessageType = "DEVICE_INFO"
	TypeSetupStatus    MessageType = "SETUP_STATUS"
)

// Message types emitted by the board firmware.
const (
	TypePong        MessageType = "PONG"
	TypeWiFiStatus  MessageType = "WIFI_STATUS"
	TypeError       MessageType = "ERROR"
	TypeMoveConfirm MessageType = "MOVE_CONFIRM"
)

// KnownTypes lists every type with a typed payload, in protocol order.
var KnownTypes = []MessageType{
	TypePing, TypeWiFiConfig, TypeLEDControl, TypeHapticFeedback,
	TypeGameState, TypeMoveDetected, TypeDeviceInfo, TypeSetupStatus,
	TypePong, TypeWiFiStatus, TypeError, TypeMoveConfirm,
}

// IsKnown reports whether t has a typed payload.
func (t MessageType) IsKnown() bool {
	for _, k := range KnownTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Envelope is the unit exchanged with the board. Field order is the wire order.
type Envelope struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id"`
	Timestamp int64       `json:"timestamp"`
	Data      Payload     `json:"data"`
}

// Payload is the type-specific body of an envelope.
type Payload interface {
	MessageType() MessageType
}

// Ping is sent by clients with Message and by the board keep-alive with Timestamp.
type Ping struct {
	Message   string `json:"message,omitempty"`
	Timestamp *int64 `json:"timestamp,omitempty"`
}

// WiFiConfig asks the board to join a network.
type WiFiConfig struct {
	SSID         string `json:"ssid"`
	Password     string `json:"password"`
	SecurityType string `json:"securityType,omitempty"`
}

// LEDControl drives the square LEDs. Intensity is 0-255, Duration in ms.
type LEDControl struct {
	Pattern   string   `json:"pattern"`
	Squares   []string `json:"squares,omitempty"`
	Color     string   `json:"color"`
	Duration  int      `json:"duration"`
	Intensity int      `json:"intensity"`
}

// HapticFeedback drives the vibration motor. Intensity is 0-100, Duration in ms.
type HapticFeedback struct {
	Pattern   string `json:"pattern"`
	Duration  int    `json:"duration"`
	Intensity int    `json:"intensity"`
}

// GameState mirrors the position the board should display.
type GameState struct {
	FEN           string `json:"fen"`
	CurrentPlayer string `json:"currentPlayer"`
	IsCheck       bool   `json:"isCheck"`
	IsCheckmate   bool   `json:"isCheckmate"`
	IsStalemate   bool   `json:"isStalemate"`
	LastMove      string `json:"lastMove"`
}

// MoveDetected reports a physical move. Nil pointers encode as JSON null.
type MoveDetected struct {
	FromSquare     string  `json:"fromSquare"`
	ToSquare       string  `json:"toSquare"`
	PieceType      string  `json:"pieceType"`
	CapturedPiece  *string `json:"capturedPiece"`
	IsPromotion    bool    `json:"isPromotion"`
	PromotionPiece *string `json:"promotionPiece"`
}

// DeviceInfoRequest asks the board to describe itself.
type DeviceInfoRequest struct {
	Request string `json:"request"`
}

// DeviceInfo is the board's self description.
type DeviceInfo struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Status       string   `json:"status"`
	Capabilities []string `json:"capabilities"`
}

// SetupStatus reports provisioning progress.
type SetupStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp *int64 `json:"timestamp,omitempty"`
}

// Pong answers a PING.
type Pong struct {
	OriginalTimestamp int64 `json:"originalTimestamp"`
	ResponseTimestamp int64 `json:"responseTimestamp"`
}

// WiFiStatus reports the outcome of a WIFI_CONFIG.
type WiFiStatus struct {
	Status         string `json:"status"`
	IPAddress      string `json:"ipAddress"`
	SignalStrength int    `json:"signalStrength"`
	ErrorMessage   string `json:"errorMessage"`
}

// ErrorReport is the board's ERROR message.
type ErrorReport struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	Details      string `json:"details,omitempty"`
}

// MoveConfirm acknowledges a MOVE_DETECTED.
type MoveConfirm struct {
	MoveID       string `json:"moveId"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// RawPayload carries data of a type this build does not know about.
type RawPayload struct {
	Type   MessageType     `json:"-"`
	Fields json.RawMessage `json:"-"`
}

// MarshalJSON emits the preserved object verbatim.
func (p RawPayload) MarshalJSON() ([]byte, error) {
	if len(p.Fields) == 0 {
		return []byte("{}"), nil
	}
	return p.Fields, nil
}

func (Ping) MessageType() MessageType              { return TypePing }
func (WiFiConfig) MessageType() MessageType        { return TypeWiFiConfig }
func (LEDControl) MessageType() MessageType        { return TypeLEDControl }
func (HapticFeedback) MessageType() MessageType    { return TypeHapticFeedback }
func (GameState) MessageType() MessageType         { return TypeGameState }
func (MoveDetected) MessageType() MessageType      { return TypeMoveDetected }
func (DeviceInfoRequest) MessageType() MessageType { return TypeDeviceInfo }
func (DeviceInfo) MessageType() MessageType        { return TypeDeviceInfo }
func (SetupStatus) MessageType() MessageType       { return TypeSetupStatus }
func (Pong) MessageType() MessageType              { return TypePong }
func (WiFiStatus) MessageType() MessageType        { return TypeWiFiStatus }
func (ErrorReport) MessageType() MessageType       { return TypeError }
func (MoveConfirm) MessageType() MessageType       { return TypeMoveConfirm }
func (p RawPayload) MessageType() MessageType      { return p.Type }

// Compile-time interface checks.
var (
	_ Payload = Ping{}
	_ Payload = WiFiConfig{}
	_ Payload = LEDControl{}
	_ Payload = HapticFeedback{}
	_ Payload = GameState{}
	_ Payload = MoveDetected{}
	_ Payload = DeviceInfoRequest{}
	_ Payload = DeviceInfo{}
	_ Payload = SetupStatus{}
	_ Payload = Pong{}
	_ Payload = WiFiStatus{}
	_ Payload = ErrorReport{}
	_ Payload = MoveConfirm{}
	_ Payload = RawPayload{}
)

// Board protocol constants shared by the prober and the emulator.
const (
	BLEDeviceName         = "NAOchess Board"
	BLEServiceUUID        = "12345678-1234-1234-1234-123456789ABC"
	BLECharacteristicUUID = "87654321-4321-4321-4321-CBA987654321"
	DefaultHTTPPort       = 8080
)

// Board error codes and status values used on the wire.
const (
	ErrorCodeInvalidMessage = "INVALID_MESSAGE"
	ErrorCodeWiFiFailed     = "WIFI_CONNECTION_FAILED"

	SetupScanning        = "SCANNING"
	SetupConfiguringWiFi = "CONFIGURING_WIFI"
	SetupCompleted       = "COMPLETED"
	SetupFailed          = "FAILED"

	MoveAccepted = "MOVE_ACCEPTED"
)
