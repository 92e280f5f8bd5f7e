// Package codec converts between domain envelopes and their UTF-8 JSON wire form.
package codec

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"chessprobe/internal/domain"
)

// Codec encodes outgoing envelopes and decodes incoming ones.
// It is safe for concurrent use.
type Codec struct {
	ids *idSource
}

// Option configures a Codec.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the wall clock used for ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a Codec with its own id session.
func New(opts ...Option) *Codec {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return &Codec{ids: newIDSource(o.now)}
}

// Envelope wraps p with a fresh id and the current timestamp.
func (c *Codec) Envelope(p domain.Payload) (domain.Envelope, error) {
	if p == nil {
		return domain.Envelope{}, domain.NewDomainError("Codec.Envelope", domain.ErrSerialization, "nil payload")
	}
	id, ts, err := c.ids.next()
	if err != nil {
		return domain.Envelope{}, domain.NewDomainError("Codec.Envelope", domain.ErrSerialization, err.Error())
	}
	return domain.Envelope{Type: p.MessageType(), ID: id, Timestamp: ts, Data: normalize(p)}, nil
}

// normalize maps payload values that share a wire form onto one Go value, so
// that an envelope decodes back to exactly what was built. An empty squares
// list is omitted on the wire and decodes as nil.
func normalize(p domain.Payload) domain.Payload {
	if led, ok := p.(domain.LEDControl); ok && led.Squares != nil && len(led.Squares) == 0 {
		led.Squares = nil
		return led
	}
	return p
}

// Encode builds a new envelope around p and serializes it.
func (c *Codec) Encode(p domain.Payload) ([]byte, error) {
	env, err := c.Envelope(p)
	if err != nil {
		return nil, err
	}
	return Marshal(env)
}

// EncodeRaw serializes untyped data under an arbitrary type tag. The data is
// not checked against the type's shape, which lets callers probe how the
// board handles malformed messages.
func (c *Codec) EncodeRaw(mt domain.MessageType, data map[string]interface{}) ([]byte, error) {
	if mt == "" {
		return nil, domain.NewDomainError("Codec.EncodeRaw", domain.ErrSerialization, "empty type")
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	fields, err := json.Marshal(data)
	if err != nil {
		return nil, domain.NewDomainError("Codec.EncodeRaw", domain.ErrSerialization, err.Error())
	}
	return c.Encode(domain.RawPayload{Type: mt, Fields: fields})
}

// Marshal serializes an already built envelope. Values JSON cannot represent,
// such as NaN, fail with ErrSerialization.
func Marshal(env domain.Envelope) ([]byte, error) {
	if env.Data == nil {
		return nil, domain.NewDomainError("Codec.Marshal", domain.ErrSerialization, "nil payload")
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, domain.NewDomainError("Codec.Marshal", domain.ErrSerialization, err.Error())
	}
	return raw, nil
}

// wireEnvelope is the decode-side view with data left undecoded.
type wireEnvelope struct {
	Type      domain.MessageType `json:"type"`
	ID        string             `json:"id"`
	Timestamp int64              `json:"timestamp"`
	Data      json.RawMessage    `json:"data"`
}

// Decode parses bytes into an envelope. Input that is not valid UTF-8, invalid
// JSON, a missing type, or data that does not match a known type's shape fail
// with ErrProtocol. Unknown types are returned with their data preserved as a
// RawPayload.
func Decode(raw []byte) (domain.Envelope, error) {
	if !utf8.Valid(raw) {
		return domain.Envelope{}, domain.NewDomainError("Codec.Decode", domain.ErrProtocol, "invalid UTF-8")
	}
	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Envelope{}, domain.NewDomainError("Codec.Decode", domain.ErrProtocol, "invalid JSON: "+err.Error())
	}
	if w.Type == "" {
		return domain.Envelope{}, domain.NewDomainError("Codec.Decode", domain.ErrProtocol, "missing type")
	}
	env := domain.Envelope{Type: w.Type, ID: w.ID, Timestamp: w.Timestamp}

	if !w.Type.IsKnown() {
		fields := w.Data
		if len(fields) == 0 || string(fields) == "null" {
			fields = json.RawMessage("{}")
		}
		env.Data = domain.RawPayload{Type: w.Type, Fields: fields}
		return env, nil
	}

	p, err := decodePayload(w.Type, w.Data)
	if err != nil {
		return domain.Envelope{}, domain.NewDomainError("Codec.Decode", domain.ErrProtocol, err.Error())
	}
	env.Data = p
	return env, nil
}

func decodePayload(mt domain.MessageType, data json.RawMessage) (domain.Payload, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, fmt.Errorf("%s: missing data", mt)
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%s: data is not an object", mt)
	}

	schema, key := schemaFor(mt, obj)
	if err := schema.Validate(obj); err != nil {
		return nil, fmt.Errorf("%s: schema validation failed: %v", mt, err)
	}

	p := newPayload(key)
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%s: %w", mt, err)
	}
	return derefPayload(p), nil
}

// newPayload returns a pointer to the zero payload for a schema key.
func newPayload(key domain.MessageType) interface{} {
	switch key {
	case domain.TypePing:
		return &domain.Ping{}
	case domain.TypeWiFiConfig:
		return &domain.WiFiConfig{}
	case domain.TypeLEDControl:
		return &domain.LEDControl{}
	case domain.TypeHapticFeedback:
		return &domain.HapticFeedback{}
	case domain.TypeGameState:
		return &domain.GameState{}
	case domain.TypeMoveDetected:
		return &domain.MoveDetected{}
	case domain.TypeDeviceInfo:
		return &domain.DeviceInfoRequest{}
	case deviceInfoReport:
		return &domain.DeviceInfo{}
	case domain.TypeSetupStatus:
		return &domain.SetupStatus{}
	case domain.TypePong:
		return &domain.Pong{}
	case domain.TypeWiFiStatus:
		return &domain.WiFiStatus{}
	case domain.TypeError:
		return &domain.ErrorReport{}
	case domain.TypeMoveConfirm:
		return &domain.MoveConfirm{}
	}
	return nil
}

// derefPayload turns the decode target back into a value payload so that
// decoded envelopes compare equal to the ones that were encoded.
func derefPayload(p interface{}) domain.Payload {
	switch v := p.(type) {
	case *domain.Ping:
		return *v
	case *domain.WiFiConfig:
		return *v
	case *domain.LEDControl:
		return *v
	case *domain.HapticFeedback:
		return *v
	case *domain.GameState:
		return *v
	case *domain.MoveDetected:
		return *v
	case *domain.DeviceInfoRequest:
		return *v
	case *domain.DeviceInfo:
		return *v
	case *domain.SetupStatus:
		return *v
	case *domain.Pong:
		return *v
	case *domain.WiFiStatus:
		return *v
	case *domain.ErrorReport:
		return *v
	case *domain.MoveConfirm:
		return *v
	}
	return nil
}
