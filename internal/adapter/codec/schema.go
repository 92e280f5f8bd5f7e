package codec

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"chessprobe/internal/domain"
)

// deviceInfoReport keys the schema for the board's DEVICE_INFO answer, which
// shares its type tag with the client request.
const deviceInfoReport domain.MessageType = "DEVICE_INFO#report"

// payloadSchemas holds one JSON Schema per typed payload. Extra properties are
// allowed so newer firmware can add fields without breaking older probers.
var payloadSchemas = map[domain.MessageType]string{
	domain.TypePing: `{
		"type": "object",
		"properties": {
			"message": {"type": "string"},
			"timestamp": {"type": "integer"}
		}
	}`,
	domain.TypeWiFiConfig: `{
		"type": "object",
		"required": ["ssid", "password"],
		"properties": {
			"ssid": {"type": "string"},
			"password": {"type": "string"},
			"securityType": {"type": "string"}
		}
	}`,
	domain.TypeLEDControl: `{
		"type": "object",
		"required": ["pattern", "color", "duration", "intensity"],
		"properties": {
			"pattern": {"type": "string"},
			"squares": {"type": "array", "items": {"type": "string"}},
			"color": {"type": "string"},
			"duration": {"type": "integer", "minimum": 0},
			"intensity": {"type": "integer", "minimum": 0, "maximum": 255}
		}
	}`,
	domain.TypeHapticFeedback: `{
		"type": "object",
		"required": ["pattern", "duration", "intensity"],
		"properties": {
			"pattern": {"type": "string"},
			"duration": {"type": "integer", "minimum": 0},
			"intensity": {"type": "integer", "minimum": 0, "maximum": 100}
		}
	}`,
	domain.TypeGameState: `{
		"type": "object",
		"required": ["fen", "currentPlayer", "isCheck", "isCheckmate", "isStalemate", "lastMove"],
		"properties": {
			"fen": {"type": "string"},
			"currentPlayer": {"type": "string"},
			"isCheck": {"type": "boolean"},
			"isCheckmate": {"type": "boolean"},
			"isStalemate": {"type": "boolean"},
			"lastMove": {"type": "string"}
		}
	}`,
	domain.TypeMoveDetected: `{
		"type": "object",
		"required": ["fromSquare", "toSquare", "pieceType", "capturedPiece", "isPromotion", "promotionPiece"],
		"properties": {
			"fromSquare": {"type": "string"},
			"toSquare": {"type": "string"},
			"pieceType": {"type": "string"},
			"capturedPiece": {"type": ["string", "null"]},
			"isPromotion": {"type": "boolean"},
			"promotionPiece": {"type": ["string", "null"]}
		}
	}`,
	domain.TypeDeviceInfo: `{
		"type": "object",
		"required": ["request"],
		"properties": {
			"request": {"const": "DEVICE_INFO"}
		}
	}`,
	deviceInfoReport: `{
		"type": "object",
		"required": ["name", "version"],
		"properties": {
			"name": {"type": "string"},
			"version": {"type": "string"},
			"status": {"type": "string"},
			"capabilities": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	domain.TypeSetupStatus: `{
		"type": "object",
		"required": ["status", "message"],
		"properties": {
			"status": {"type": "string"},
			"message": {"type": "string"},
			"timestamp": {"type": "integer"}
		}
	}`,
	domain.TypePong: `{
		"type": "object",
		"required": ["originalTimestamp", "responseTimestamp"],
		"properties": {
			"originalTimestamp": {"type": "integer"},
			"responseTimestamp": {"type": "integer"}
		}
	}`,
	domain.TypeWiFiStatus: `{
		"type": "object",
		"required": ["status"],
		"properties": {
			"status": {"type": "string"},
			"ipAddress": {"type": "string"},
			"signalStrength": {"type": "integer"},
			"errorMessage": {"type": "string"}
		}
	}`,
	domain.TypeError: `{
		"type": "object",
		"required": ["errorCode"],
		"properties": {
			"errorCode": {"type": "string"},
			"errorMessage": {"type": "string"},
			"details": {"type": "string"}
		}
	}`,
	domain.TypeMoveConfirm: `{
		"type": "object",
		"required": ["status"],
		"properties": {
			"moveId": {"type": "string"},
			"status": {"type": "string"},
			"errorMessage": {"type": "string"}
		}
	}`,
}

// compiledSchemas is built once at package load. The schemas are constants, so
// a compile failure is a programming error.
var compiledSchemas = mustCompileSchemas(payloadSchemas)

func mustCompileSchemas(src map[domain.MessageType]string) map[domain.MessageType]*jsonschema.Schema {
	out := make(map[domain.MessageType]*jsonschema.Schema, len(src))
	for mt, raw := range src {
		s, err := compileSchema(mt, raw)
		if err != nil {
			panic(err)
		}
		out[mt] = s
	}
	return out
}

func compileSchema(mt domain.MessageType, raw string) (*jsonschema.Schema, error) {
	name := strings.ToLower(strings.ReplaceAll(string(mt), "#", "_")) + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader([]byte(raw))); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", mt, err)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", mt, err)
	}
	return compiled, nil
}

// schemaFor picks the schema for a decoded data object. DEVICE_INFO is a
// request when it carries a "request" key and a report otherwise.
func schemaFor(mt domain.MessageType, data map[string]interface{}) (*jsonschema.Schema, domain.MessageType) {
	key := mt
	if mt == domain.TypeDeviceInfo {
		if _, ok := data["request"]; !ok {
			key = deviceInfoReport
		}
	}
	return compiledSchemas[key], key
}
