package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Codec.Decode", ErrProtocol, "missing type")
	want := "Codec.Decode: missing type: protocol error"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("BLE.Connect", ErrDeviceNotFound, "")
	want := "BLE.Connect: device not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("HTTP.Send", ErrTransport, "status 500")
	if !errors.Is(err, ErrTransport) {
		t.Error("errors.Is should match ErrTransport")
	}
}

func TestDomainErrorAs(t *testing.T) {
	err := NewDomainError("Codec.Encode", ErrSerialization, "NaN")
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("errors.As should match *DomainError")
	}
	if de.Op != "Codec.Encode" {
		t.Errorf("Op = %q, want %q", de.Op, "Codec.Encode")
	}
}

// --- ErrorCode tests ---

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeDeviceNotFound, ErrorCodeOf(ErrDeviceNotFound))
	assert.Equal(t, CodeCharacteristicNotFound, ErrorCodeOf(ErrCharacteristicNotFound))
	assert.Equal(t, CodeTransport, ErrorCodeOf(ErrTransport))
	assert.Equal(t, CodeProtocol, ErrorCodeOf(ErrProtocol))
}

func TestErrorCodeOf_WrappedError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", ErrSerialization)
	assert.Equal(t, CodeSerialization, ErrorCodeOf(wrapped))
}

func TestErrorCodeOf_TimeoutBeatsTransport(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrTransport, ErrTimeout)
	assert.Equal(t, CodeTimeout, ErrorCodeOf(err))
}

func TestErrorCodeOf_UnknownError(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(fmt.Errorf("some random error")))
}

func TestErrorCodeOf_Nil(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
}

func TestDomainError_Code(t *testing.T) {
	err := NewDomainError("BLE.Connect", ErrCharacteristicNotFound, "87654321")
	assert.Equal(t, CodeCharacteristicNotFound, err.Code())
}

func TestAllSentinelsHaveCodes(t *testing.T) {
	require.NotEmpty(t, errorCodeMap)
	for sentinel, code := range errorCodeMap {
		assert.NotEmpty(t, code, "sentinel %v has empty code", sentinel)
		assert.NotEqual(t, CodeUnknown, code, "sentinel %v maps to UNKNOWN", sentinel)
	}
	assert.Len(t, errorCodeOrder, len(errorCodeMap))
}

// --- IsFatal tests ---

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrDeviceNotFound))
	assert.True(t, IsFatal(WrapOp("BLE.Connect", ErrCharacteristicNotFound)))
	assert.True(t, IsFatal(NewDomainError("HTTP.Ping", ErrDeviceUnreachable, "10.0.0.2")))
	assert.False(t, IsFatal(ErrTransport))
	assert.False(t, IsFatal(nil))
}

// --- WrapOp tests ---

func TestWrapOp_Nil(t *testing.T) {
	assert.Nil(t, WrapOp("anything", nil))
}

func TestWrapOp_Format(t *testing.T) {
	err := WrapOp("HTTP.Send", ErrTimeout)
	assert.Equal(t, "HTTP.Send: operation timed out", err.Error())
}

func TestWrapOp_PreservesErrorCode(t *testing.T) {
	err := WrapOp("HTTP.Send", ErrNotConnected)
	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.Equal(t, CodeNotConnected, ErrorCodeOf(err))
}

func TestWrapOp_Chain(t *testing.T) {
	inner := WrapOp("inner", ErrUnsupported)
	outer := WrapOp("outer", inner)
	assert.Equal(t, "outer: inner: operation not supported", outer.Error())
	assert.True(t, errors.Is(outer, ErrUnsupported))
}
