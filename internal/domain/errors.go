package domain

import (
	"errors"
	"fmt"
)

// Discovery sentinels. Either one aborts a run before any check executes.
var (
	ErrDeviceNotFound         = fmt.Errorf("device not found")
	ErrCharacteristicNotFound = fmt.Errorf("characteristic not found")
	ErrDeviceUnreachable      = fmt.Errorf("device unreachable")
)

// Per-request sentinels. These are recovered at the check boundary.
var (
	ErrTransport     = fmt.Errorf("transport error")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrNotConnected  = fmt.Errorf("not connected")
	ErrUnsupported   = fmt.Errorf("operation not supported")
	ErrSerialization = fmt.Errorf("serialization error")
	ErrProtocol      = fmt.Errorf("protocol error")
	ErrCheckFailed   = fmt.Errorf("check failed")
	ErrInvalidInput  = fmt.Errorf("invalid input")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Codec.Decode")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsFatal reports whether err must abort a run instead of failing one check.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceNotFound) ||
		errors.Is(err, ErrCharacteristicNotFound) ||
		errors.Is(err, ErrDeviceUnreachable)
}

// ErrorCode is a machine-parseable error category used in reports and logs.
type ErrorCode string

const (
	CodeUnknown                ErrorCode = "UNKNOWN"
	CodeDeviceNotFound         ErrorCode = "DEVICE_NOT_FOUND"
	CodeCharacteristicNotFound ErrorCode = "CHARACTERISTIC_NOT_FOUND"
	CodeDeviceUnreachable      ErrorCode = "DEVICE_UNREACHABLE"
	CodeTransport              ErrorCode = "TRANSPORT"
	CodeTimeout                ErrorCode = "TIMEOUT"
	CodeNotConnected           ErrorCode = "NOT_CONNECTED"
	CodeUnsupported            ErrorCode = "UNSUPPORTED"
	CodeSerialization          ErrorCode = "SERIALIZATION"
	CodeProtocol               ErrorCode = "PROTOCOL"
	CodeCheckFailed            ErrorCode = "CHECK_FAILED"
	CodeInvalidInput           ErrorCode = "INVALID_INPUT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
// More specific sentinels are listed in errorCodeOrder before general ones.
var errorCodeMap = map[error]ErrorCode{
	ErrDeviceNotFound:         CodeDeviceNotFound,
	ErrCharacteristicNotFound: CodeCharacteristicNotFound,
	ErrDeviceUnreachable:      CodeDeviceUnreachable,
	ErrTransport:              CodeTransport,
	ErrTimeout:                CodeTimeout,
	ErrNotConnected:           CodeNotConnected,
	ErrUnsupported:            CodeUnsupported,
	ErrSerialization:          CodeSerialization,
	ErrProtocol:               CodeProtocol,
	ErrCheckFailed:            CodeCheckFailed,
	ErrInvalidInput:           CodeInvalidInput,
}

// errorCodeOrder fixes the lookup order so a timeout wrapped in a transport
// error reports TIMEOUT rather than depending on map iteration.
var errorCodeOrder = []error{
	ErrDeviceNotFound,
	ErrCharacteristicNotFound,
	ErrDeviceUnreachable,
	ErrTimeout,
	ErrNotConnected,
	ErrUnsupported,
	ErrSerialization,
	ErrProtocol,
	ErrInvalidInput,
	ErrTransport,
	ErrCheckFailed,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	for _, sentinel := range errorCodeOrder {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
