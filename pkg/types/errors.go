package types

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of error classifications the state store,
// event bus, and dispatcher use to report failures. gRPC-facing code
// translates a Kind to a status code; nothing in the domain layer imports
// grpc/codes directly.
type ErrorKind string

const (
	ErrValidation     ErrorKind = "VALIDATION"
	ErrUnknownTarget  ErrorKind = "UNKNOWN_TARGET"
	ErrStale          ErrorKind = "STALE"
	ErrTerminalLocked ErrorKind = "TERMINAL_LOCKED"
	ErrCongested      ErrorKind = "PROXY_CONGESTED"
	ErrNoCapacity     ErrorKind = "NO_CAPACITY"
	ErrTimeout        ErrorKind = "TIMEOUT"
	ErrTransport      ErrorKind = "TRANSPORT"
)

// FabricError is the error type every domain-layer failure is returned as.
type FabricError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *FabricError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FabricError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, &FabricError{Kind: X}) match any FabricError
// carrying the same Kind, regardless of Message/Cause.
func (e *FabricError) Is(target error) bool {
	other, ok := target.(*FabricError)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// NewError constructs a FabricError of the given kind.
func NewError(kind ErrorKind, format string, args ...interface{}) *FabricError {
	return &FabricError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError constructs a FabricError of the given kind wrapping cause.
func WrapError(kind ErrorKind, cause error, format string, args ...interface{}) *FabricError {
	return &FabricError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the ErrorKind from err if it is (or wraps) a
// *FabricError, and reports ok=false otherwise.
func KindOf(err error) (ErrorKind, bool) {
	var fe *FabricError
	if !errors.As(err, &fe) {
		return "", false
	}
	return fe.Kind, true
}
