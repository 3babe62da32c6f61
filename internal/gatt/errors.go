package gatt

import (
	"errors"
	"fmt"
)

// UUIDError represents a malformed UUID supplied at the public API edge.
// It is returned before any catalog lookup or transport I/O happens.
type UUIDError struct {
	Input  string
	Reason string
}

func (e *UUIDError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid UUID %q", e.Input)
	}
	return fmt.Sprintf("invalid UUID %q: %s", e.Input, e.Reason)
}

// NotFoundError represents a GATT resource that could not be resolved,
// including after a catalog refresh.
type NotFoundError struct {
	Resource string   // "service", "characteristic", "handle"
	UUIDs    []string // [charUUID] or [serviceUUID, charUUID]
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// Is allows errors.Is to match any NotFoundError regardless of UUIDs
// when compared against a zero NotFoundError of the same resource.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return t.Resource == "" || t.Resource == e.Resource
}

// Session state errors
var (
	ErrClosed       = errors.New("session closed")
	ErrNoTransport  = errors.New("no transport configured")
	ErrNotConnected = errors.New("device not connected")
)

// IsNotFound reports whether err is a NotFoundError of any resource kind.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsInvalidUUID reports whether err is a UUIDError.
func IsInvalidUUID(err error) bool {
	var ue *UUIDError
	return errors.As(err, &ue)
}
