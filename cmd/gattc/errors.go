package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/gattc/internal/gatt"
)

// FormatUserError converts internal errors into messages suitable for
// end users, stripping wrapping noise where a well-known cause is found.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	case errors.Is(err, gatt.ErrClosed):
		return "session is closed"
	case errors.Is(err, gatt.ErrNotConnected):
		return "device is not connected"
	}

	var nf *gatt.NotFoundError
	if errors.As(err, &nf) {
		return fmt.Sprintf("%s (use 'gattc inspect' to list available services and characteristics)", nf.Error())
	}

	var ue *gatt.UUIDError
	if errors.As(err, &ue) {
		return ue.Error()
	}

	return err.Error()
}
