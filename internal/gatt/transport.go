package gatt

import "context"

// Transport is the backend boundary of a GATT client session. Implementations
// own the physical link: connect/disconnect, service discovery and raw
// attribute I/O. The session never touches the wire directly.
//
// Notification delivery runs the other way: the backend must invoke the
// session's HandleNotification for every notification or indication it
// receives on the link.
type Transport interface {
	// Discover performs a full service/characteristic discovery round and
	// returns a fresh catalog snapshot. May be slow.
	Discover(ctx context.Context) (*ServiceCatalog, error)

	// WriteHandle writes value to the attribute with the given handle.
	// When withResponse is false the write is not acknowledged.
	WriteHandle(ctx context.Context, handle uint16, value []byte, withResponse bool) error

	// ReadHandle reads the attribute with the given handle.
	ReadHandle(ctx context.Context, handle uint16) ([]byte, error)

	// RSSI returns the current received signal strength in dBm,
	// or 0 when the backend cannot report it.
	RSSI() int

	// Close tears down the physical connection.
	Close() error
}

// NotificationSink is the session-side entry point a Transport delivers
// notifications into. *Session implements it.
type NotificationSink interface {
	HandleNotification(handle uint16, payload []byte)
}
