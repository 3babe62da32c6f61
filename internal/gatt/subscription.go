package gatt

import "encoding/binary"

// Client Characteristic Configuration values, written to the CCCD to enable
// or disable value updates for a characteristic.
const (
	cccdDisabled     uint16 = 0x0000
	cccdNotification uint16 = 0x0001
	cccdIndication   uint16 = 0x0002
)

// encodeCCCD renders a configuration value as the little-endian 2-byte
// payload the descriptor expects on the wire.
func encodeCCCD(v uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return buf
}

// Callback receives notification payloads for a subscribed characteristic.
// Callbacks are invoked synchronously on the transport's delivery goroutine
// while the session lock is held: a callback must not call back into the same
// session and should hand real work off to its own goroutine or channel.
type Callback func(handle uint16, payload []byte)

// ConfigHandleFunc locates the CCCD handle for a characteristic.
type ConfigHandleFunc func(c *Characteristic) uint16

// NextHandleConfig assumes the configuration descriptor immediately follows
// the value handle. This is a convention of the supported backends, not a
// GATT guarantee; backends whose discovery reports real descriptor handles
// should use DiscoveredConfig instead.
func NextHandleConfig(c *Characteristic) uint16 {
	return c.ValueHandle + 1
}

// DiscoveredConfig uses the CCCD handle reported by discovery, falling back
// to the value-handle+1 convention when none was reported.
func DiscoveredConfig(c *Characteristic) uint16 {
	if c.CCCDHandle != 0 {
		return c.CCCDHandle
	}
	return NextHandleConfig(c)
}

// subscription tracks the notification state of a single value handle:
// the configuration value last written to the device and the callbacks
// registered for incoming payloads.
//
// A subscription exists in the session table iff it has a non-zero configured
// value or at least one callback. Individual callbacks cannot be removed;
// Unsubscribe clears all callbacks for the handle at once.
type subscription struct {
	configured uint16
	callbacks  []Callback
}

func (s *subscription) empty() bool {
	return s.configured == cccdDisabled && len(s.callbacks) == 0
}
