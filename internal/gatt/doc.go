// Package gatt implements a backend-agnostic GATT client session for
// Bluetooth Low Energy devices.
//
// A Session lets callers address characteristics by UUID instead of raw
// attribute handles and supports:
//   - UUID resolution against a cached service catalog with lazy re-discovery
//   - Notification/indication subscriptions with idempotent CCCD writes
//   - Thread-safe fan-out of incoming notifications to registered callbacks
//   - UUID-addressed characteristic read/write convenience wrappers
//
// The physical link is abstracted behind the Transport interface; see the
// goble subpackage for the go-ble backed implementation.
package gatt
