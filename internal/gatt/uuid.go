package gatt

import (
	"github.com/srg/gattc/internal/bledb"
)

// UUID is a normalized BLE UUID: lowercase hex without dashes, with UUIDs on
// the Bluetooth SIG base collapsed to their 16-bit short form. Parsing happens
// once at the public API boundary; internal logic only ever compares UUIDs in
// this form, so equality is plain string equality.
type UUID string

// ParseUUID validates and normalizes a UUID string.
// Accepted inputs: 16-bit ("180d", "0x180d"), 32-bit ("12345678") and 128-bit
// forms with or without dashes or braces, in any case.
func ParseUUID(s string) (UUID, error) {
	if s == "" {
		return "", &UUIDError{Input: s, Reason: "empty"}
	}
	n := bledb.NormalizeUUID(s)
	switch len(n) {
	case 4, 8, 32:
	default:
		return "", &UUIDError{Input: s, Reason: "must be 16, 32 or 128 bits"}
	}
	for _, r := range n {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", &UUIDError{Input: s, Reason: "not a hex string"}
		}
	}
	return UUID(n), nil
}

// MustUUID is like ParseUUID but panics on malformed input.
// Intended for constants and tests.
func MustUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

func (u UUID) String() string {
	return string(u)
}

// Short returns a truncated form for display purposes.
func (u UUID) Short() string {
	if len(u) > 8 {
		return string(u[:8])
	}
	return string(u)
}
