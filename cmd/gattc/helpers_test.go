package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/gattc/internal/gatt"
)

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "numeric version gets v prefix", input: "1.2.3", expected: "v1.2.3"},
		{name: "already prefixed stays unchanged", input: "v1.2.3", expected: "v1.2.3"},
		{name: "dev build stays unchanged", input: "dev", expected: "dev"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatVersion(tt.input))
		})
	}
}

func TestParseCSVUUIDs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "single uuid", input: "2a37", expected: []string{"2a37"}},
		{name: "multiple uuids", input: "2a37,2a38", expected: []string{"2a37", "2a38"}},
		{name: "whitespace trimmed", input: "2a37, 2a38 , 2a19", expected: []string{"2a37", "2a38", "2a19"}},
		{name: "empty elements dropped", input: "2a37,,2a38,", expected: []string{"2a37", "2a38"}},
		{name: "empty input", input: "", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseCSVUUIDs(tt.input))
		})
	}
}

func TestParseHandle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected uint16
		wantErr  bool
	}{
		{name: "hex handle", input: "0x0010", expected: 0x0010},
		{name: "decimal handle", input: "16", expected: 16},
		{name: "max handle", input: "0xffff", expected: 0xffff},
		{name: "zero rejected", input: "0", wantErr: true},
		{name: "out of range", input: "0x10000", wantErr: true},
		{name: "garbage", input: "abc!", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := parseHandle(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, h)
		})
	}
}

func TestFormatUserError(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Equal(t, "", FormatUserError(nil))
	})

	t.Run("not found error points at inspect", func(t *testing.T) {
		err := &gatt.NotFoundError{Resource: "characteristic", UUIDs: []string{"2a19"}}
		msg := FormatUserError(err)
		assert.Contains(t, msg, "2a19")
		assert.Contains(t, msg, "gattc inspect")
	})

	t.Run("closed session", func(t *testing.T) {
		assert.Equal(t, "session is closed", FormatUserError(gatt.ErrClosed))
	})

	t.Run("plain error passes through", func(t *testing.T) {
		assert.Equal(t, "boom", FormatUserError(errors.New("boom")))
	})
}
