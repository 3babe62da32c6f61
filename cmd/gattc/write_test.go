package main

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

// WriteTestSuite provides testify/suite for proper test isolation
type WriteTestSuite struct {
	suite.Suite
	originalWriteHex bool
}

func (suite *WriteTestSuite) SetupTest() {
	suite.originalWriteHex = writeHex
}

func (suite *WriteTestSuite) TearDownTest() {
	writeHex = suite.originalWriteHex
}

func TestWriteTestSuite(t *testing.T) {
	suite.Run(t, new(WriteTestSuite))
}

func (suite *WriteTestSuite) TestParseWriteData_ValidHex() {
	tests := []struct {
		name     string
		input    string
		expected []byte
	}{
		{
			name:     "plain hex",
			input:    "0102FF",
			expected: []byte{0x01, 0x02, 0xFF},
		},
		{
			name:     "hex with spaces",
			input:    "01 02 FF",
			expected: []byte{0x01, 0x02, 0xFF},
		},
		{
			name:     "hex with colons",
			input:    "01:02:FF",
			expected: []byte{0x01, 0x02, 0xFF},
		},
		{
			name:     "hex with dashes",
			input:    "01-02-FF",
			expected: []byte{0x01, 0x02, 0xFF},
		},
		{
			name:     "hex with 0x prefixes",
			input:    "0x01 0x02 0xFF",
			expected: []byte{0x01, 0x02, 0xFF},
		},
		{
			name:     "lowercase hex",
			input:    "ab cd",
			expected: []byte{0xAB, 0xCD},
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			writeHex = true

			result, err := parseWriteData(tt.input)
			suite.Assert().NoError(err, "MUST parse valid hex data")
			suite.Assert().Equal(tt.expected, result, "decoded bytes MUST match expected")
		})
	}
}

func (suite *WriteTestSuite) TestParseWriteData_InvalidHex() {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "non-hex characters",
			input: "ZZZZ",
		},
		{
			name:  "odd length hex",
			input: "0",
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			writeHex = true

			result, err := parseWriteData(tt.input)
			suite.Assert().Error(err, "MUST fail on invalid hex")
			suite.Assert().Nil(result, "result MUST be nil on error")
			suite.Assert().Contains(err.Error(), "invalid hex data", "error MUST indicate hex failure")
		})
	}
}

func (suite *WriteTestSuite) TestParseWriteData_RawStringDefault() {
	writeHex = false

	result, err := parseWriteData("high")
	suite.Require().NoError(err)
	suite.Assert().Equal([]byte("high"), result, "raw mode MUST pass the string bytes through")
}
