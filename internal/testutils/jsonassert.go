// Package testutils provides JSON and text assertion helpers shared by the
// package tests. Assertions render unified diffs on mismatch instead of the
// usual "not equal" dump, which keeps catalog and CLI output tests readable.
package testutils

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// MustJSON marshals v or panics. Test-only convenience.
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

type JSONAssertOptions struct {
	IgnoreExtraKeys bool     `default:"false"`
	IgnoredFields   []string `default:""`
}

// JSONAsserter compares JSON documents and reports differences via t.Errorf.
type JSONAsserter struct {
	t       *testing.T
	options JSONAssertOptions
}

// NewJSONAsserter creates a new JSONAsserter with default options.
func NewJSONAsserter(t *testing.T) *JSONAsserter {
	opts := JSONAssertOptions{}
	defaults.SetDefaults(&opts)
	return &JSONAsserter{t: t, options: opts}
}

// WithOptions replaces the asserter options.
func (ja *JSONAsserter) WithOptions(opts JSONAssertOptions) *JSONAsserter {
	ja.options = opts
	return ja
}

// Assert compares actualJSON against expectedJSON.
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) {
	ja.t.Helper()
	diff := ja.diff(actualJSON, expectedJSON)
	if diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
	}
}

func (ja *JSONAsserter) diff(actualJSON, expectedJSON string) string {
	var expected, actual map[string]any
	// Wrap top-level arrays so gojsondiff can compare them as objects
	wrappedExpected := fmt.Sprintf(`{"root":%s}`, expectedJSON)
	wrappedActual := fmt.Sprintf(`{"root":%s}`, actualJSON)

	if err := json.Unmarshal([]byte(wrappedExpected), &expected); err != nil {
		return fmt.Sprintf("expected JSON is invalid: %v", err)
	}
	if err := json.Unmarshal([]byte(wrappedActual), &actual); err != nil {
		return fmt.Sprintf("actual JSON is invalid: %v", err)
	}

	for _, field := range ja.options.IgnoredFields {
		stripField(expected, field)
		stripField(actual, field)
	}

	d := gojsondiff.New().CompareObjects(expected, actual)
	if !d.Modified() {
		return ""
	}

	f := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
	})
	out, err := f.Format(d)
	if err != nil {
		return fmt.Sprintf("failed to format JSON diff: %v", err)
	}
	return out
}

// stripField removes a named key recursively from maps and array elements.
func stripField(v any, field string) {
	switch val := v.(type) {
	case map[string]any:
		delete(val, field)
		for _, child := range val {
			stripField(child, field)
		}
	case []any:
		for _, child := range val {
			stripField(child, field)
		}
	}
}
