package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// parseCSVUUIDs parses a comma-separated string of UUIDs into a slice.
// Handles whitespace and filters empty elements.
//
// Examples:
//
//	"2a37" -> []string{"2a37"}
//	"2a37, 2a38, 2a19" -> []string{"2a37", "2a38", "2a19"}
func parseCSVUUIDs(input string) []string {
	var result []string
	for _, u := range strings.Split(input, ",") {
		u = strings.TrimSpace(u)
		if u != "" {
			result = append(result, u)
		}
	}
	return result
}

// outputData prints a characteristic value, as uppercase hex or raw bytes.
// When withPrefix is set, the line is prefixed with the UUID so multi-value
// output stays attributable.
func outputData(uuid string, data []byte, asHex, withPrefix bool) {
	var rendered string
	if asHex {
		rendered = strings.ToUpper(hex.EncodeToString(data))
	} else {
		rendered = string(data)
	}

	if withPrefix {
		fmt.Fprintf(os.Stdout, "%s: %s\n", uuid, rendered)
	} else {
		fmt.Fprintln(os.Stdout, rendered)
	}
}
