package export

import (
	"fmt"
	"sort"
	"strings"

	ssexport "github.com/c360studio/semstreams/vocabulary/export"
)

// Format specifies the output serialization format.
type Format string

const (
	// FormatTurtle produces Turtle (.ttl) output.
	FormatTurtle Format = "turtle"

	// FormatNTriples produces N-Triples (.nt) output.
	FormatNTriples Format = "ntriples"

	// FormatJSONLD produces JSON-LD (.jsonld) output.
	FormatJSONLD Format = "jsonld"
)

// FormatInfo provides metadata about an export format.
type FormatInfo struct {
	Name      Format
	MIMEType  string
	Extension string

	serializer ssexport.Format
}

// FormatRegistry contains metadata for all supported formats.
var FormatRegistry = map[Format]FormatInfo{
	FormatTurtle: {
		Name:       FormatTurtle,
		MIMEType:   "text/turtle",
		Extension:  ".ttl",
		serializer: ssexport.Turtle,
	},
	FormatNTriples: {
		Name:       FormatNTriples,
		MIMEType:   "application/n-triples",
		Extension:  ".nt",
		serializer: ssexport.NTriples,
	},
	FormatJSONLD: {
		Name:       FormatJSONLD,
		MIMEType:   "application/ld+json",
		Extension:  ".jsonld",
		serializer: ssexport.JSONLD,
	},
}

// GetFormatInfo returns metadata for a format.
func GetFormatInfo(format Format) (FormatInfo, bool) {
	info, ok := FormatRegistry[format]
	return info, ok
}

// ParseFormat resolves a format name, case-insensitively. An empty name
// selects Turtle.
func ParseFormat(name string) (Format, error) {
	if name == "" {
		return FormatTurtle, nil
	}
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := FormatRegistry[f]; !ok {
		return "", fmt.Errorf("unsupported format: %s (valid: %s)", name, strings.Join(FormatNames(), ", "))
	}
	return f, nil
}

// FormatNames returns the supported format names, sorted.
func FormatNames() []string {
	names := make([]string, 0, len(FormatRegistry))
	for f := range FormatRegistry {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}
