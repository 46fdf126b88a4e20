// Package export serializes derived metadata graphs to RDF.
package export

import (
	"fmt"
	"time"

	"github.com/c360studio/semreason/graph"
	"github.com/c360studio/semstreams/message"
	ssexport "github.com/c360studio/semstreams/vocabulary/export"
)

// Source is recorded on the triples handed to the serializer.
const Source = "semreason"

// Serialize renders g in format. Statement contexts are dropped: the output
// is a plain graph.
func Serialize(g graph.Graph, format Format, baseIRI string) (string, error) {
	info, ok := GetFormatInfo(format)
	if !ok {
		return "", fmt.Errorf("unsupported format: %s", format)
	}

	return serialize(g.Sorted().Triples(Source, time.Now()), info, baseIRI)
}

// SerializeTriples renders triples that already carry message metadata, such
// as those of a published derived graph payload.
func SerializeTriples(triples []message.Triple, format Format, baseIRI string) (string, error) {
	info, ok := GetFormatInfo(format)
	if !ok {
		return "", fmt.Errorf("unsupported format: %s", format)
	}
	return serialize(triples, info, baseIRI)
}

func serialize(triples []message.Triple, info FormatInfo, baseIRI string) (string, error) {
	out, err := ssexport.SerializeToString(triples, info.serializer, ssexport.WithBaseIRI(baseIRI))
	if err != nil {
		return "", fmt.Errorf("serialize %s: %w", info.Name, err)
	}
	return out, nil
}
