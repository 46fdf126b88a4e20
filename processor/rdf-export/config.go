package rdfexport

import (
	"reflect"

	"github.com/c360studio/semreason/export"
	"github.com/c360studio/semreason/graph"
	"github.com/c360studio/semstreams/component"
)

// rdfExportSchema defines the configuration schema.
var rdfExportSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the rdf-export output component.
type Config struct {
	Ports   *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`
	Format  string                `json:"format" schema:"type:string,description:RDF serialization format (turtle/ntriples/jsonld),category:basic,default:turtle"`
	BaseIRI string                `json:"base_iri" schema:"type:string,description:Base IRI for relative entry URIs,category:basic,default:http://localhost:8181/store/"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	_, err := export.ParseFormat(c.Format)
	return err
}

// GetFormat returns the configured export format.
func (c *Config) GetFormat() export.Format {
	f, err := export.ParseFormat(c.Format)
	if err != nil {
		return export.FormatTurtle
	}
	return f
}

// GetBaseIRI returns the configured base IRI with a default fallback.
func (c *Config) GetBaseIRI() string {
	if c.BaseIRI != "" {
		return c.BaseIRI
	}
	return "http://localhost:8181/store/"
}

// DefaultConfig returns the default configuration for rdf-export.
func DefaultConfig() Config {
	return Config{
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "inferred_in",
					Type:        "jetstream",
					Subject:     graph.InferredUpdatedSubject,
					StreamName:  "GRAPH",
					Required:    true,
					Description: "Recomputed derived graphs from the reasoner",
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "rdf_out",
					Type:        "jetstream",
					Subject:     "graph.export.rdf",
					StreamName:  "GRAPH",
					Required:    true,
					Description: "Serialized derived graphs for downstream indexers",
				},
			},
		},
		Format:  string(export.FormatTurtle),
		BaseIRI: "http://localhost:8181/store/",
	}
}
