// Package config provides configuration loading and management for semreason.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c360studio/semreason/export"
	rdfexport "github.com/c360studio/semreason/processor/rdf-export"
	"github.com/c360studio/semreason/processor/reasoner"
	"github.com/c360studio/semreason/storage"
	"gopkg.in/yaml.v3"
)

// Config represents the complete semreason configuration
type Config struct {
	Repository RepositoryConfig `yaml:"repository"`
	NATS       NATSConfig       `yaml:"nats"`
	Derived    DerivedConfig    `yaml:"derived"`
	Reasoning  ReasoningConfig  `yaml:"reasoning"`
	Admin      AdminConfig      `yaml:"admin"`
	HTTP       HTTPConfig       `yaml:"http"`
	Export     ExportConfig     `yaml:"export"`
}

// RepositoryConfig locates the primary entry graphs
type RepositoryConfig struct {
	// BaseURL is the repository base URL (e.g., http://localhost:8181/store)
	BaseURL string `yaml:"base_url"`
	// Bucket is the JetStream KV bucket holding the entry graphs
	Bucket string `yaml:"bucket"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	URL string `yaml:"url"`
}

// DerivedConfig selects the store for derived graphs
type DerivedConfig struct {
	// Store is one of memory, badger (alias native) or nats
	Store  string `yaml:"store"`
	Path   string `yaml:"path"`
	Bucket string `yaml:"bucket"`
}

// ReasoningConfig tunes the reasoning worker
type ReasoningConfig struct {
	BatchSize            int           `yaml:"batch_size"`
	StoreTimeout         time.Duration `yaml:"store_timeout"`
	Retry                RetryConfig   `yaml:"retry"`
	Parallelism          int           `yaml:"parallelism"`
	RecalculateOnStartup bool          `yaml:"recalculate_on_startup"`
}

// RetryConfig is the retry policy for failed recomputations
type RetryConfig struct {
	// MaxAttempts is the number of retries; zero disables retrying.
	// Nil keeps the lower layer's value.
	MaxAttempts     *int          `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// AdminConfig names the callers allowed to run administrative operations
type AdminConfig struct {
	User  string   `yaml:"user"`
	Group []string `yaml:"group"`
}

// HTTPConfig configures the admin and metrics listener
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// ExportConfig controls streaming RDF export of derived graphs
type ExportConfig struct {
	Enabled bool `yaml:"enabled"`
	// Format is turtle, ntriples or jsonld
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	attempts := 5
	return &Config{
		Repository: RepositoryConfig{
			BaseURL: "http://localhost:8181/store",
			Bucket:  storage.BucketRepository,
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Derived: DerivedConfig{
			Store:  storage.TypeMemory,
			Bucket: storage.BucketInferred,
		},
		Reasoning: ReasoningConfig{
			BatchSize:    100,
			StoreTimeout: 30 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:     &attempts,
				InitialInterval: time.Second,
				MaxInterval:     time.Minute,
			},
			Parallelism: 4,
		},
		Admin: AdminConfig{
			User: "admin",
		},
		HTTP: HTTPConfig{
			Listen: ":8282",
		},
		Export: ExportConfig{
			Format: string(export.FormatTurtle),
		},
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Repository.BaseURL == "" {
		return fmt.Errorf("repository.base_url is required")
	}
	if c.Repository.Bucket == "" {
		return fmt.Errorf("repository.bucket is required")
	}
	if c.HTTP.Listen == "" {
		return fmt.Errorf("http.listen is required")
	}
	rc := c.Component()
	if err := rc.Validate(); err != nil {
		return fmt.Errorf("invalid reasoning config: %w", err)
	}
	if _, err := export.ParseFormat(c.Export.Format); err != nil {
		return fmt.Errorf("invalid export.format: %w", err)
	}
	return nil
}

// Component converts the application config to the reasoner component config.
func (c *Config) Component() reasoner.Config {
	rc := reasoner.DefaultConfig()
	rc.BaseURL = c.Repository.BaseURL
	rc.PrimaryBucket = c.Repository.Bucket
	rc.DerivedStore = c.Derived.Store
	rc.DerivedPath = c.Derived.Path
	rc.DerivedBucket = c.Derived.Bucket
	rc.BatchSize = c.Reasoning.BatchSize
	rc.Parallelism = c.Reasoning.Parallelism
	rc.RecalculateOnStartup = c.Reasoning.RecalculateOnStartup
	if c.Reasoning.StoreTimeout > 0 {
		rc.StoreTimeout = c.Reasoning.StoreTimeout.String()
	}
	if c.Reasoning.Retry.MaxAttempts != nil {
		rc.RetryMaxAttempts = *c.Reasoning.Retry.MaxAttempts
	}
	if c.Reasoning.Retry.InitialInterval > 0 {
		rc.RetryInitialInterval = c.Reasoning.Retry.InitialInterval.String()
	}
	if c.Reasoning.Retry.MaxInterval > 0 {
		rc.RetryMaxInterval = c.Reasoning.Retry.MaxInterval.String()
	}
	rc.AdminUser = c.Admin.User
	rc.AdminGroup = c.Admin.Group
	return rc
}

// ComponentJSON returns the reasoner component config as raw JSON, the form
// component factories accept.
func (c *Config) ComponentJSON() (json.RawMessage, error) {
	rc := c.Component()
	data, err := json.Marshal(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal component config: %w", err)
	}
	return data, nil
}

// ExportComponentJSON returns the rdf-export component config as raw JSON.
// Relative IRIs resolve against the repository base URL.
func (c *Config) ExportComponentJSON() (json.RawMessage, error) {
	ec := rdfexport.DefaultConfig()
	if c.Export.Format != "" {
		ec.Format = c.Export.Format
	}
	ec.BaseIRI = strings.TrimSuffix(c.Repository.BaseURL, "/") + "/"
	data, err := json.Marshal(ec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export config: %w", err)
	}
	return data, nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := decodeFile(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

// readLayer reads a file without defaults so that it only overrides the
// keys it sets when merged.
func readLayer(path string) (*Config, error) {
	config := &Config{}
	if err := decodeFile(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

func decodeFile(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Repository
	if other.Repository.BaseURL != "" {
		c.Repository.BaseURL = other.Repository.BaseURL
	}
	if other.Repository.Bucket != "" {
		c.Repository.Bucket = other.Repository.Bucket
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	// Derived
	if other.Derived.Store != "" {
		c.Derived.Store = other.Derived.Store
	}
	if other.Derived.Path != "" {
		c.Derived.Path = other.Derived.Path
	}
	if other.Derived.Bucket != "" {
		c.Derived.Bucket = other.Derived.Bucket
	}

	// Reasoning
	r := other.Reasoning
	if r.BatchSize != 0 {
		c.Reasoning.BatchSize = r.BatchSize
	}
	if r.StoreTimeout != 0 {
		c.Reasoning.StoreTimeout = r.StoreTimeout
	}
	if r.Retry.MaxAttempts != nil {
		attempts := *r.Retry.MaxAttempts
		c.Reasoning.Retry.MaxAttempts = &attempts
	}
	if r.Retry.InitialInterval != 0 {
		c.Reasoning.Retry.InitialInterval = r.Retry.InitialInterval
	}
	if r.Retry.MaxInterval != 0 {
		c.Reasoning.Retry.MaxInterval = r.Retry.MaxInterval
	}
	if r.Parallelism != 0 {
		c.Reasoning.Parallelism = r.Parallelism
	}
	if r.RecalculateOnStartup {
		c.Reasoning.RecalculateOnStartup = true
	}

	// Admin
	if other.Admin.User != "" {
		c.Admin.User = other.Admin.User
	}
	if len(other.Admin.Group) > 0 {
		c.Admin.Group = other.Admin.Group
	}

	// HTTP
	if other.HTTP.Listen != "" {
		c.HTTP.Listen = other.HTTP.Listen
	}

	// Export
	if other.Export.Enabled {
		c.Export.Enabled = true
	}
	if other.Export.Format != "" {
		c.Export.Format = other.Export.Format
	}
}
