package reasoner

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semreason/reasoning"
	"github.com/c360studio/semreason/storage"
	"github.com/c360studio/semstreams/component"
)

// reasonerSchema defines the configuration schema.
var reasonerSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the reasoner processor component.
type Config struct {
	Ports *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`

	// BaseURL is the repository base URL all entry URIs live under.
	BaseURL string `json:"base_url" schema:"type:string,description:Repository base URL,category:basic,default:http://localhost:8181/store"`

	PrimaryBucket string `json:"primary_bucket" schema:"type:string,description:KV bucket holding the repository graphs,category:basic,default:SEMREASON_REPOSITORY"`

	// DerivedStore selects where derived graphs live: memory, badger or nats.
	DerivedStore  string `json:"derived_store" schema:"type:string,description:Derived graph store type (memory/badger/nats),category:basic,default:memory"`
	DerivedPath   string `json:"derived_path" schema:"type:string,description:Badger directory for the derived store,category:advanced"`
	DerivedBucket string `json:"derived_bucket" schema:"type:string,description:KV bucket for the derived store,category:advanced,default:SEMREASON_INFERRED"`

	BatchSize    int    `json:"batch_size" schema:"type:int,description:Change records per worker batch,category:advanced,default:100"`
	StoreTimeout string `json:"store_timeout" schema:"type:string,description:Timeout for the store work of one batch,category:advanced,default:30s"`

	RetryMaxAttempts     int    `json:"retry_max_attempts" schema:"type:int,description:Retries of a failed recompute (0 disables),category:advanced,default:5"`
	RetryInitialInterval string `json:"retry_initial_interval" schema:"type:string,description:First retry delay,category:advanced,default:1s"`
	RetryMaxInterval     string `json:"retry_max_interval" schema:"type:string,description:Maximum retry delay,category:advanced,default:1m"`

	Parallelism          int  `json:"parallelism" schema:"type:int,description:Concurrent recomputations during full recalculation,category:advanced,default:4"`
	RecalculateOnStartup bool `json:"recalculate_on_startup" schema:"type:bool,description:Recalculate all derived graphs at startup,category:advanced,default:false"`

	AdminUser  string   `json:"admin_user" schema:"type:string,description:User allowed to run administrative operations,category:basic,default:admin"`
	AdminGroup []string `json:"admin_group" schema:"type:array,description:Members of the admin group,category:advanced"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	switch c.DerivedStore {
	case "", storage.TypeMemory, storage.TypeBadger, storage.TypeNative, storage.TypeNATS:
	default:
		return fmt.Errorf("unsupported derived_store: %s (valid: memory, badger, nats)", c.DerivedStore)
	}
	if (c.DerivedStore == storage.TypeBadger || c.DerivedStore == storage.TypeNative) && c.DerivedPath == "" {
		return fmt.Errorf("derived_path is required for the %s store", c.DerivedStore)
	}
	for name, value := range map[string]string{
		"store_timeout":          c.StoreTimeout,
		"retry_initial_interval": c.RetryInitialInterval,
		"retry_max_interval":     c.RetryMaxInterval,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return c.EngineConfig().Validate()
}

// GetStoreTimeout returns the store timeout as a duration.
func (c *Config) GetStoreTimeout() time.Duration {
	return parseDuration(c.StoreTimeout, 30*time.Second)
}

// GetRetryInitialInterval returns the first retry delay as a duration.
func (c *Config) GetRetryInitialInterval() time.Duration {
	return parseDuration(c.RetryInitialInterval, time.Second)
}

// GetRetryMaxInterval returns the maximum retry delay as a duration.
func (c *Config) GetRetryMaxInterval() time.Duration {
	return parseDuration(c.RetryMaxInterval, time.Minute)
}

// EngineConfig converts the component config to the engine's.
func (c *Config) EngineConfig() reasoning.Config {
	cfg := reasoning.DefaultConfig()
	if c.BatchSize != 0 {
		cfg.BatchSize = c.BatchSize
	}
	if c.Parallelism != 0 {
		cfg.Parallelism = c.Parallelism
	}
	cfg.StoreTimeout = c.GetStoreTimeout()
	cfg.RetryMaxAttempts = c.RetryMaxAttempts
	cfg.RetryInitialInterval = c.GetRetryInitialInterval()
	cfg.RetryMaxInterval = c.GetRetryMaxInterval()
	cfg.RecalculateOnStartup = c.RecalculateOnStartup
	return cfg
}

// StorageOptions returns the options for opening the derived store.
func (c *Config) StorageOptions() storage.Options {
	typ := c.DerivedStore
	if typ == "" {
		typ = storage.TypeMemory
	}
	return storage.Options{
		Type:   typ,
		Path:   c.DerivedPath,
		Bucket: c.DerivedBucket,
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// DefaultConfig returns the default configuration for the reasoner.
func DefaultConfig() Config {
	return Config{
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "entry_events",
					Type:        "jetstream",
					Subject:     "repository.entry.>",
					StreamName:  "REPOSITORY",
					Required:    true,
					Description: "Entry updated and removed notifications from the repository",
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "inferred_out",
					Type:        "jetstream",
					Subject:     "graph.inferred.updated",
					StreamName:  "GRAPH",
					Required:    false,
					Description: "Derived metadata graphs after each recompute",
				},
			},
		},
		BaseURL:              "http://localhost:8181/store",
		PrimaryBucket:        storage.BucketRepository,
		DerivedStore:         storage.TypeMemory,
		DerivedBucket:        storage.BucketInferred,
		BatchSize:            100,
		StoreTimeout:         "30s",
		RetryMaxAttempts:     5,
		RetryInitialInterval: "1s",
		RetryMaxInterval:     "1m",
		Parallelism:          4,
		AdminUser:            "admin",
	}
}
