// Package reasoner provides the processor component that feeds repository
// entry notifications from JetStream into the reasoning engine and exposes
// its administrative operations over HTTP.
package reasoner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semreason/auth"
	"github.com/c360studio/semreason/graph"
	"github.com/c360studio/semreason/inferred"
	"github.com/c360studio/semreason/reasoning"
	"github.com/c360studio/semreason/repository"
	"github.com/c360studio/semreason/storage"
	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
)

// errNotStarted is returned while the stores and engine are not wired.
var errNotStarted = errors.New("reasoner not started")

// Component implements the reasoner processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger

	uris  repository.URIs
	authz *auth.StaticAuthorizer

	// Wired in Start.
	primary    storage.Store
	derived    storage.Store
	resolver   repository.Resolver
	engine     *reasoning.Engine
	ownsStores bool

	// Resolved subjects from port config
	inputSubject  string
	inputStream   string
	outputSubject string
	outputStream  string

	// Lifecycle
	running    bool
	startTime  time.Time
	mu         sync.RWMutex
	cancel     context.CancelFunc
	runCtx     context.Context
	workerDone chan struct{}

	jobsMu   sync.Mutex
	jobs     map[string]*Job
	jobLimit int

	// Metrics
	eventsProcessed atomic.Int64
	eventErrors     atomic.Int64
	lastActivityMu  sync.RWMutex
	lastActivity    time.Time
}

// NewComponent creates a new reasoner processor component.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if config.Ports == nil {
		config = DefaultConfig()
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("unmarshal config with defaults: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return newComponent(config, deps.NATSClient, deps.GetLogger()), nil
}

func newComponent(config Config, nc *natsclient.Client, logger *slog.Logger) *Component {
	if logger == nil {
		logger = slog.Default()
	}

	// Resolve subjects from port definitions
	inputSubject := "repository.entry.>"
	inputStream := "REPOSITORY"
	outputSubject := graph.InferredUpdatedSubject
	outputStream := "GRAPH"

	if config.Ports != nil {
		if len(config.Ports.Inputs) > 0 {
			inputSubject = config.Ports.Inputs[0].Subject
			inputStream = config.Ports.Inputs[0].StreamName
		}
		if len(config.Ports.Outputs) > 0 {
			outputSubject = config.Ports.Outputs[0].Subject
			outputStream = config.Ports.Outputs[0].StreamName
		}
	}

	return &Component{
		name:          "reasoner",
		config:        config,
		natsClient:    nc,
		logger:        logger,
		uris:          repository.NewURIs(config.BaseURL),
		authz:         auth.NewStaticAuthorizer(config.AdminUser, config.AdminGroup),
		inputSubject:  inputSubject,
		inputStream:   inputStream,
		outputSubject: outputSubject,
		outputStream:  outputStream,
		jobs:          make(map[string]*Job),
		jobLimit:      DefaultJobLimit,
	}
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	return nil
}

// Authorizer returns the authorizer whose admin settings can be swapped at
// runtime.
func (c *Component) Authorizer() *auth.StaticAuthorizer {
	return c.authz
}

// Engine returns the reasoning engine, or nil before Start.
func (c *Component) Engine() *reasoning.Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine
}

// Start opens the stores, bootstraps the engine, starts its worker and
// begins consuming entry notifications.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}

	c.running = true
	c.startTime = time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.runCtx = runCtx
	c.mu.Unlock()

	if err := c.start(runCtx); err != nil {
		_ = c.shutdown(5 * time.Second)
		return err
	}

	c.logger.Info("reasoner started",
		"base_url", c.uris.Base(),
		"derived_store", c.config.DerivedStore,
		"input", c.inputSubject,
		"output", c.outputSubject)
	return nil
}

func (c *Component) start(ctx context.Context) error {
	js, err := c.natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}
	if err := ensureStream(ctx, js, c.inputStream, c.inputSubject); err != nil {
		return err
	}
	if c.outputStream != "" {
		if err := ensureStream(ctx, js, c.outputStream, c.outputSubject); err != nil {
			return err
		}
	}

	primary, err := storage.NewKVStore(ctx, js, c.config.PrimaryBucket)
	if err != nil {
		return fmt.Errorf("open primary store: %w", err)
	}
	opts := c.config.StorageOptions()
	opts.Logger = c.logger
	derived, err := storage.Open(ctx, opts, js)
	if err != nil {
		return fmt.Errorf("open derived store: %w", err)
	}

	c.mu.Lock()
	c.ownsStores = true
	c.mu.Unlock()
	if err := c.wire(primary, derived, graph.NewPublisher(c.natsClient, c.outputSubject)); err != nil {
		return err
	}

	engine := c.Engine()
	if err := engine.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap reasoning: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := engine.Run(ctx); err != nil {
			c.logger.Error("Reasoning worker failed", "error", err)
		}
	}()
	c.mu.Lock()
	c.workerDone = done
	c.mu.Unlock()

	consumerCfg := natsclient.StreamConsumerConfig{
		StreamName:    c.inputStream,
		ConsumerName:  "reasoner",
		FilterSubject: c.inputSubject,
		DeliverPolicy: "new",
		AckPolicy:     "explicit",
		MaxDeliver:    3,
		AckWait:       c.config.GetStoreTimeout() + 10*time.Second,
	}
	if err := c.natsClient.ConsumeStreamWithConfig(ctx, consumerCfg, c.handleMessage); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	return nil
}

// wire builds the resolver and engine over the given stores.
func (c *Component) wire(primary, derived storage.Store, notifier inferred.Notifier) error {
	resolver := repository.NewStoreResolver(primary, c.uris)
	engine, err := reasoning.New(reasoning.Dependencies{
		Primary:    primary,
		Derived:    derived,
		Entries:    resolver,
		URIs:       c.uris,
		Authorizer: c.authz,
		Notifier:   notifier,
		Logger:     c.logger,
	}, c.config.EngineConfig())
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	c.mu.Lock()
	c.primary = primary
	c.derived = derived
	c.resolver = resolver
	c.engine = engine
	c.mu.Unlock()
	return nil
}

// ensureStream creates stream name for subject unless it exists.
func ensureStream(ctx context.Context, js jetstream.JetStream, name, subject string) error {
	_, err := js.Stream(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("look up stream %s: %w", name, err)
	}
	if _, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: []string{subject},
	}); err != nil {
		return fmt.Errorf("create stream %s: %w", name, err)
	}
	return nil
}

// handleMessage processes a single entry notification.
func (c *Component) handleMessage(ctx context.Context, msg jetstream.Msg) {
	var baseMsg message.BaseMessage
	if err := json.Unmarshal(msg.Data(), &baseMsg); err != nil {
		c.logger.Warn("Failed to unmarshal base message",
			"error", err,
			"subject", msg.Subject())
		c.eventErrors.Add(1)
		_ = msg.Term()
		return
	}

	event, ok := baseMsg.Payload().(*EntryEvent)
	if !ok {
		c.logger.Warn("Unexpected payload type",
			"type", baseMsg.Type(),
			"subject", msg.Subject())
		c.eventErrors.Add(1)
		_ = msg.Term()
		return
	}

	if err := c.HandleEvent(ctx, event); err != nil {
		c.logger.Warn("Failed to handle entry event",
			"event", event.Event,
			"entry", event.EntryURI,
			"error", err)
		c.eventErrors.Add(1)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()
	c.eventsProcessed.Add(1)
	c.updateLastActivity()
}

// HandleEvent applies one entry notification to the engine. Notifications
// are internal, so they run as the system caller.
func (c *Component) HandleEvent(ctx context.Context, event *EntryEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	c.mu.RLock()
	engine, resolver := c.engine, c.resolver
	c.mu.RUnlock()
	if engine == nil {
		return errNotStarted
	}

	ctx = auth.System(ctx)
	switch event.Event {
	case EventUpdated:
		entry, err := resolver.Entry(ctx, event.EntryURI)
		if errors.Is(err, repository.ErrNotFound) {
			c.logger.Debug("Updated entry no longer exists", "entry", event.EntryURI)
			return nil
		}
		if err != nil {
			return fmt.Errorf("resolve entry: %w", err)
		}
		return engine.EntryUpdated(ctx, entry)

	default:
		entry, err := c.entryFromEvent(event)
		if err != nil {
			return err
		}
		return engine.EntryRemoved(ctx, entry)
	}
}

// entryFromEvent reconstructs a removed entry from its notification.
func (c *Component) entryFromEvent(event *EntryEvent) (*repository.Entry, error) {
	parts, ok := c.uris.Split(event.EntryURI)
	if !ok || parts.Kind != repository.KindEntry {
		return nil, fmt.Errorf("not an entry URI: %s", event.EntryURI)
	}

	entry := &repository.Entry{
		ID:          parts.ID,
		ContextID:   parts.ContextID,
		URI:         event.EntryURI,
		ResourceURI: event.ResourceURI,
		GraphType:   repository.ParseGraphType(event.GraphType),
	}
	if parts.ContextID == repository.SystemContexts {
		entry.GraphType = repository.GraphTypeContext
		if entry.ResourceURI == "" {
			entry.ResourceURI = c.uris.ContextURI(parts.ID)
		}
	}
	if entry.ResourceURI == "" {
		entry.ResourceURI = c.uris.ResourceURI(parts.ContextID, parts.ID)
	}
	return entry, nil
}

// Stop cancels the consumer and worker and closes the stores the component
// opened.
func (c *Component) Stop(timeout time.Duration) error {
	c.mu.RLock()
	running := c.running
	c.mu.RUnlock()
	if !running {
		return nil
	}

	err := c.shutdown(timeout)
	c.logger.Info("reasoner stopped",
		"events_processed", c.eventsProcessed.Load(),
		"event_errors", c.eventErrors.Load())
	return err
}

func (c *Component) shutdown(timeout time.Duration) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	done := c.workerDone
	c.running = false
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(timeout):
			c.logger.Warn("Reasoning worker did not stop in time", "timeout", timeout)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.workerDone = nil
	if !c.ownsStores {
		return nil
	}
	var errs []error
	for _, s := range []storage.Store{c.derived, c.primary} {
		if s != nil {
			errs = append(errs, s.Close())
		}
	}
	c.ownsStores = false
	return errors.Join(errs...)
}

// lifecycleContext is the context background jobs run under.
func (c *Component) lifecycleContext() context.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.runCtx != nil {
		return c.runCtx
	}
	return context.Background()
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "reasoner",
		Type:        "processor",
		Description: "Maintains hierarchy forests and derived metadata for repository entries",
		Version:     "1.0.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Inputs))
	for i, portDef := range c.config.Ports.Inputs {
		ports[i] = buildPort(portDef, component.DirectionInput)
	}
	return ports
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, portDef := range c.config.Ports.Outputs {
		ports[i] = buildPort(portDef, component.DirectionOutput)
	}
	return ports
}

// buildPort creates a component.Port from a PortDefinition, using JetStreamPort
// for jetstream-type ports and NATSPort for core NATS ports.
func buildPort(portDef component.PortDefinition, direction component.Direction) component.Port {
	port := component.Port{
		Name:        portDef.Name,
		Direction:   direction,
		Required:    portDef.Required,
		Description: portDef.Description,
	}
	if portDef.Type == "jetstream" {
		port.Config = component.JetStreamPort{
			StreamName: portDef.StreamName,
			Subjects:   []string{portDef.Subject},
		}
	} else {
		port.Config = component.NATSPort{
			Subject: portDef.Subject,
		}
	}
	return port
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return reasonerSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	if running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.eventErrors.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		MessagesPerSecond: 0,
		BytesPerSecond:    0,
		ErrorRate:         0,
		LastActivity:      c.getLastActivity(),
	}
}

func (c *Component) updateLastActivity() {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastActivityMu.Unlock()
}

func (c *Component) getLastActivity() time.Time {
	c.lastActivityMu.RLock()
	defer c.lastActivityMu.RUnlock()
	return c.lastActivity
}
