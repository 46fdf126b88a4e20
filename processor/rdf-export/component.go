// Package rdfexport provides a streaming output component that subscribes
// to derived graph updates from the reasoner and serializes them to RDF.
package rdfexport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semreason/export"
	"github.com/c360studio/semreason/graph"
	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
)

// errMalformed marks messages that can never be processed.
var errMalformed = errors.New("malformed message")

// Component implements the rdf-export output processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	publisher  graph.StreamPublisher
	logger     *slog.Logger

	format  export.Format
	baseIRI string

	// Resolved subjects from port config
	inputSubject  string
	inputStream   string
	outputSubject string

	// Lifecycle
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// Metrics
	messagesProcessed atomic.Int64
	serializeErrors   atomic.Int64
	publishErrors     atomic.Int64
	lastActivityMu    sync.RWMutex
	lastActivity      time.Time
}

// NewComponent creates a new rdf-export output component.
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

	c := newComponent(config, deps.GetLogger())
	c.natsClient = deps.NATSClient
	if deps.NATSClient != nil {
		c.publisher = deps.NATSClient
	}
	return c, nil
}

func newComponent(config Config, logger *slog.Logger) *Component {
	if logger == nil {
		logger = slog.Default()
	}

	inputSubject := graph.InferredUpdatedSubject
	inputStream := "GRAPH"
	outputSubject := "graph.export.rdf"

	if config.Ports != nil {
		if len(config.Ports.Inputs) > 0 {
			inputSubject = config.Ports.Inputs[0].Subject
			inputStream = config.Ports.Inputs[0].StreamName
		}
		if len(config.Ports.Outputs) > 0 {
			outputSubject = config.Ports.Outputs[0].Subject
		}
	}

	return &Component{
		name:          "rdf-export",
		config:        config,
		logger:        logger,
		format:        config.GetFormat(),
		baseIRI:       config.GetBaseIRI(),
		inputSubject:  inputSubject,
		inputStream:   inputStream,
		outputSubject: outputSubject,
	}
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	return nil
}

// Start begins consuming derived graph updates and producing RDF output.
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

	consumeCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	consumerCfg := natsclient.StreamConsumerConfig{
		StreamName:    c.inputStream,
		ConsumerName:  "rdf-export",
		FilterSubject: c.inputSubject,
		DeliverPolicy: "new",
		AckPolicy:     "explicit",
		MaxDeliver:    3,
		AckWait:       10 * time.Second,
	}

	err := c.natsClient.ConsumeStreamWithConfig(consumeCtx, consumerCfg, c.handleMessage)
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.mu.Unlock()
		cancel()
		return fmt.Errorf("start consumer: %w", err)
	}

	c.logger.Info("rdf-export started",
		"format", c.format,
		"input", c.inputSubject,
		"output", c.outputSubject)

	return nil
}

func (c *Component) handleMessage(ctx context.Context, msg jetstream.Msg) {
	err := c.process(ctx, msg.Data())
	switch {
	case err == nil:
		_ = msg.Ack()
	case errors.Is(err, errMalformed):
		c.logger.Warn("Dropping message", "subject", msg.Subject(), "error", err)
		_ = msg.Term()
	default:
		c.logger.Warn("RDF export failed", "subject", msg.Subject(), "error", err)
		_ = msg.Nak()
	}
}

// process renders one derived graph update and publishes the result.
func (c *Component) process(ctx context.Context, data []byte) error {
	var baseMsg message.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}

	inferred, ok := baseMsg.Payload().(*graph.InferredPayload)
	if !ok {
		return fmt.Errorf("%w: unexpected payload type %s", errMalformed, baseMsg.Type())
	}

	out, err := c.render(inferred)
	if err != nil {
		c.serializeErrors.Add(1)
		return err
	}

	if err := c.publish(ctx, out); err != nil {
		c.publishErrors.Add(1)
		return err
	}

	c.messagesProcessed.Add(1)
	c.updateLastActivity()

	c.logger.Debug("Exported derived graph",
		"entry", out.EntryURI,
		"format", out.Format,
		"output_bytes", len(out.Content))
	return nil
}

func (c *Component) render(p *graph.InferredPayload) (*Payload, error) {
	var content string
	if len(p.TripleData) > 0 {
		var err error
		content, err = export.SerializeTriples(p.TripleData, c.format, c.baseIRI)
		if err != nil {
			return nil, fmt.Errorf("serialize %s: %w", p.EntryURI, err)
		}
	}
	info, _ := export.GetFormatInfo(c.format)
	return &Payload{
		EntryURI: p.EntryURI,
		GraphURI: p.GraphURI,
		Format:   string(c.format),
		MIMEType: info.MIMEType,
		Content:  content,
	}, nil
}

func (c *Component) publish(ctx context.Context, p *Payload) error {
	if c.publisher == nil {
		return fmt.Errorf("no publisher")
	}
	data, err := json.Marshal(message.NewBaseMessage(RDFExportType, p, "semreason"))
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	if err := c.publisher.PublishToStream(ctx, c.outputSubject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", c.outputSubject, err)
	}
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}

	c.running = false
	c.logger.Info("rdf-export stopped",
		"messages_processed", c.messagesProcessed.Load(),
		"serialize_errors", c.serializeErrors.Load(),
		"publish_errors", c.publishErrors.Load())

	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "rdf-export",
		Type:        "output",
		Description: "Serializes derived metadata graphs to RDF (Turtle, N-Triples, JSON-LD)",
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
	return rdfExportSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	errorCount := int(c.serializeErrors.Load() + c.publishErrors.Load())

	status := "stopped"
	if running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: errorCount,
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		LastActivity: c.getLastActivity(),
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
