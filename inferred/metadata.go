package inferred

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/c360studio/semreason/auth"
	"github.com/c360studio/semreason/graph"
	"github.com/c360studio/semreason/repository"
	"github.com/c360studio/semreason/storage"
)

// ErrUnsupported is returned when derived metadata is written directly.
var ErrUnsupported = errors.New("derived metadata is read-only")

// Notifier is told about every recomputed derived graph.
type Notifier interface {
	InferredUpdated(ctx context.Context, entryURI, graphURI string, g graph.Graph) error
}

// Manager hands out the derived metadata of entries. It owns the derived
// store's named graphs.
type Manager struct {
	store    storage.Store
	uris     repository.URIs
	authz    auth.Authorizer
	ancestry func() Ancestry
	notifier Notifier
	logger   *slog.Logger
}

// Config holds the collaborators of a Manager.
type Config struct {
	Store      storage.Store
	URIs       repository.URIs
	Authorizer auth.Authorizer
	// Ancestry returns the current forest index. It is called on every
	// update so that wholesale index replacements are picked up.
	Ancestry func() Ancestry
	// Notifier is optional.
	Notifier Notifier
	Logger   *slog.Logger
}

// NewManager creates a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("derived store is required")
	}
	if cfg.Authorizer == nil {
		return nil, errors.New("authorizer is required")
	}
	if cfg.Ancestry == nil {
		return nil, errors.New("ancestry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    cfg.Store,
		uris:     cfg.URIs,
		authz:    cfg.Authorizer,
		ancestry: cfg.Ancestry,
		notifier: cfg.Notifier,
		logger:   logger,
	}, nil
}

// For returns the derived metadata handle of entry.
func (m *Manager) For(entry *repository.Entry) *Metadata {
	return &Metadata{
		m:     m,
		entry: entry,
		uri:   m.uris.InferredURI(entry.ContextID, entry.ID),
	}
}

// Metadata is the derived metadata of one entry.
type Metadata struct {
	m     *Manager
	entry *repository.Entry
	uri   string
}

// URI returns the named graph holding the derived metadata.
func (md *Metadata) URI() string {
	return md.uri
}

// Graph returns the stored derived graph after checking that the caller may
// read the entry's metadata. It is empty if nothing was ever computed.
func (md *Metadata) Graph(ctx context.Context) (graph.Graph, error) {
	if err := md.m.authz.CanReadMetadata(ctx, md.entry); err != nil {
		return nil, err
	}
	g, err := md.m.store.Graph(ctx, md.uri)
	if err != nil {
		return nil, fmt.Errorf("read derived graph %s: %w", md.uri, err)
	}
	return g, nil
}

// Exists reports whether a derived graph is materialized.
func (md *Metadata) Exists(ctx context.Context) (bool, error) {
	g, err := md.m.store.Graph(ctx, md.uri)
	if err != nil {
		return false, fmt.Errorf("read derived graph %s: %w", md.uri, err)
	}
	return len(g) > 0, nil
}

// SetGraph always fails: derived metadata is only written by Update.
func (md *Metadata) SetGraph(context.Context, graph.Graph) error {
	return ErrUnsupported
}

// Update recomputes the derived graph from the entry's metadata and the
// current forest, replaces the stored graph atomically and notifies
// downstream consumers.
func (md *Metadata) Update(ctx context.Context) (graph.Graph, error) {
	g := Derive(md.entry.Metadata, md.m.ancestry(), md.uri)

	if err := md.m.store.ReplaceGraph(ctx, md.uri, g); err != nil {
		return nil, fmt.Errorf("replace derived graph %s: %w", md.uri, err)
	}

	if md.m.notifier != nil {
		if err := md.m.notifier.InferredUpdated(ctx, md.entry.URI, md.uri, g); err != nil {
			md.m.logger.Warn("Failed to publish derived graph update",
				"entry", md.entry.URI,
				"error", err)
		}
	}

	md.m.logger.Debug("Derived metadata updated",
		"entry", md.entry.URI,
		"statements", len(g))
	return g, nil
}

// Remove clears the derived graph after checking that the caller may read
// the entry's metadata.
func (md *Metadata) Remove(ctx context.Context) error {
	if err := md.m.authz.CanReadMetadata(ctx, md.entry); err != nil {
		return err
	}
	if err := md.m.store.ClearGraph(ctx, md.uri); err != nil {
		return fmt.Errorf("clear derived graph %s: %w", md.uri, err)
	}
	return nil
}
