// Package repository describes repository entries as the reasoning
// subsystem sees them and resolves them from the primary store.
//
// URIs follow the layout {base}/{contextId}/{kind}/{entryId}, where kind is
// one of entry, metadata, resource or inferred. A context's own resource is
// {base}/{contextId} and its entry lives in the system context _contexts.
package repository

import (
	"strings"
)

// SystemContexts is the context holding one entry per context.
const SystemContexts = "_contexts"

// Path segments of entry-scoped URIs.
const (
	KindEntry    = "entry"
	KindMetadata = "metadata"
	KindResource = "resource"
	KindInferred = "inferred"
)

// URIs fabricates and splits repository URIs under a base URL.
type URIs struct {
	base string
}

// NewURIs creates a URI scheme rooted at base. A trailing slash is added if
// missing.
func NewURIs(base string) URIs {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return URIs{base: base}
}

// Base returns the base URL including its trailing slash.
func (u URIs) Base() string {
	return u.base
}

// EntryURI returns {base}/{contextID}/entry/{id}.
func (u URIs) EntryURI(contextID, id string) string {
	return u.scoped(contextID, KindEntry, id)
}

// MetadataURI returns the named graph holding an entry's metadata.
func (u URIs) MetadataURI(contextID, id string) string {
	return u.scoped(contextID, KindMetadata, id)
}

// ResourceURI returns the default resource URI of a local entry.
func (u URIs) ResourceURI(contextID, id string) string {
	return u.scoped(contextID, KindResource, id)
}

// InferredURI returns the named graph holding an entry's derived metadata.
func (u URIs) InferredURI(contextID, id string) string {
	return u.scoped(contextID, KindInferred, id)
}

// ContextURI returns the resource URI of a context.
func (u URIs) ContextURI(contextID string) string {
	return u.base + contextID
}

// ContextEntryURI returns the entry URI describing a context.
func (u URIs) ContextEntryURI(contextID string) string {
	return u.EntryURI(SystemContexts, contextID)
}

// Parts is a split entry-scoped URI.
type Parts struct {
	ContextID string
	Kind      string
	ID        string
}

// Split parses an entry-scoped URI. It fails for URIs outside the base or
// with an unknown kind segment.
func (u URIs) Split(uri string) (Parts, bool) {
	rest, ok := strings.CutPrefix(uri, u.base)
	if !ok {
		return Parts{}, false
	}
	segments := strings.Split(rest, "/")
	if len(segments) != 3 || segments[0] == "" || segments[2] == "" {
		return Parts{}, false
	}
	switch segments[1] {
	case KindEntry, KindMetadata, KindResource, KindInferred:
	default:
		return Parts{}, false
	}
	return Parts{ContextID: segments[0], Kind: segments[1], ID: segments[2]}, true
}

// ContextID returns the context id of a context resource URI.
func (u URIs) ContextID(contextURI string) (string, bool) {
	id, ok := strings.CutPrefix(contextURI, u.base)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// OwningEntryURI maps any entry-scoped named graph (metadata, inferred,
// entry) back to the entry URI it belongs to.
func (u URIs) OwningEntryURI(graphIRI string) (string, bool) {
	parts, ok := u.Split(graphIRI)
	if !ok {
		return "", false
	}
	return u.EntryURI(parts.ContextID, parts.ID), true
}

func (u URIs) scoped(contextID, kind, id string) string {
	return u.base + contextID + "/" + kind + "/" + id
}
