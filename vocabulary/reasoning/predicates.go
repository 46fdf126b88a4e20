package reasoning

import "github.com/c360studio/semstreams/vocabulary"

// Namespace IRIs.
const (
	SKOSNamespace = "http://www.w3.org/2004/02/skos/core#"
	RDFSNamespace = "http://www.w3.org/2000/01/rdf-schema#"
	RDFNamespace  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"

	// TermsNamespace holds repository-specific terms.
	TermsNamespace = "http://entrystore.org/terms/"
)

// Hierarchical relation IRIs. Statements using these predicates become
// forest edges: the subject is the child, the object the parent.
const (
	SKOSBroader           = SKOSNamespace + "broader"
	SKOSBroaderTransitive = SKOSNamespace + "broaderTransitive"
	RDFSSubClassOf        = RDFSNamespace + "subClassOf"
	RDFSSubPropertyOf     = RDFSNamespace + "subPropertyOf"
)

// Repository term IRIs.
const (
	// ReasoningFacts on a context resource flags the context as fact enabled.
	ReasoningFacts = TermsNamespace + "reasoningFacts"

	// GraphType links an entry URI to its graph type.
	GraphType = TermsNamespace + "graphType"

	// Resource links an entry URI to the resource it describes.
	Resource = TermsNamespace + "resource"

	// ContextType is the graph type of entries that denote a whole context.
	ContextType = TermsNamespace + "Context"

	// RDFType is rdf:type.
	RDFType = RDFNamespace + "type"
)

// Registered predicate names, dotted per the semstreams convention.
const (
	HierarchyBroader           = "reasoning.hierarchy.broader"
	HierarchyBroaderTransitive = "reasoning.hierarchy.broader_transitive"
	HierarchySubClassOf        = "reasoning.hierarchy.subclass_of"
	HierarchySubPropertyOf     = "reasoning.hierarchy.subproperty_of"

	ContextReasoningFacts = "reasoning.context.facts"
	EntryGraphType        = "reasoning.entry.graph_type"
	EntryResource         = "reasoning.entry.resource"

	// InferredFrom records, on derived statements published downstream, the
	// node whose ancestor produced the statement.
	InferredFrom = "reasoning.inferred.from"
)

var hierarchical = []string{
	SKOSBroader,
	SKOSBroaderTransitive,
	RDFSSubClassOf,
	RDFSSubPropertyOf,
}

// HierarchicalPredicates returns the IRIs that define forest edges.
func HierarchicalPredicates() []string {
	out := make([]string, len(hierarchical))
	copy(out, hierarchical)
	return out
}

// IsHierarchical reports whether predicate defines forest edges.
func IsHierarchical(predicate string) bool {
	for _, p := range hierarchical {
		if p == predicate {
			return true
		}
	}
	return false
}

func init() {
	vocabulary.Register(HierarchyBroader,
		vocabulary.WithDescription("Concept has a broader concept"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(SKOSBroader))

	vocabulary.Register(HierarchyBroaderTransitive,
		vocabulary.WithDescription("Concept has a transitively broader concept"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(SKOSBroaderTransitive))

	vocabulary.Register(HierarchySubClassOf,
		vocabulary.WithDescription("Class is a subclass of another class"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(RDFSSubClassOf))

	vocabulary.Register(HierarchySubPropertyOf,
		vocabulary.WithDescription("Property is a subproperty of another property"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(RDFSSubPropertyOf))

	vocabulary.Register(ContextReasoningFacts,
		vocabulary.WithDescription("Context is mirrored into the reasoning forest"),
		vocabulary.WithDataType("bool"),
		vocabulary.WithIRI(ReasoningFacts))

	vocabulary.Register(EntryGraphType,
		vocabulary.WithDescription("Graph type of a repository entry"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(GraphType))

	vocabulary.Register(EntryResource,
		vocabulary.WithDescription("Resource described by a repository entry"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(Resource))

	vocabulary.Register(InferredFrom,
		vocabulary.WithDescription("Forest node whose ancestor produced an inferred statement"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(TermsNamespace+"inferredFrom"))
}
