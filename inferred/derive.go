// Package inferred computes and stores the derived metadata graph of an
// entry: every statement whose object is a forest node is replaced by one
// statement per ancestor of that node.
package inferred

import (
	"github.com/c360studio/semreason/forest"
	"github.com/c360studio/semreason/graph"
)

// Ancestry answers ancestor queries across all forest partitions.
type Ancestry interface {
	Ancestors(node string) (forest.NodeSet, bool)
}

// Derive substitutes ancestors for the objects of md. Literal objects and
// objects outside every forest contribute nothing. The result is placed in
// named graph graphIRI and has no duplicate triples.
func Derive(md graph.Graph, ancestry Ancestry, graphIRI string) graph.Graph {
	var out graph.Graph
	if ancestry == nil {
		return out
	}
	for _, st := range md {
		if st.Literal {
			continue
		}
		ancestors, ok := ancestry.Ancestors(st.Object)
		if !ok {
			continue
		}
		for _, a := range ancestors.Sorted() {
			out.Add(graph.Statement{
				Subject:   st.Subject,
				Predicate: st.Predicate,
				Object:    a,
				Context:   graphIRI,
			})
		}
	}
	return out
}
