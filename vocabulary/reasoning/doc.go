// Package reasoning provides the predicates the reasoning subsystem reads
// from repository metadata: the hierarchical relations mirrored into forests,
// the marker that flags a context as fact enabled, and the entry
// descriptors used to resolve entries.
//
// Import this package to auto-register predicates:
//
//	import _ "github.com/c360studio/semreason/vocabulary/reasoning"
package reasoning
