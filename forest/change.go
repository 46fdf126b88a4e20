package forest

import (
	"fmt"
	"sort"
)

// Kind identifies what happened to a forest partition.
type Kind uint8

// Change kinds emitted by partition mutations.
const (
	KindAddTo Kind = iota + 1
	KindAddAll
	KindRemoveFrom
	KindRemove
	KindRemoveAll
)

// String returns the kind name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindAddTo:
		return "add_to"
	case KindAddAll:
		return "add_all"
	case KindRemoveFrom:
		return "remove_from"
	case KindRemove:
		return "remove"
	case KindRemoveAll:
		return "remove_all"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Impact classifies how far a change reaches beyond its payload.
type Impact uint8

const (
	// ImpactLocal means the payload names every node whose ancestry changed.
	ImpactLocal Impact = iota
	// ImpactStructural means descendants of the payload nodes were affected
	// too, e.g. children promoted to roots when their parent was removed.
	ImpactStructural
)

// String returns the impact name.
func (i Impact) String() string {
	if i == ImpactStructural {
		return "structural"
	}
	return "local"
}

// Change describes one structural edit to a forest partition.
type Change struct {
	Kind      Kind
	Partition string
	// Nodes is sorted. For ImpactStructural changes it is not exhaustive.
	Nodes  []string
	Impact Impact
	// Promoted lists children that became roots as a side effect.
	Promoted []string
}

// Escalated returns the bulk kind for structural removals and Kind otherwise.
func (c Change) Escalated() Kind {
	if c.Kind == KindRemove && c.Impact == ImpactStructural {
		return KindRemoveAll
	}
	return c.Kind
}

// Vanished reports whether the payload nodes left the forest, as opposed to
// moving within it.
func (c Change) Vanished() bool {
	return c.Kind == KindRemove || c.Kind == KindRemoveAll
}

// String formats the change for log output.
func (c Change) String() string {
	return fmt.Sprintf("%s[%s](%d nodes, %s)", c.Kind, c.Partition, len(c.Nodes), c.Impact)
}

// NodeSet is an unordered set of node identifiers.
type NodeSet map[string]struct{}

// Add inserts nodes into the set.
func (s NodeSet) Add(nodes ...string) {
	for _, n := range nodes {
		s[n] = struct{}{}
	}
}

// Has reports membership.
func (s NodeSet) Has(node string) bool {
	_, ok := s[node]
	return ok
}

// Sorted returns the members in lexical order.
func (s NodeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
