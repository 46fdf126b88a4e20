// Package forest maintains single-parent forests of hierarchical relations,
// one per context, and the change records their mutations produce.
//
// A node has at most one parent. When the underlying data asserts several
// parents for the same node the last write wins.
package forest

import (
	"sort"
	"sync"
)

// Partition is the forest of one context. It is safe for concurrent use.
type Partition struct {
	id string

	mu       sync.RWMutex
	toParent map[string]string
	top      NodeSet
	enabled  bool
}

// NewPartition creates an empty partition in bulk-load mode.
func NewPartition(id string) *Partition {
	return &Partition{
		id:       id,
		toParent: make(map[string]string),
		top:      make(NodeSet),
	}
}

// ID returns the partition (context) id.
func (p *Partition) ID() string {
	return p.id
}

// InitAddTo records an edge during bulk load without emitting a change.
// Roots are computed once by InitDone. On an already sealed partition the
// edge is applied like AddTo, still without emission.
func (p *Partition) InitAddTo(child, parent string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.enabled {
		p.link(child, parent)
		return
	}
	p.toParent[child] = parent
}

// InitDone computes the roots, enables change emission and returns an
// AddAll record naming every node of the partition.
func (p *Partition) InitDone() Change {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.top = make(NodeSet)
	for _, parent := range p.toParent {
		if _, isChild := p.toParent[parent]; !isChild {
			p.top.Add(parent)
		}
	}
	p.enabled = true

	return p.change(KindAddAll, p.nodesLocked())
}

// Enabled reports whether InitDone has been called.
func (p *Partition) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}

// AddTo sets parent as the parent of child, replacing any previous parent.
// The returned change is only valid when ok is true, which requires the
// partition to be enabled.
func (p *Partition) AddTo(child, parent string) (Change, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.link(child, parent)
	if !p.enabled {
		return Change{}, false
	}
	return p.change(KindAddTo, []string{child}), true
}

// RemoveFrom detaches child from its parent and makes it a root. The edge is
// dropped whether or not it pointed at parent.
func (p *Partition) RemoveFrom(child, parent string) (Change, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.unlink(child)
	if !p.enabled {
		return Change{}, false
	}
	return p.change(KindRemoveFrom, []string{child}), true
}

// Remove deletes node from the partition. Its children become roots, in
// which case the change is marked ImpactStructural and lists them in
// Promoted.
func (p *Partition) Remove(node string) (Change, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.top, node)
	delete(p.toParent, node)

	var promoted []string
	for child, parent := range p.toParent {
		if parent == node {
			promoted = append(promoted, child)
		}
	}
	for _, child := range promoted {
		delete(p.toParent, child)
		p.top.Add(child)
	}

	if !p.enabled {
		return Change{}, false
	}
	c := p.change(KindRemove, []string{node})
	if len(promoted) > 0 {
		sort.Strings(promoted)
		c.Impact = ImpactStructural
		c.Promoted = promoted
	}
	return c, true
}

// RemoveAll returns the record for retiring the whole partition. The payload
// is the set of roots.
func (p *Partition) RemoveAll() Change {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.change(KindRemoveAll, p.top.Sorted())
}

// Reparent moves child under newParent as one critical section: it reads the
// recorded parent, and when it differs emits RemoveFrom for the old edge and
// AddTo for the new one. An empty newParent detaches child. Nothing is
// emitted while the partition is in bulk-load mode.
func (p *Partition) Reparent(child, newParent string, emit func(Change)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	oldParent, hadParent := p.toParent[child]
	if hadParent && oldParent == newParent {
		return
	}
	if !hadParent && newParent == "" {
		return
	}

	if hadParent {
		p.unlink(child)
		if p.enabled && emit != nil {
			emit(p.change(KindRemoveFrom, []string{child}))
		}
	}
	if newParent != "" {
		p.link(child, newParent)
		if p.enabled && emit != nil {
			emit(p.change(KindAddTo, []string{child}))
		}
	}
}

// InTree reports whether node is a root or has a recorded parent.
func (p *Partition) InTree(node string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.inTreeLocked(node)
}

// Parent returns the recorded parent of node.
func (p *Partition) Parent(node string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	parent, ok := p.toParent[node]
	return parent, ok
}

// Ancestors follows parent links from node and collects every node reached.
// The walk stops at the first parent that is absent or already collected,
// so cyclic data terminates.
func (p *Partition) Ancestors(node string) NodeSet {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make(NodeSet)
	parent, ok := p.toParent[node]
	for ok && !result.Has(parent) {
		result.Add(parent)
		parent, ok = p.toParent[parent]
	}
	return result
}

// Roots returns a copy of the root set.
func (p *Partition) Roots() NodeSet {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(NodeSet, len(p.top))
	for n := range p.top {
		out.Add(n)
	}
	return out
}

// Nodes returns every node of the partition, sorted.
func (p *Partition) Nodes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nodesLocked()
}

// Len returns the number of recorded edges.
func (p *Partition) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.toParent)
}

func (p *Partition) link(child, parent string) {
	p.toParent[child] = parent
	delete(p.top, child)
	if _, hasParent := p.toParent[parent]; !hasParent {
		p.top.Add(parent)
	}
}

func (p *Partition) unlink(child string) {
	delete(p.toParent, child)
	p.top.Add(child)
}

func (p *Partition) inTreeLocked(node string) bool {
	if p.top.Has(node) {
		return true
	}
	_, ok := p.toParent[node]
	return ok
}

func (p *Partition) nodesLocked() []string {
	all := make(NodeSet, len(p.toParent)+len(p.top))
	for child := range p.toParent {
		all.Add(child)
	}
	for root := range p.top {
		all.Add(root)
	}
	return all.Sorted()
}

func (p *Partition) change(kind Kind, nodes []string) Change {
	return Change{Kind: kind, Partition: p.id, Nodes: nodes}
}
