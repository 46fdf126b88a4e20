package forest

import (
	"errors"
	"sort"
	"sync"
)

// ErrUnknownPartition is returned when retiring a partition that does not exist.
var ErrUnknownPartition = errors.New("unknown forest partition")

// Index is the collection of partitions keyed by context id. Node lookups go
// through a node to partition reverse index instead of scanning every
// partition.
type Index struct {
	mu         sync.RWMutex
	partitions map[string]*Partition

	ownersMu sync.Mutex
	owners   map[string]map[string]struct{}
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		partitions: make(map[string]*Partition),
		owners:     make(map[string]map[string]struct{}),
	}
}

// AddPartition returns the partition for id, creating it if needed.
func (x *Index) AddPartition(id string) *Partition {
	x.mu.Lock()
	defer x.mu.Unlock()

	p, ok := x.partitions[id]
	if !ok {
		p = NewPartition(id)
		x.partitions[id] = p
	}
	return p
}

// Attach installs a partition that was loaded outside the index, replacing
// any partition with the same id.
func (x *Index) Attach(p *Partition) {
	x.mu.Lock()
	x.partitions[p.ID()] = p
	x.mu.Unlock()

	x.claim(p.ID(), p.Nodes()...)
}

// Partition returns the partition for id.
func (x *Index) Partition(id string) (*Partition, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	p, ok := x.partitions[id]
	return p, ok
}

// Partitions returns the ids of all partitions, sorted.
func (x *Index) Partitions() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	ids := make([]string, 0, len(x.partitions))
	for id := range x.partitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InitAddTo records a bulk-load edge in partition id, creating the partition.
func (x *Index) InitAddTo(child, parent, id string) {
	x.AddPartition(id).InitAddTo(child, parent)
	x.claim(id, child, parent)
}

// InitDone seals every partition and returns their AddAll records.
func (x *Index) InitDone() []Change {
	ids := x.Partitions()
	changes := make([]Change, 0, len(ids))
	for _, id := range ids {
		if p, ok := x.Partition(id); ok {
			changes = append(changes, p.InitDone())
		}
	}
	return changes
}

// AddTo routes to partition id. Unknown partitions yield no change.
func (x *Index) AddTo(child, parent, id string) (Change, bool) {
	p, ok := x.Partition(id)
	if !ok {
		return Change{}, false
	}
	c, emitted := p.AddTo(child, parent)
	x.claim(id, child, parent)
	return c, emitted
}

// RemoveFrom routes to partition id. Unknown partitions yield no change.
func (x *Index) RemoveFrom(child, parent, id string) (Change, bool) {
	p, ok := x.Partition(id)
	if !ok {
		return Change{}, false
	}
	c, emitted := p.RemoveFrom(child, parent)
	x.claim(id, child)
	return c, emitted
}

// Remove routes to partition id. Unknown partitions yield no change.
func (x *Index) Remove(node, id string) (Change, bool) {
	p, ok := x.Partition(id)
	if !ok {
		return Change{}, false
	}
	c, emitted := p.Remove(node)
	x.release(id, p, node)
	return c, emitted
}

// Reparent routes an atomic parent replacement to partition id and reports
// whether the partition exists.
func (x *Index) Reparent(child, newParent, id string, emit func(Change)) bool {
	p, ok := x.Partition(id)
	if !ok {
		return false
	}
	p.Reparent(child, newParent, emit)
	if newParent != "" {
		x.claim(id, child, newParent)
	}
	return true
}

// RemoveAllIn deletes partition id and returns its RemoveAll record.
func (x *Index) RemoveAllIn(id string) (Change, error) {
	x.mu.Lock()
	p, ok := x.partitions[id]
	if ok {
		delete(x.partitions, id)
	}
	x.mu.Unlock()

	if !ok {
		return Change{}, ErrUnknownPartition
	}
	c := p.RemoveAll()
	x.release(id, nil, p.Nodes()...)
	return c, nil
}

// InTree reports whether any partition holds node.
func (x *Index) InTree(node string) bool {
	_, ok := x.locate(node)
	return ok
}

// Parent returns the parent of node in the partition holding it.
func (x *Index) Parent(node string) (string, bool) {
	p, ok := x.locate(node)
	if !ok {
		return "", false
	}
	return p.Parent(node)
}

// Ancestors returns the ancestors of node in the partition holding it, or
// false when no partition holds node.
func (x *Index) Ancestors(node string) (NodeSet, bool) {
	p, ok := x.locate(node)
	if !ok {
		return nil, false
	}
	return p.Ancestors(node), true
}

// Locate returns the id of the partition holding node.
func (x *Index) Locate(node string) (string, bool) {
	p, ok := x.locate(node)
	if !ok {
		return "", false
	}
	return p.ID(), true
}

// locate picks the lowest partition id that still holds node. Reverse index
// entries can be stale, so membership is always confirmed on the partition.
func (x *Index) locate(node string) (*Partition, bool) {
	x.ownersMu.Lock()
	ids := make([]string, 0, len(x.owners[node]))
	for id := range x.owners[node] {
		ids = append(ids, id)
	}
	x.ownersMu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		p, ok := x.Partition(id)
		if ok && p.InTree(node) {
			return p, true
		}
	}
	return nil, false
}

func (x *Index) claim(id string, nodes ...string) {
	x.ownersMu.Lock()
	defer x.ownersMu.Unlock()

	for _, n := range nodes {
		set, ok := x.owners[n]
		if !ok {
			set = make(map[string]struct{}, 1)
			x.owners[n] = set
		}
		set[id] = struct{}{}
	}
}

// release drops id from the owners of nodes. When live is set, nodes that
// live still holds keep their entry: a concurrent edit may have re-added
// them between the partition update and this call.
func (x *Index) release(id string, live *Partition, nodes ...string) {
	x.ownersMu.Lock()
	defer x.ownersMu.Unlock()

	for _, n := range nodes {
		if live != nil && live.InTree(n) {
			continue
		}
		set, ok := x.owners[n]
		if !ok {
			continue
		}
		delete(set, id)
		if len(set) == 0 {
			delete(x.owners, n)
		}
	}
}
