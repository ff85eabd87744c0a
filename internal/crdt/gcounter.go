package crdt

import "sync"

// GCounterDelta carries one node's updated running total.
type GCounterDelta struct {
	NodeID string
	Value  uint64
}

// GCounter is a grow-only counter: state is node_id -> non-negative int,
// merged by pointwise max, valued by the sum of all entries.
type GCounter struct {
	mu     sync.RWMutex
	nodeID string
	counts map[string]uint64
}

// NewGCounter creates an empty counter owned by nodeID.
func NewGCounter(nodeID string) *GCounter {
	return &GCounter{
		nodeID: nodeID,
		counts: make(map[string]uint64),
	}
}

// Increment bumps this replica's own entry by v and returns the delta to
// broadcast.
func (g *GCounter) Increment(v uint64) GCounterDelta {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counts[g.nodeID] += v
	return GCounterDelta{NodeID: g.nodeID, Value: g.counts[g.nodeID]}
}

func (g *GCounter) Kind() Kind { return KindGCounter }

// Merge takes the pointwise max of every entry in other.
func (g *GCounter) Merge(other CRDT) CRDT {
	o, ok := other.(*GCounter)
	if !ok {
		return g
	}
	o.mu.RLock()
	snapshot := make(map[string]uint64, len(o.counts))
	for k, v := range o.counts {
		snapshot[k] = v
	}
	o.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	for nodeID, v := range snapshot {
		if v > g.counts[nodeID] {
			g.counts[nodeID] = v
		}
	}
	return g
}

// MergeDelta applies a single node's updated total if it exceeds what this
// replica has already observed for that node.
func (g *GCounter) MergeDelta(delta Delta) CRDT {
	d, ok := delta.(GCounterDelta)
	if !ok {
		return g
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if d.Value > g.counts[d.NodeID] {
		g.counts[d.NodeID] = d.Value
	}
	return g
}

// Value is the sum of every node's entry.
func (g *GCounter) Value() any {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var total uint64
	for _, v := range g.counts {
		total += v
	}
	return total
}

// CausalContext is the full per-node count map, the compact summary an
// anti-entropy digest can diff against a peer's.
func (g *GCounter) CausalContext() any {
	g.mu.RLock()
	defer g.mu.RUnlock()
	snapshot := make(map[string]uint64, len(g.counts))
	for k, v := range g.counts {
		snapshot[k] = v
	}
	return snapshot
}

// Clone returns an independent deep copy.
func (g *GCounter) Clone() CRDT {
	g.mu.RLock()
	defer g.mu.RUnlock()
	clone := &GCounter{nodeID: g.nodeID, counts: make(map[string]uint64, len(g.counts))}
	for k, v := range g.counts {
		clone.counts[k] = v
	}
	return clone
}

func (g *GCounter) Equal(other CRDT) bool {
	o, ok := other.(*GCounter)
	if !ok {
		return false
	}
	return g.Value().(uint64) == o.Value().(uint64)
}

// gcounterSnapshot is the JSON-serializable mirror of a GCounter's state,
// used to persist and reconstruct an instance across a restart.
type gcounterSnapshot struct {
	NodeID string            `json:"node_id"`
	Counts map[string]uint64 `json:"counts"`
}

func (g *GCounter) snapshot() gcounterSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	counts := make(map[string]uint64, len(g.counts))
	for k, v := range g.counts {
		counts[k] = v
	}
	return gcounterSnapshot{NodeID: g.nodeID, Counts: counts}
}

func restoreGCounter(snap gcounterSnapshot) *GCounter {
	counts := snap.Counts
	if counts == nil {
		counts = make(map[string]uint64)
	}
	return &GCounter{nodeID: snap.NodeID, counts: counts}
}
