package crdt

// PNCounterDelta carries an update to one side (increments or
// decrements) of a PNCounter.
type PNCounterDelta struct {
	NodeID      string
	Decrement   bool
	SideValue   uint64
}

// PNCounter supports both increment and decrement by composing two
// GCounters: value = value(P) - value(N).
type PNCounter struct {
	nodeID string
	p, n   *GCounter
}

// NewPNCounter creates a zero-valued counter owned by nodeID.
func NewPNCounter(nodeID string) *PNCounter {
	return &PNCounter{
		nodeID: nodeID,
		p:      NewGCounter(nodeID),
		n:      NewGCounter(nodeID),
	}
}

// Increment bumps the positive side.
func (c *PNCounter) Increment(v uint64) PNCounterDelta {
	d := c.p.Increment(v)
	return PNCounterDelta{NodeID: d.NodeID, Decrement: false, SideValue: d.Value}
}

// Decrement bumps the negative side.
func (c *PNCounter) Decrement(v uint64) PNCounterDelta {
	d := c.n.Increment(v)
	return PNCounterDelta{NodeID: d.NodeID, Decrement: true, SideValue: d.Value}
}

func (c *PNCounter) Kind() Kind { return KindPNCounter }

func (c *PNCounter) Merge(other CRDT) CRDT {
	o, ok := other.(*PNCounter)
	if !ok {
		return c
	}
	c.p.Merge(o.p)
	c.n.Merge(o.n)
	return c
}

func (c *PNCounter) MergeDelta(delta Delta) CRDT {
	d, ok := delta.(PNCounterDelta)
	if !ok {
		return c
	}
	gd := GCounterDelta{NodeID: d.NodeID, Value: d.SideValue}
	if d.Decrement {
		c.n.MergeDelta(gd)
	} else {
		c.p.MergeDelta(gd)
	}
	return c
}

// Value is value(P) - value(N), expressed as a signed int64.
func (c *PNCounter) Value() any {
	return int64(c.p.Value().(uint64)) - int64(c.n.Value().(uint64))
}

func (c *PNCounter) CausalContext() any {
	return map[string]any{"p": c.p.CausalContext(), "n": c.n.CausalContext()}
}

func (c *PNCounter) Clone() CRDT {
	return &PNCounter{
		nodeID: c.nodeID,
		p:      c.p.Clone().(*GCounter),
		n:      c.n.Clone().(*GCounter),
	}
}

func (c *PNCounter) Equal(other CRDT) bool {
	o, ok := other.(*PNCounter)
	if !ok {
		return false
	}
	return c.Value().(int64) == o.Value().(int64)
}

// pncounterSnapshot is the JSON-serializable mirror of a PNCounter's
// state: its two composed GCounters.
type pncounterSnapshot struct {
	NodeID string           `json:"node_id"`
	P      gcounterSnapshot `json:"p"`
	N      gcounterSnapshot `json:"n"`
}

func (c *PNCounter) snapshot() pncounterSnapshot {
	return pncounterSnapshot{NodeID: c.nodeID, P: c.p.snapshot(), N: c.n.snapshot()}
}

func restorePNCounter(snap pncounterSnapshot) *PNCounter {
	return &PNCounter{nodeID: snap.NodeID, p: restoreGCounter(snap.P), n: restoreGCounter(snap.N)}
}
