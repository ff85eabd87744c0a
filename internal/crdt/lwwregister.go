package crdt

import (
	"fmt"
	"sync"

	"github.com/vsmcore/vsmcore/internal/hlc"
)

// LWWRegisterDelta is the full state of a last-writer-wins register; a
// register has no sub-state smaller than its whole value, so its delta and
// its state coincide.
type LWWRegisterDelta struct {
	Value  any
	Ts     int64
	NodeID string
}

// LWWRegister holds a single value, resolved on conflict by timestamp,
// then node_id, then value, in that order.
type LWWRegister struct {
	mu     sync.RWMutex
	clock  *hlc.Clock
	value  any
	ts     int64
	nodeID string
}

// NewLWWRegister creates an unset register owned by nodeID.
func NewLWWRegister(clock *hlc.Clock, nodeID string) *LWWRegister {
	return &LWWRegister{clock: clock, nodeID: nodeID}
}

// Set stamps v with a fresh timestamp and returns the delta to broadcast.
func (r *LWWRegister) Set(v any) LWWRegisterDelta {
	stamp := r.clock.Tick()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.value, r.ts, r.nodeID = v, stamp.Ts, r.nodeID
	return LWWRegisterDelta{Value: v, Ts: stamp.Ts, NodeID: r.nodeID}
}

func (r *LWWRegister) Kind() Kind { return KindLWWRegister }

func (r *LWWRegister) Merge(other CRDT) CRDT {
	o, ok := other.(*LWWRegister)
	if !ok {
		return r
	}
	o.mu.RLock()
	d := LWWRegisterDelta{Value: o.value, Ts: o.ts, NodeID: o.nodeID}
	o.mu.RUnlock()
	return r.MergeDelta(d)
}

func (r *LWWRegister) MergeDelta(delta Delta) CRDT {
	d, ok := delta.(LWWRegisterDelta)
	if !ok {
		return r
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if winsOver(d, LWWRegisterDelta{Value: r.value, Ts: r.ts, NodeID: r.nodeID}) {
		r.value, r.ts, r.nodeID = d.Value, d.Ts, d.NodeID
	}
	return r
}

// winsOver reports whether a should replace b under the register's
// tie-break order: larger ts, then larger node_id, then larger value
// (compared by string rendering, since the register's payload type is
// open).
func winsOver(a, b LWWRegisterDelta) bool {
	if a.Ts != b.Ts {
		return a.Ts > b.Ts
	}
	if a.NodeID != b.NodeID {
		return a.NodeID > b.NodeID
	}
	return fmtCompare(a.Value, b.Value) > 0
}

func fmtCompare(a, b any) int {
	as, bs := toComparable(a), toComparable(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

// toComparable renders any register payload as a string so the final
// tie-break ("prefer larger value") applies regardless of payload type,
// not only to strings.
func toComparable(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func (r *LWWRegister) Value() any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value
}

func (r *LWWRegister) CausalContext() any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return LWWRegisterDelta{Value: r.value, Ts: r.ts, NodeID: r.nodeID}
}

func (r *LWWRegister) Clone() CRDT {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &LWWRegister{clock: r.clock, value: r.value, ts: r.ts, nodeID: r.nodeID}
}

func (r *LWWRegister) Equal(other CRDT) bool {
	o, ok := other.(*LWWRegister)
	if !ok {
		return false
	}
	return r.Value() == o.Value()
}

// lwwregisterSnapshot is the JSON-serializable mirror of an LWWRegister's
// state.
type lwwregisterSnapshot struct {
	Value  any    `json:"value"`
	Ts     int64  `json:"ts"`
	NodeID string `json:"node_id"`
}

func (r *LWWRegister) snapshot() lwwregisterSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lwwregisterSnapshot{Value: r.value, Ts: r.ts, NodeID: r.nodeID}
}

func restoreLWWRegister(clock *hlc.Clock, snap lwwregisterSnapshot) *LWWRegister {
	return &LWWRegister{clock: clock, value: snap.Value, ts: snap.Ts, nodeID: snap.NodeID}
}
