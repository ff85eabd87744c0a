package crdt

import "testing"

func TestGCounter_IncrementAccumulates(t *testing.T) {
	g := NewGCounter("node-a")
	g.Increment(3)
	g.Increment(4)
	if got := g.Value().(uint64); got != 7 {
		t.Errorf("Value() = %d, want 7", got)
	}
}

func TestGCounter_MergeTakesPointwiseMax(t *testing.T) {
	a := NewGCounter("node-a")
	a.Increment(5)
	b := NewGCounter("node-b")
	b.Increment(9)

	a.Merge(b)
	if got := a.Value().(uint64); got != 14 {
		t.Errorf("Value() after merge = %d, want 14 (5+9)", got)
	}

	// Merging again must not double-count (idempotent).
	a.Merge(b)
	if got := a.Value().(uint64); got != 14 {
		t.Errorf("Value() after repeated merge = %d, want 14 (idempotent)", got)
	}
}

func TestGCounter_MergeDeltaIgnoresStaleUpdate(t *testing.T) {
	g := NewGCounter("node-a")
	g.Increment(10)
	g.MergeDelta(GCounterDelta{NodeID: "node-a", Value: 3}) // stale — behind what we've already seen
	if got := g.Value().(uint64); got != 10 {
		t.Errorf("Value() = %d, want 10 (stale delta ignored)", got)
	}
}

func TestGCounter_ConvergesRegardlessOfDeltaOrder(t *testing.T) {
	deltas := []GCounterDelta{
		{NodeID: "a", Value: 2},
		{NodeID: "b", Value: 5},
		{NodeID: "c", Value: 1},
	}

	forward := NewGCounter("x")
	for _, d := range deltas {
		forward.MergeDelta(d)
	}

	backward := NewGCounter("x")
	for i := len(deltas) - 1; i >= 0; i-- {
		backward.MergeDelta(deltas[i])
	}

	if !forward.Equal(backward) {
		t.Errorf("replicas diverged: forward=%v backward=%v", forward.Value(), backward.Value())
	}
}
