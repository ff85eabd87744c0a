package crdt

import "testing"

func TestPNCounter_IncrementAndDecrement(t *testing.T) {
	c := NewPNCounter("node-a")
	c.Increment(10)
	c.Decrement(4)
	if got := c.Value().(int64); got != 6 {
		t.Errorf("Value() = %d, want 6", got)
	}
}

func TestPNCounter_MergeCombinesBothSides(t *testing.T) {
	a := NewPNCounter("node-a")
	a.Increment(10)
	a.Decrement(2)

	b := NewPNCounter("node-b")
	b.Increment(3)
	b.Decrement(1)

	a.Merge(b)
	if got := a.Value().(int64); got != 10 {
		t.Errorf("Value() after merge = %d, want 10 ((10+3)-(2+1))", got)
	}
}

func TestPNCounter_MergeDeltaAppliesToCorrectSide(t *testing.T) {
	c := NewPNCounter("node-a")
	c.MergeDelta(PNCounterDelta{NodeID: "node-b", Decrement: false, SideValue: 5})
	c.MergeDelta(PNCounterDelta{NodeID: "node-b", Decrement: true, SideValue: 2})
	if got := c.Value().(int64); got != 3 {
		t.Errorf("Value() = %d, want 3", got)
	}
}
