package crdt

import (
	"testing"

	"github.com/vsmcore/vsmcore/internal/hlc"
)

func TestLWWRegister_SetThenValue(t *testing.T) {
	r := NewLWWRegister(hlc.New("node-a"), "node-a")
	r.Set("hello")
	if got := r.Value(); got != "hello" {
		t.Errorf("Value() = %v, want %q", got, "hello")
	}
}

func TestLWWRegister_MergeDeltaHigherTsWins(t *testing.T) {
	r := NewLWWRegister(hlc.New("node-a"), "node-a")
	r.MergeDelta(LWWRegisterDelta{Value: "old", Ts: 10, NodeID: "node-b"})
	r.MergeDelta(LWWRegisterDelta{Value: "new", Ts: 20, NodeID: "node-b"})
	if got := r.Value(); got != "new" {
		t.Errorf("Value() = %v, want %q (higher ts)", got, "new")
	}
	// A lower-ts delta arriving after must not win.
	r.MergeDelta(LWWRegisterDelta{Value: "stale", Ts: 15, NodeID: "node-c"})
	if got := r.Value(); got != "new" {
		t.Errorf("Value() = %v, want %q (stale delta rejected)", got, "new")
	}
}

func TestLWWRegister_TieBreaksByNodeIDThenValue(t *testing.T) {
	r := NewLWWRegister(hlc.New("node-a"), "node-a")
	r.MergeDelta(LWWRegisterDelta{Value: "from-a", Ts: 100, NodeID: "node-a"})
	r.MergeDelta(LWWRegisterDelta{Value: "from-z", Ts: 100, NodeID: "node-z"})
	if got := r.Value(); got != "from-z" {
		t.Errorf("Value() = %v, want %q (node_id tie-break)", got, "from-z")
	}
	r.MergeDelta(LWWRegisterDelta{Value: "from-zz", Ts: 100, NodeID: "node-z"})
	if got := r.Value(); got != "from-zz" {
		t.Errorf("Value() = %v, want %q (value tie-break on equal ts and node_id)", got, "from-zz")
	}
}

func TestLWWRegister_MergeIsCommutative(t *testing.T) {
	deltas := []LWWRegisterDelta{
		{Value: "a", Ts: 1, NodeID: "n1"},
		{Value: "b", Ts: 2, NodeID: "n1"},
		{Value: "c", Ts: 2, NodeID: "n2"},
	}

	forward := NewLWWRegister(hlc.New("x"), "x")
	for _, d := range deltas {
		forward.MergeDelta(d)
	}

	backward := NewLWWRegister(hlc.New("x"), "x")
	for i := len(deltas) - 1; i >= 0; i-- {
		backward.MergeDelta(deltas[i])
	}

	if !forward.Equal(backward) {
		t.Errorf("replicas diverged: forward=%v backward=%v", forward.Value(), backward.Value())
	}
}
