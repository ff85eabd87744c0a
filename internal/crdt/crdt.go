// Package crdt implements the four conflict-free replicated data types
// named by the context store: g_counter, pn_counter, or_set, and
// lww_register. Every mutation and merge is infallible by construction —
// only the store layer that persists and transmits them can fail.
package crdt

// Kind identifies which CRDT semantics an instance follows.
type Kind string

const (
	KindGCounter     Kind = "g_counter"
	KindPNCounter    Kind = "pn_counter"
	KindORSet        Kind = "or_set"
	KindLWWRegister  Kind = "lww_register"
)

// Delta is an opaque, mergeable fragment of a CRDT's state, produced by a
// mutation and broadcast instead of the full state.
type Delta interface{}

// CRDT is the common contract every named kind satisfies. Update and Merge
// never fail for data reasons — a merge_conflict can never legitimately
// occur, by the convergence property of the kind's merge function.
type CRDT interface {
	Kind() Kind

	// Merge folds another replica's state (or a delta from it) into this
	// one. Commutative, associative, and idempotent.
	Merge(other CRDT) CRDT

	// MergeDelta folds a delta produced by Mutate elsewhere into this
	// replica. Cheaper than Merge when only a fragment changed.
	MergeDelta(delta Delta) CRDT

	// Value returns the kind's externally visible value.
	Value() any

	// CausalContext returns a compact summary of what this replica has
	// observed, used by the anti-entropy digest to detect staleness.
	CausalContext() any

	// Clone returns a deep copy, used when building a fresh replica to
	// apply a remote delta or full state against.
	Clone() CRDT

	// Equal reports whether two replicas hold the same value.
	Equal(other CRDT) bool
}
