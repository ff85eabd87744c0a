package crdt

import (
	"sync"

	"github.com/vsmcore/vsmcore/internal/hlc"
)

// ORSetDelta carries one add or one remove as it should be replayed by a
// remote replica.
type ORSetDelta struct {
	Element string
	AddTag  *hlc.Stamp   // set on add
	RemoveTags []hlc.Stamp // set on remove: the tags that were tombstoned
}

// ORSet is an observed-remove set: each element is present iff it has a
// live tag not also present in the tombstone set, so concurrent add/remove
// of the same element never races destructively.
type ORSet struct {
	mu    sync.RWMutex
	clock *hlc.Clock
	live  map[string]map[hlc.Stamp]struct{}
	tomb  map[string]map[hlc.Stamp]struct{}
}

// NewORSet creates an empty set, using clock to mint unique per-element
// tags.
func NewORSet(clock *hlc.Clock) *ORSet {
	return &ORSet{
		clock: clock,
		live:  make(map[string]map[hlc.Stamp]struct{}),
		tomb:  make(map[string]map[hlc.Stamp]struct{}),
	}
}

// Add stamps a fresh tag for element and returns the delta to broadcast.
func (s *ORSet) Add(element string) ORSetDelta {
	tag := s.clock.Tick()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live[element] == nil {
		s.live[element] = make(map[hlc.Stamp]struct{})
	}
	s.live[element][tag] = struct{}{}
	return ORSetDelta{Element: element, AddTag: &tag}
}

// Remove moves every currently-live tag for element to the tombstone set,
// atomically for this replica.
func (s *ORSet) Remove(element string) ORSetDelta {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags := s.live[element]
	if len(tags) == 0 {
		return ORSetDelta{Element: element}
	}
	if s.tomb[element] == nil {
		s.tomb[element] = make(map[hlc.Stamp]struct{})
	}
	removed := make([]hlc.Stamp, 0, len(tags))
	for tag := range tags {
		s.tomb[element][tag] = struct{}{}
		removed = append(removed, tag)
	}
	delete(s.live, element)
	return ORSetDelta{Element: element, RemoveTags: removed}
}

func (s *ORSet) Kind() Kind { return KindORSet }

func (s *ORSet) Merge(other CRDT) CRDT {
	o, ok := other.(*ORSet)
	if !ok {
		return s
	}
	o.mu.RLock()
	liveSnap := cloneTagSets(o.live)
	tombSnap := cloneTagSets(o.tomb)
	o.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	unionTagSets(s.live, liveSnap)
	unionTagSets(s.tomb, tombSnap)
	return s
}

func (s *ORSet) MergeDelta(delta Delta) CRDT {
	d, ok := delta.(ORSetDelta)
	if !ok {
		return s
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.AddTag != nil {
		if s.live[d.Element] == nil {
			s.live[d.Element] = make(map[hlc.Stamp]struct{})
		}
		s.live[d.Element][*d.AddTag] = struct{}{}
	}
	for _, tag := range d.RemoveTags {
		if s.tomb[d.Element] == nil {
			s.tomb[d.Element] = make(map[hlc.Stamp]struct{})
		}
		s.tomb[d.Element][tag] = struct{}{}
	}
	return s
}

// Value is the set of elements with at least one live, non-tombstoned tag.
func (s *ORSet) Value() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	present := make([]string, 0, len(s.live))
	for element, tags := range s.live {
		tombstoned := s.tomb[element]
		live := false
		for tag := range tags {
			if _, dead := tombstoned[tag]; !dead {
				live = true
				break
			}
		}
		if live {
			present = append(present, element)
		}
	}
	return present
}

// CausalContext summarizes per-element tag counts for staleness detection.
func (s *ORSet) CausalContext() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx := make(map[string]int, len(s.live))
	for element, tags := range s.live {
		ctx[element] = len(tags)
	}
	return ctx
}

func (s *ORSet) Clone() CRDT {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &ORSet{
		clock: s.clock,
		live:  cloneTagSets(s.live),
		tomb:  cloneTagSets(s.tomb),
	}
	return clone
}

func (s *ORSet) Equal(other CRDT) bool {
	o, ok := other.(*ORSet)
	if !ok {
		return false
	}
	a := s.Value().([]string)
	b := o.Value().([]string)
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, e := range a {
		set[e] = struct{}{}
	}
	for _, e := range b {
		if _, ok := set[e]; !ok {
			return false
		}
	}
	return true
}

// orsetSnapshot is the JSON-serializable mirror of an ORSet's state. Tag
// sets are keyed by hlc.Stamp in memory, which encoding/json cannot use
// as a map key, so they're flattened to slices here.
type orsetSnapshot struct {
	Live map[string][]hlc.Stamp `json:"live"`
	Tomb map[string][]hlc.Stamp `json:"tomb"`
}

func flattenTagSets(m map[string]map[hlc.Stamp]struct{}) map[string][]hlc.Stamp {
	out := make(map[string][]hlc.Stamp, len(m))
	for element, tags := range m {
		list := make([]hlc.Stamp, 0, len(tags))
		for tag := range tags {
			list = append(list, tag)
		}
		out[element] = list
	}
	return out
}

func unflattenTagSets(m map[string][]hlc.Stamp) map[string]map[hlc.Stamp]struct{} {
	out := make(map[string]map[hlc.Stamp]struct{}, len(m))
	for element, tags := range m {
		inner := make(map[hlc.Stamp]struct{}, len(tags))
		for _, tag := range tags {
			inner[tag] = struct{}{}
		}
		out[element] = inner
	}
	return out
}

func (s *ORSet) snapshot() orsetSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return orsetSnapshot{Live: flattenTagSets(s.live), Tomb: flattenTagSets(s.tomb)}
}

func restoreORSet(clock *hlc.Clock, snap orsetSnapshot) *ORSet {
	return &ORSet{clock: clock, live: unflattenTagSets(snap.Live), tomb: unflattenTagSets(snap.Tomb)}
}

func cloneTagSets(m map[string]map[hlc.Stamp]struct{}) map[string]map[hlc.Stamp]struct{} {
	clone := make(map[string]map[hlc.Stamp]struct{}, len(m))
	for element, tags := range m {
		inner := make(map[hlc.Stamp]struct{}, len(tags))
		for tag := range tags {
			inner[tag] = struct{}{}
		}
		clone[element] = inner
	}
	return clone
}

func unionTagSets(dst, src map[string]map[hlc.Stamp]struct{}) {
	for element, tags := range src {
		if dst[element] == nil {
			dst[element] = make(map[hlc.Stamp]struct{}, len(tags))
		}
		for tag := range tags {
			dst[element][tag] = struct{}{}
		}
	}
}
