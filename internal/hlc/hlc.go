// Package hlc implements a hybrid logical clock: a wall-clock timestamp
// paired with a logical counter, preserving causality across nodes with
// loosely synchronized clocks.
package hlc

import (
	"fmt"
	"sync"
	"time"
)

// Stamp is an immutable HLC value: (physical_ms, logical_counter, node_id).
type Stamp struct {
	Ts      int64  // physical time in milliseconds
	Counter uint64 // logical counter, disambiguates same-millisecond events
	NodeID  string
}

// String renders the stamp for logs and wire payloads.
func (s Stamp) String() string {
	return fmt.Sprintf("%d.%d@%s", s.Ts, s.Counter, s.NodeID)
}

// Ordering is the result of comparing two stamps.
type Ordering int

const (
	Less Ordering = iota - 1
	Equal
	Greater
)

// Compare defines the total order over stamps: lexicographic on
// (Ts, Counter, NodeID).
func (s Stamp) Compare(other Stamp) Ordering {
	switch {
	case s.Ts != other.Ts:
		return cmpInt64(s.Ts, other.Ts)
	case s.Counter != other.Counter:
		return cmpUint64(s.Counter, other.Counter)
	case s.NodeID != other.NodeID:
		if s.NodeID < other.NodeID {
			return Less
		}
		return Greater
	default:
		return Equal
	}
}

func cmpInt64(a, b int64) Ordering {
	if a < b {
		return Less
	}
	if a > b {
		return Greater
	}
	return Equal
}

func cmpUint64(a, b uint64) Ordering {
	if a < b {
		return Less
	}
	if a > b {
		return Greater
	}
	return Equal
}

// Clock is a node-local hybrid logical clock. Safe for concurrent use.
type Clock struct {
	mu     sync.Mutex
	last   Stamp
	nodeID string
	nowMs  func() int64 // injectable for tests
}

// New creates a clock for nodeID, seeded at the current wall-clock time.
// Clock state is not persisted across restarts; causality with peers is
// re-established as soon as a remote stamp is received.
func New(nodeID string) *Clock {
	return &Clock{
		nodeID: nodeID,
		nowMs:  func() int64 { return time.Now().UnixMilli() },
		last:   Stamp{NodeID: nodeID},
	}
}

// Tick advances the clock for a local event and returns the new stamp.
func (c *Clock) Tick() Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowMs()
	if now > c.last.Ts {
		c.last = Stamp{Ts: now, Counter: 0, NodeID: c.nodeID}
	} else {
		c.last = Stamp{Ts: c.last.Ts, Counter: c.last.Counter + 1, NodeID: c.nodeID}
	}
	return c.last
}

// Receive merges a remote stamp into the clock on message receipt and
// returns the resulting local stamp.
func (c *Clock) Receive(remote Stamp) Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowMs()
	m := now
	if c.last.Ts > m {
		m = c.last.Ts
	}
	if remote.Ts > m {
		m = remote.Ts
	}

	var counter uint64
	switch {
	case m == c.last.Ts && m == remote.Ts:
		counter = maxUint64(c.last.Counter, remote.Counter) + 1
	case m == c.last.Ts:
		counter = c.last.Counter + 1
	case m == remote.Ts:
		counter = remote.Counter + 1
	default:
		counter = 0
	}

	c.last = Stamp{Ts: m, Counter: counter, NodeID: c.nodeID}
	return c.last
}

// Last returns the most recently issued stamp without advancing the clock.
func (c *Clock) Last() Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
