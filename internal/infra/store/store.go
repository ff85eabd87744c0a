// Package store implements the tiered context store: an in-memory hot
// tier, an in-memory warm tier, and a SQLite-backed cold tier, with
// access-driven promotion and size-driven demotion between them.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vsmcore/vsmcore/internal/errs"
	"github.com/vsmcore/vsmcore/internal/infra/metrics"
)

// ErrNotFound is returned by Get when the key exists in no tier.
var ErrNotFound = errs.New(errs.KindNotFound, errors.New("store: not found"), nil)

// Tier identifies which layer currently holds an entry.
type Tier int

const (
	TierHot Tier = iota
	TierWarm
	TierCold
)

func (t Tier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierWarm:
		return "warm"
	case TierCold:
		return "cold"
	default:
		return "unknown"
	}
}

// Config holds the tiered store's tunables.
type Config struct {
	HotLimit         int           // default 1000
	WarmLimit        int           // default 10000
	AccessThreshold  int           // default 10
	DecayInterval    time.Duration // default 60s
	ColdPath         string        // sqlite file path for the cold tier
}

// DefaultConfig returns the documented default tunables.
func DefaultConfig() Config {
	return Config{
		HotLimit:        1000,
		WarmLimit:       10000,
		AccessThreshold: 10,
		DecayInterval:   60 * time.Second,
	}
}

type entry struct {
	value  []byte
	access int
	seq    uint64 // insertion order into the current in-memory tier, for deterministic eviction tie-breaks
}

// Stats summarizes per-tier entry counts.
type Stats struct {
	HotCount  int `json:"hot_count"`
	WarmCount int `json:"warm_count"`
	ColdCount int `json:"cold_count"`
}

// Store is a three-tier keyed store: hot and warm live in memory, cold is
// backed by SQLite. Entries drift down under size pressure and back up as
// they accumulate accesses.
type Store struct {
	mu      sync.Mutex
	config  Config
	hot     map[string]*entry
	warm    map[string]*entry
	cold    *coldTier
	nextSeq uint64
}

// Open creates a Store, opening the cold tier's SQLite database at
// config.ColdPath (created if absent).
func Open(config Config) (*Store, error) {
	if config.HotLimit <= 0 {
		config.HotLimit = DefaultConfig().HotLimit
	}
	if config.WarmLimit <= 0 {
		config.WarmLimit = DefaultConfig().WarmLimit
	}
	if config.AccessThreshold <= 0 {
		config.AccessThreshold = DefaultConfig().AccessThreshold
	}
	if config.DecayInterval <= 0 {
		config.DecayInterval = DefaultConfig().DecayInterval
	}

	cold, err := openCold(config.ColdPath)
	if err != nil {
		return nil, fmt.Errorf("open cold tier: %w", err)
	}

	return &Store{
		config: config,
		hot:    make(map[string]*entry),
		warm:   make(map[string]*entry),
		cold:   cold,
	}, nil
}

// Close releases the cold tier's database handle.
func (s *Store) Close() error {
	if s.cold == nil {
		return nil
	}
	return s.cold.close()
}

// Put writes a value. Writes always land in the hot tier; any stale copy
// in warm/cold is dropped so a key has one authoritative home.
func (s *Store) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.warm, key)
	if err := s.cold.delete(key); err != nil {
		return fmt.Errorf("evict cold copy of %q: %w", key, err)
	}

	s.nextSeq++
	s.hot[key] = &entry{value: value, seq: s.nextSeq}
	s.demoteHotLocked()
	s.reportHotWarmMetricsLocked()
	return nil
}

// reportHotWarmMetricsLocked refreshes the hot/warm tier gauges. Cold is
// reported separately, from DecayOnce, since counting it means a query
// against the SQLite tier rather than a map length. Caller must hold
// s.mu.
func (s *Store) reportHotWarmMetricsLocked() {
	metrics.StoreTierCount.WithLabelValues(TierHot.String()).Set(float64(len(s.hot)))
	metrics.StoreTierCount.WithLabelValues(TierWarm.String()).Set(float64(len(s.warm)))
}

// Get returns the value for key, promoting it toward the hot tier as its
// access count crosses the configured threshold.
func (s *Store) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.hot[key]; ok {
		e.access++
		return e.value, nil
	}

	if e, ok := s.warm[key]; ok {
		e.access++
		if e.access >= s.config.AccessThreshold {
			delete(s.warm, key)
			s.hot[key] = e
			s.demoteHotLocked()
			s.reportHotWarmMetricsLocked()
		}
		return e.value, nil
	}

	value, access, ok, err := s.cold.getWithAccess(key)
	if err != nil {
		return nil, fmt.Errorf("read cold tier key %q: %w", key, err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	access++
	if access >= s.config.AccessThreshold {
		if err := s.cold.delete(key); err != nil {
			return nil, fmt.Errorf("promote %q out of cold tier: %w", key, err)
		}
		s.nextSeq++
		s.warm[key] = &entry{value: value, access: access, seq: s.nextSeq}
		s.demoteWarmLocked()
		s.reportHotWarmMetricsLocked()
	} else if err := s.cold.bumpAccess(key, access); err != nil {
		return nil, fmt.Errorf("update cold tier access count for %q: %w", key, err)
	}
	return value, nil
}

// Delete removes key from whichever tier holds it.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.hot, key)
	delete(s.warm, key)
	s.reportHotWarmMetricsLocked()
	return s.cold.delete(key)
}

// Keys returns all keys across all tiers.
func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.hot)+len(s.warm))
	for k := range s.hot {
		keys = append(keys, k)
	}
	for k := range s.warm {
		keys = append(keys, k)
	}
	coldKeys, err := s.cold.keys()
	if err != nil {
		return nil, fmt.Errorf("list cold tier keys: %w", err)
	}
	return append(keys, coldKeys...), nil
}

// Stats reports per-tier entry counts.
func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coldCount, err := s.cold.count()
	if err != nil {
		return Stats{}, fmt.Errorf("count cold tier: %w", err)
	}
	return Stats{
		HotCount:  len(s.hot),
		WarmCount: len(s.warm),
		ColdCount: coldCount,
	}, nil
}

// DecayOnce runs a single decay pass: every access counter currently
// tracked in hot/warm drops by one. The underlying value is untouched —
// only the promotion bookkeeping ages out.
func (s *Store) DecayOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()

	decay := func(m map[string]*entry) {
		for _, e := range m {
			if e.access > 0 {
				e.access--
			}
		}
	}
	decay(s.hot)
	decay(s.warm)

	if coldCount, err := s.cold.count(); err == nil {
		metrics.StoreTierCount.WithLabelValues(TierCold.String()).Set(float64(coldCount))
	}
}

// Run starts the background decay loop. Call as a goroutine; it returns
// when stop is closed.
func (s *Store) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(s.config.DecayInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.DecayOnce()
		}
	}
}

// demoteHotLocked evicts the least-accessed hot entry to warm until hot is
// within its size limit. Caller must hold s.mu.
func (s *Store) demoteHotLocked() {
	for len(s.hot) > s.config.HotLimit {
		key, e := leastAccessed(s.hot)
		if key == "" {
			return
		}
		delete(s.hot, key)
		s.warm[key] = e
	}
	s.demoteWarmLocked()
}

// demoteWarmLocked evicts the least-accessed warm entry to cold until warm
// is within its size limit. Caller must hold s.mu.
func (s *Store) demoteWarmLocked() {
	for len(s.warm) > s.config.WarmLimit {
		key, e := leastAccessed(s.warm)
		if key == "" {
			return
		}
		delete(s.warm, key)
		if err := s.cold.put(key, e.value, e.access); err != nil {
			// Demotion runs inside Put/Get; put the entry back rather than
			// lose it, and leave cold-tier errors to surface on direct use.
			s.warm[key] = e
			return
		}
	}
}

// leastAccessed returns the key with the smallest access count in m,
// breaking ties by earliest insertion (lowest seq) so eviction order is
// deterministic even when every candidate has the same access count —
// as happens with a batch of freshly-Put entries. Returns "" if m is
// empty.
func leastAccessed(m map[string]*entry) (string, *entry) {
	var bestKey string
	var bestEntry *entry
	best := int(^uint(0) >> 1) // max int
	for k, e := range m {
		if e.access < best || (e.access == best && bestEntry != nil && e.seq < bestEntry.seq) {
			best = e.access
			bestKey = k
			bestEntry = e
		}
	}
	return bestKey, bestEntry
}
