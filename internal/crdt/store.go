package crdt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vsmcore/vsmcore/internal/bus"
	"github.com/vsmcore/vsmcore/internal/errs"
	"github.com/vsmcore/vsmcore/internal/hlc"
)

var (
	ErrAlreadyExists    = errs.New(errs.KindAlreadyExists, errors.New("crdt: already exists"), nil)
	ErrNotFound         = errs.New(errs.KindNotFound, errors.New("crdt: not found"), nil)
	ErrInvalidOperation = errs.New(errs.KindInvalidOperation, errors.New("crdt: invalid operation"), nil)

	// ErrMergeConflict should never occur by CRDT design; if it is ever
	// observed, it is treated as fatal rather than retried.
	ErrMergeConflict = errs.New(errs.KindFatal, errors.New("crdt: merge conflict — CRDT design should make this unreachable"), map[string]string{"underlying_kind": string(errs.KindMergeConflict)})
)

// Publisher is the subset of the bus a Store needs to broadcast deltas and
// digests — narrow on purpose so this package doesn't need the bus
// package's subscriber-side API.
type Publisher interface {
	Publish(bus.Envelope) error
}

// Persister is the subset of the tiered store a Store needs for
// durability: writing a snapshot back after every mutation, and scanning
// crdtKeyPrefix-prefixed keys to reconstruct instances on start. Narrow on
// purpose so this package doesn't couple to the store package's
// tiering/promotion API — *store.Store satisfies this directly.
type Persister interface {
	Put(key string, value []byte) error
	Get(key string) ([]byte, error)
	Keys() ([]string, error)
}

// crdtKeyPrefix namespaces this store's persisted keys within the shared
// tiered store, so the store reconstructs only its own instances on scan.
const crdtKeyPrefix = "crdt:"

// Payload tags carried on bus.Envelope.Payload for CRDT traffic. All ride
// the horizontal channel, since replication is peer-to-peer among nodes
// rather than hierarchical command flow.
type (
	// DeltaPayload propagates one mutation without the full state.
	DeltaPayload struct {
		CRDTID string
		Kind   Kind
		Delta  Delta
	}
	// DigestPayload is the periodic anti-entropy advertisement of a
	// replica's causal context for one CRDT.
	DigestPayload struct {
		CRDTID        string
		CausalContext any
	}
	// RegisteredPayload announces that id now exists locally, so peers
	// holding buffered deltas for it know to request full state.
	RegisteredPayload struct {
		CRDTID string
		Kind   Kind
	}
	// StateRequestPayload asks the sender of a RegisteredPayload (or a
	// stale digest) for a full snapshot.
	StateRequestPayload struct {
		CRDTID string
	}
	// StateResponsePayload carries a full CRDT snapshot in answer to a
	// StateRequestPayload.
	StateResponsePayload struct {
		CRDTID string
		Kind   Kind
		State  CRDT
	}
)

const routingKeyPrefix = "crdt."

func newCRDT(kind Kind, nodeID string, clock *hlc.Clock) (CRDT, error) {
	switch kind {
	case KindGCounter:
		return NewGCounter(nodeID), nil
	case KindPNCounter:
		return NewPNCounter(nodeID), nil
	case KindORSet:
		return NewORSet(clock), nil
	case KindLWWRegister:
		return NewLWWRegister(clock, nodeID), nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidOperation, kind)
	}
}

// Store is the named-instance CRDT context store: it owns a set of CRDTs
// keyed by id, replays deltas through the bus, and buffers deltas that
// arrive for ids not yet created locally.
type Store struct {
	mu        sync.RWMutex
	nodeID    string
	clock     *hlc.Clock
	publisher Publisher
	persist   Persister

	instances map[string]CRDT
	kinds     map[string]Kind
	pending   map[string][]DeltaPayload // keyed by crdt_id, for ids not yet registered
}

// NewStore creates a store and reconstructs it by scanning persister for
// crdtKeyPrefix-prefixed keys, so a restarted node's CRDTs survive.
// publisher and persister may both be nil, in which case updates apply
// locally only and nothing is broadcast or persisted — useful for tests
// that don't need a bus or a tiered store.
func NewStore(nodeID string, clock *hlc.Clock, publisher Publisher, persister Persister) *Store {
	s := &Store{
		nodeID:    nodeID,
		clock:     clock,
		publisher: publisher,
		persist:   persister,
		instances: make(map[string]CRDT),
		kinds:     make(map[string]Kind),
		pending:   make(map[string][]DeltaPayload),
	}
	s.reconstruct()
	return s
}

// reconstruct rebuilds s.instances/s.kinds from whatever crdtKeyPrefix
// entries persist already holds. Entries that fail to unmarshal are
// skipped rather than aborting the whole scan — a node should come back
// with as much state as it can recover, not refuse to start.
func (s *Store) reconstruct() {
	if s.persist == nil {
		return
	}
	keys, err := s.persist.Keys()
	if err != nil {
		return
	}
	for _, key := range keys {
		id, ok := strings.CutPrefix(key, crdtKeyPrefix)
		if !ok {
			continue
		}
		blob, err := s.persist.Get(key)
		if err != nil {
			continue
		}
		inst, kind, err := unmarshalInstance(s.clock, blob)
		if err != nil {
			continue
		}
		s.instances[id] = inst
		s.kinds[id] = kind
	}
}

// persistLocked writes id's current snapshot to the tiered store. Caller
// must hold s.mu (for read or write). Failures are swallowed: persistence
// is best-effort durability layered on top of the in-memory state that
// already serves every read, matching Update's own infallible-merge
// contract.
func (s *Store) persistLocked(id string) {
	if s.persist == nil {
		return
	}
	inst, ok := s.instances[id]
	if !ok {
		return
	}
	blob, err := marshalInstance(inst)
	if err != nil {
		return
	}
	_ = s.persist.Put(crdtKeyPrefix+id, blob)
}

// Create registers a new CRDT of kind under id, replays any deltas
// buffered for it, and announces its existence to peers.
func (s *Store) Create(id string, kind Kind) error {
	s.mu.Lock()
	if _, exists := s.instances[id]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}
	inst, err := newCRDT(kind, s.nodeID, s.clock)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.instances[id] = inst
	s.kinds[id] = kind
	buffered := s.pending[id]
	delete(s.pending, id)
	s.persistLocked(id)
	s.mu.Unlock()

	for _, d := range buffered {
		s.mu.Lock()
		s.instances[id] = inst.MergeDelta(d.Delta)
		s.persistLocked(id)
		s.mu.Unlock()
	}

	s.publish(bus.Envelope{
		Channel:    bus.ChannelHorizontal,
		RoutingKey: routingKeyPrefix + "registered",
		Payload:    RegisteredPayload{CRDTID: id, Kind: kind},
	})
	return nil
}

// Get returns the live CRDT registered under id.
func (s *Store) Get(id string) (CRDT, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return inst, nil
}

// Update applies op to the CRDT registered under id and broadcasts the
// resulting delta. op receives the live instance and returns the delta it
// produced (typically by calling one of the kind-specific mutators).
func (s *Store) Update(id string, op func(CRDT) (Delta, error)) (Delta, error) {
	s.mu.Lock()
	inst, ok := s.instances[id]
	kind := s.kinds[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	delta, err := op(inst)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.persistLocked(id)
	s.mu.Unlock()

	s.publish(bus.Envelope{
		Channel:    bus.ChannelHorizontal,
		RoutingKey: routingKeyPrefix + "delta",
		HLC:        s.clock.Tick(),
		Payload:    DeltaPayload{CRDTID: id, Kind: kind, Delta: delta},
	})
	return delta, nil
}

// List returns every registered CRDT id.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.instances))
	for id := range s.instances {
		ids = append(ids, id)
	}
	return ids
}

// Metadata returns id's kind and current causal context.
func (s *Store) Metadata(id string) (Kind, any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.kinds[id], inst.CausalContext(), nil
}

// Sync broadcasts one digest per owned CRDT so peers can detect
// staleness and request state.
func (s *Store) Sync() {
	s.mu.RLock()
	digests := make([]DigestPayload, 0, len(s.instances))
	for id, inst := range s.instances {
		digests = append(digests, DigestPayload{CRDTID: id, CausalContext: inst.CausalContext()})
	}
	s.mu.RUnlock()

	for _, d := range digests {
		s.publish(bus.Envelope{
			Channel:    bus.ChannelHorizontal,
			RoutingKey: routingKeyPrefix + "digest",
			HLC:        s.clock.Tick(),
			Payload:    d,
		})
	}
}

// RunAntiEntropy calls Sync every interval until ctx is done.
func (s *Store) RunAntiEntropy(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sync()
		}
	}
}

// HandleEnvelope dispatches one CRDT-tagged envelope received from the
// bus: merging a delta if the instance is registered (else buffering it),
// answering state requests, and applying state responses.
func (s *Store) HandleEnvelope(env bus.Envelope) error {
	switch payload := env.Payload.(type) {
	case DeltaPayload:
		return s.handleDelta(payload)
	case RegisteredPayload:
		// Deltas buffered for this id can now be resolved: ask for the
		// announcer's full state.
		s.mu.RLock()
		buffered := len(s.pending[payload.CRDTID]) > 0
		s.mu.RUnlock()
		if buffered {
			s.publish(bus.Envelope{
				Channel:    bus.ChannelHorizontal,
				RoutingKey: routingKeyPrefix + "state_request",
				Payload:    StateRequestPayload{CRDTID: payload.CRDTID},
			})
		}
		return nil
	case StateRequestPayload:
		return s.handleStateRequest(payload)
	case StateResponsePayload:
		return s.handleStateResponse(payload)
	case DigestPayload:
		return s.handleDigest(payload)
	default:
		return fmt.Errorf("%w: unrecognized crdt payload %T", ErrInvalidOperation, env.Payload)
	}
}

func (s *Store) handleDelta(p DeltaPayload) error {
	s.mu.Lock()
	inst, ok := s.instances[p.CRDTID]
	if !ok {
		s.pending[p.CRDTID] = append(s.pending[p.CRDTID], p)
		s.mu.Unlock()
		s.publish(bus.Envelope{
			Channel:    bus.ChannelHorizontal,
			RoutingKey: routingKeyPrefix + "state_request",
			Payload:    StateRequestPayload{CRDTID: p.CRDTID},
		})
		return nil
	}
	s.instances[p.CRDTID] = inst.MergeDelta(p.Delta)
	s.persistLocked(p.CRDTID)
	s.mu.Unlock()
	return nil
}

func (s *Store) handleDigest(p DigestPayload) error {
	s.mu.RLock()
	inst, ok := s.instances[p.CRDTID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	// A digest richer than our own causal context means we're stale;
	// request full state. Context shape is kind-specific so this is a
	// best-effort comparison by size, not value equality.
	local := inst.CausalContext()
	if causalContextSize(local) < causalContextSize(p.CausalContext) {
		s.publish(bus.Envelope{
			Channel:    bus.ChannelHorizontal,
			RoutingKey: routingKeyPrefix + "state_request",
			Payload:    StateRequestPayload{CRDTID: p.CRDTID},
		})
	}
	return nil
}

func (s *Store) handleStateRequest(p StateRequestPayload) error {
	s.mu.RLock()
	inst, ok := s.instances[p.CRDTID]
	kind := s.kinds[p.CRDTID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	s.publish(bus.Envelope{
		Channel:    bus.ChannelHorizontal,
		RoutingKey: routingKeyPrefix + "state_response",
		Payload:    StateResponsePayload{CRDTID: p.CRDTID, Kind: kind, State: inst.Clone()},
	})
	return nil
}

func (s *Store) handleStateResponse(p StateResponsePayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.instances[p.CRDTID]; ok {
		s.instances[p.CRDTID] = existing.Merge(p.State)
		s.persistLocked(p.CRDTID)
		return nil
	}
	s.instances[p.CRDTID] = p.State
	s.kinds[p.CRDTID] = p.Kind
	s.persistLocked(p.CRDTID)
	return nil
}

func (s *Store) publish(env bus.Envelope) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Publish(env)
}

// instanceSnapshot is the envelope persisted under crdtKeyPrefix+id: the
// kind tag lets unmarshalInstance pick the right concrete snapshot type
// back out of the opaque data blob.
type instanceSnapshot struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// marshalInstance serializes inst's full state for persistence.
func marshalInstance(inst CRDT) ([]byte, error) {
	var data any
	switch v := inst.(type) {
	case *GCounter:
		data = v.snapshot()
	case *PNCounter:
		data = v.snapshot()
	case *ORSet:
		data = v.snapshot()
	case *LWWRegister:
		data = v.snapshot()
	default:
		return nil, fmt.Errorf("%w: cannot persist kind %q", ErrInvalidOperation, inst.Kind())
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(instanceSnapshot{Kind: inst.Kind(), Data: raw})
}

// unmarshalInstance reconstructs a CRDT instance from a blob written by
// marshalInstance. clock is threaded through for the kinds that mint
// fresh tags going forward (or_set/lww_register); g_counter/pn_counter
// retain their persisted node_id and need no clock.
func unmarshalInstance(clock *hlc.Clock, blob []byte) (CRDT, Kind, error) {
	var snap instanceSnapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil, "", err
	}
	switch snap.Kind {
	case KindGCounter:
		var s gcounterSnapshot
		if err := json.Unmarshal(snap.Data, &s); err != nil {
			return nil, "", err
		}
		return restoreGCounter(s), snap.Kind, nil
	case KindPNCounter:
		var s pncounterSnapshot
		if err := json.Unmarshal(snap.Data, &s); err != nil {
			return nil, "", err
		}
		return restorePNCounter(s), snap.Kind, nil
	case KindORSet:
		var s orsetSnapshot
		if err := json.Unmarshal(snap.Data, &s); err != nil {
			return nil, "", err
		}
		return restoreORSet(clock, s), snap.Kind, nil
	case KindLWWRegister:
		var s lwwregisterSnapshot
		if err := json.Unmarshal(snap.Data, &s); err != nil {
			return nil, "", err
		}
		return restoreLWWRegister(clock, s), snap.Kind, nil
	default:
		return nil, "", fmt.Errorf("%w: unknown persisted kind %q", ErrInvalidOperation, snap.Kind)
	}
}

func causalContextSize(ctx any) int {
	switch c := ctx.(type) {
	case map[string]uint64:
		return len(c)
	case map[string]int:
		return len(c)
	case map[string]any:
		total := 0
		for _, v := range c {
			total += causalContextSize(v)
		}
		return total
	default:
		return 1
	}
}
