package vsm

import (
	"sync"
	"time"

	"github.com/vsmcore/vsmcore/internal/infra/metrics"
)

// Identity is the system's self-description, merged in by patches.
type Identity struct {
	Name   string
	Traits map[string]string
}

// Policy is the current operating policy.
type Policy struct {
	GrowthStrategy string // "conservative", "balanced", or "aggressive"
	Posture        string // "conservative", "aggressive", or "" (unset)
}

// Decision records one strategic blend of S3's internal view against
// S4's external view.
type Decision struct {
	Issue string
	Blend float64
	At    time.Time
}

// growthWeights maps a growth strategy to its (internal, external) blend
// weights.
var growthWeights = map[string][2]float64{
	"conservative": {0.7, 0.3},
	"balanced":     {0.5, 0.5},
	"aggressive":   {0.3, 0.7},
}

// S5 is the Policy subsystem: it owns identity, policy, and strategic
// decisions, and is the mandatory consumer of algedonic signals.
type S5 struct {
	mu           sync.Mutex
	identity     Identity
	policies     Policy
	decisions    []Decision
	historyLimit int
	now          func() time.Time
}

// NewS5 creates an S5 with a balanced growth strategy and no identity
// traits set.
func NewS5() *S5 {
	return &S5{
		identity:     Identity{Traits: make(map[string]string)},
		policies:     Policy{GrowthStrategy: "balanced"},
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
	}
}

// GetPolicy returns the current policy, with posture adjusted by context
// flags: "crisis" forces a conservative posture, "opportunity" forces an
// aggressive one. Neither flag mutates the stored policy.
func (s *S5) GetPolicy(contextFlags []string) Policy {
	s.mu.Lock()
	p := s.policies
	s.mu.Unlock()

	for _, flag := range contextFlags {
		switch flag {
		case "crisis":
			p.Posture = "conservative"
		case "opportunity":
			p.Posture = "aggressive"
		}
	}
	return p
}

// SetIdentity merges patch into the current identity's traits.
func (s *S5) SetIdentity(patch map[string]string) Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range patch {
		s.identity.Traits[k] = v
	}
	return s.identity
}

// SetGrowthStrategy changes the blend weights used by StrategicDecision.
func (s *S5) SetGrowthStrategy(strategy string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies.GrowthStrategy = strategy
}

// StrategicDecision blends s3View (internal) and s4View (external)
// according to the current growth strategy's weights and records the
// result.
func (s *S5) StrategicDecision(issue string, s3View, s4View float64) Decision {
	s.mu.Lock()
	weights, ok := growthWeights[s.policies.GrowthStrategy]
	if !ok {
		weights = growthWeights["balanced"]
	}
	blend := weights[0]*s3View + weights[1]*s4View
	d := Decision{Issue: issue, Blend: blend, At: s.now()}
	s.decisions = append(s.decisions, d)
	if len(s.decisions) > s.historyLimit {
		s.decisions = s.decisions[len(s.decisions)-s.historyLimit:]
	}
	s.mu.Unlock()
	return d
}

// Decisions returns the recorded decision history.
func (s *S5) Decisions() []Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Decision, len(s.decisions))
	copy(out, s.decisions)
	return out
}

// AlgedonicSignal is a pain/pleasure override: intensity in [0, 1] where
// values at or above 0.7 demand bounded-latency handling.
type AlgedonicSignal struct {
	Intensity float64
	Reason    string
	At        time.Time
}

// HandleAlgedonic is S5's mandatory consumer of the override channel. It
// records the signal against identity traits so GetPolicy/strategic
// decisions downstream can reflect the system having been "hurt" or
// "pleased" recently.
func (s *S5) HandleAlgedonic(sig AlgedonicSignal) {
	metrics.AlgedonicSignals.WithLabelValues(sig.Reason).Inc()
	s.mu.Lock()
	defer s.mu.Unlock()
	if sig.Intensity >= 0.7 {
		s.identity.Traits["last_algedonic_reason"] = sig.Reason
	}
}
