package vsm

import (
	"strconv"
	"sync"
	"time"
)

// Plan is a candidate list of operations awaiting S2 annotation before S1
// executes them.
type Plan struct {
	Operations []OperationRequest
}

// AnnotatedPlan is a plan after coordination rules have run over it.
type AnnotatedPlan struct {
	Plan        Plan
	Annotations []string
	At          time.Time
}

// ConflictRecord is one resolved conflict between two S1 units.
type ConflictRecord struct {
	UnitA, UnitB string
	Issue        string
	Resolution   string
	At           time.Time
}

const defaultHistoryLimit = 1000

// S2 is the Coordination subsystem: it annotates operation plans and
// resolves conflicts between S1 units with a fixed issue→resolution
// mapping.
type S2 struct {
	mu                  sync.Mutex
	activeCoordinations []AnnotatedPlan
	conflictHistory     []ConflictRecord
	historyLimit        int
	now                 func() time.Time
}

// NewS2 creates an S2 with the default bounded history size.
func NewS2() *S2 {
	return &S2{historyLimit: defaultHistoryLimit, now: time.Now}
}

// Coordinate applies serialization rules to plan's operations — each
// operation is annotated with its position, surfacing ordering to S1 —
// and appends the result to the bounded active-coordinations log.
func (s *S2) Coordinate(plan Plan) AnnotatedPlan {
	annotations := make([]string, len(plan.Operations))
	for i, op := range plan.Operations {
		annotations[i] = sequenceAnnotation(i, op.Capability)
	}
	ap := AnnotatedPlan{Plan: plan, Annotations: annotations, At: s.now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeCoordinations = append(s.activeCoordinations, ap)
	if len(s.activeCoordinations) > s.historyLimit {
		s.activeCoordinations = s.activeCoordinations[len(s.activeCoordinations)-s.historyLimit:]
	}
	return ap
}

func sequenceAnnotation(i int, capability string) string {
	return capability + ": step " + strconv.Itoa(i)
}

// ResolveConflict maps issue to a resolution deterministically and
// records the resolution in the conflict history.
func (s *S2) ResolveConflict(unitA, unitB, issue string) string {
	var resolution string
	switch issue {
	case "resource_conflict":
		resolution = "time_sharing"
	case "priority_conflict":
		resolution = "weighted_priority"
	default:
		resolution = "arbitration"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflictHistory = append(s.conflictHistory, ConflictRecord{
		UnitA: unitA, UnitB: unitB, Issue: issue, Resolution: resolution, At: s.now(),
	})
	if len(s.conflictHistory) > s.historyLimit {
		s.conflictHistory = s.conflictHistory[len(s.conflictHistory)-s.historyLimit:]
	}
	return resolution
}

// ActiveCoordinations returns the bounded FIFO of annotated plans.
func (s *S2) ActiveCoordinations() []AnnotatedPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AnnotatedPlan, len(s.activeCoordinations))
	copy(out, s.activeCoordinations)
	return out
}

// ConflictHistory returns the bounded FIFO of resolved conflicts.
func (s *S2) ConflictHistory() []ConflictRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConflictRecord, len(s.conflictHistory))
	copy(out, s.conflictHistory)
	return out
}
