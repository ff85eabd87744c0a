package vsm

import (
	"sync"
	"time"
)

// Allocation is one resource share computed by Optimize, handed back as an
// operation for S2/S1 to carry out.
type Allocation struct {
	Resource string
	Target   string
	Share    float64
}

// AuditResult is one compliance/efficiency record for a unit.
type AuditResult struct {
	Unit       string
	Compliant  bool
	Efficiency float64
	At         time.Time
}

// S3 is the Control subsystem: it allocates resources proportional to
// demand and audits unit compliance.
type S3 struct {
	mu           sync.Mutex
	allocations  []Allocation
	auditResults []AuditResult
	historyLimit int
	now          func() time.Time
}

// NewS3 creates an S3 with the default bounded history size.
func NewS3() *S3 {
	return &S3{historyLimit: defaultHistoryLimit, now: time.Now}
}

// Optimize computes, for resource, each target's share of demand weighted
// by policyWeight, and returns the resulting operations for S2/S1 to
// execute. demand maps target name to its raw demand figure.
func (s *S3) Optimize(resource string, demand map[string]float64, policyWeight float64) []OperationRequest {
	var total float64
	for _, d := range demand {
		total += d
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ops := make([]OperationRequest, 0, len(demand))
	for target, d := range demand {
		share := policyWeight
		if total > 0 {
			share = (d / total) * policyWeight
		}
		alloc := Allocation{Resource: resource, Target: target, Share: share}
		s.allocations = append(s.allocations, alloc)
		ops = append(ops, OperationRequest{
			Capability: "allocate_resource",
			Args: map[string]any{
				"resource": resource,
				"target":   target,
				"share":    share,
			},
		})
	}
	if len(s.allocations) > s.historyLimit {
		s.allocations = s.allocations[len(s.allocations)-s.historyLimit:]
	}
	return ops
}

// Audit records and returns a compliance/efficiency record for unit.
func (s *S3) Audit(unit string, compliant bool, efficiency float64) AuditResult {
	record := AuditResult{Unit: unit, Compliant: compliant, Efficiency: efficiency, At: s.now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditResults = append(s.auditResults, record)
	if len(s.auditResults) > s.historyLimit {
		s.auditResults = s.auditResults[len(s.auditResults)-s.historyLimit:]
	}
	return record
}

// Allocations returns the allocation history.
func (s *S3) Allocations() []Allocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Allocation, len(s.allocations))
	copy(out, s.allocations)
	return out
}

// AuditResults returns the audit history.
func (s *S3) AuditResults() []AuditResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditResult, len(s.auditResults))
	copy(out, s.auditResults)
	return out
}
