package vsm

import "testing"

func TestS3_OptimizeIsProportionalToDemandShare(t *testing.T) {
	s := NewS3()
	ops := s.Optimize("computational", map[string]float64{"unitA": 30, "unitB": 10}, 1.0)
	if len(ops) != 2 {
		t.Fatalf("len(ops) = %d, want 2", len(ops))
	}
	shares := map[string]float64{}
	for _, op := range ops {
		shares[op.Args["target"].(string)] = op.Args["share"].(float64)
	}
	if shares["unitA"] <= shares["unitB"] {
		t.Errorf("expected unitA (demand 30) to get a larger share than unitB (demand 10), got %v", shares)
	}
	if got := shares["unitA"] + shares["unitB"]; got < 0.99 || got > 1.01 {
		t.Errorf("shares should sum to ~policyWeight (1.0), got %v", got)
	}
}

func TestS3_OptimizeAppliesPolicyWeight(t *testing.T) {
	s := NewS3()
	ops := s.Optimize("computational", map[string]float64{"unitA": 10}, 0.5)
	if got := ops[0].Args["share"].(float64); got != 0.5 {
		t.Errorf("share = %v, want 0.5 (sole demand * policy weight)", got)
	}
}

func TestS3_Audit_RecordsResult(t *testing.T) {
	s := NewS3()
	result := s.Audit("unitA", true, 0.92)
	if result.Unit != "unitA" || !result.Compliant || result.Efficiency != 0.92 {
		t.Errorf("Audit() = %+v, unexpected fields", result)
	}
	if got := s.AuditResults(); len(got) != 1 {
		t.Errorf("AuditResults() len = %d, want 1", len(got))
	}
}
