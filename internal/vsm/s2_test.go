package vsm

import "testing"

func TestS2_CoordinateAnnotatesEachOperation(t *testing.T) {
	s := NewS2()
	ap := s.Coordinate(Plan{Operations: []OperationRequest{{Capability: "a"}, {Capability: "b"}}})
	if len(ap.Annotations) != 2 {
		t.Fatalf("len(Annotations) = %d, want 2", len(ap.Annotations))
	}
	if got := s.ActiveCoordinations(); len(got) != 1 {
		t.Errorf("ActiveCoordinations() len = %d, want 1", len(got))
	}
}

func TestS2_ResolveConflict_DeterministicMapping(t *testing.T) {
	s := NewS2()
	tests := []struct {
		issue string
		want  string
	}{
		{"resource_conflict", "time_sharing"},
		{"priority_conflict", "weighted_priority"},
		{"something_else", "arbitration"},
	}
	for _, tt := range tests {
		if got := s.ResolveConflict("unitA", "unitB", tt.issue); got != tt.want {
			t.Errorf("ResolveConflict(%q) = %q, want %q", tt.issue, got, tt.want)
		}
	}
	if got := s.ConflictHistory(); len(got) != 3 {
		t.Errorf("ConflictHistory() len = %d, want 3", len(got))
	}
}

func TestS2_HistoryIsBounded(t *testing.T) {
	s := NewS2()
	s.historyLimit = 2
	s.ResolveConflict("a", "b", "resource_conflict")
	s.ResolveConflict("a", "b", "priority_conflict")
	s.ResolveConflict("a", "b", "other")

	history := s.ConflictHistory()
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2 (bounded)", len(history))
	}
	if history[len(history)-1].Issue != "other" {
		t.Errorf("expected the most recent entry to survive truncation, got %+v", history[len(history)-1])
	}
}
