package vsm

import "testing"

func TestS5_GetPolicy_CrisisForcesConservative(t *testing.T) {
	s := NewS5()
	p := s.GetPolicy([]string{"crisis"})
	if p.Posture != "conservative" {
		t.Errorf("Posture = %q, want conservative", p.Posture)
	}
}

func TestS5_GetPolicy_OpportunityForcesAggressive(t *testing.T) {
	s := NewS5()
	p := s.GetPolicy([]string{"opportunity"})
	if p.Posture != "aggressive" {
		t.Errorf("Posture = %q, want aggressive", p.Posture)
	}
}

func TestS5_SetIdentity_MergesTraits(t *testing.T) {
	s := NewS5()
	s.SetIdentity(map[string]string{"role": "controller"})
	id := s.SetIdentity(map[string]string{"region": "us-east"})
	if id.Traits["role"] != "controller" || id.Traits["region"] != "us-east" {
		t.Errorf("Traits = %v, want both merged patches present", id.Traits)
	}
}

func TestS5_StrategicDecision_WeightsByGrowthStrategy(t *testing.T) {
	tests := []struct {
		strategy string
		s3, s4   float64
		want     float64
	}{
		{"conservative", 10, 0, 7},
		{"balanced", 10, 10, 10},
		{"aggressive", 0, 10, 7},
	}
	for _, tt := range tests {
		s := NewS5()
		s.SetGrowthStrategy(tt.strategy)
		d := s.StrategicDecision("issue", tt.s3, tt.s4)
		if d.Blend != tt.want {
			t.Errorf("%s: Blend = %v, want %v", tt.strategy, d.Blend, tt.want)
		}
	}
}

func TestS5_HandleAlgedonic_RecordsHighIntensitySignal(t *testing.T) {
	s := NewS5()
	s.HandleAlgedonic(AlgedonicSignal{Intensity: 0.9, Reason: "resource-starvation"})
	id := s.SetIdentity(nil)
	if id.Traits["last_algedonic_reason"] != "resource-starvation" {
		t.Errorf("expected the algedonic reason to be recorded, got %v", id.Traits)
	}
}

func TestS5_HandleAlgedonic_IgnoresLowIntensitySignal(t *testing.T) {
	s := NewS5()
	s.HandleAlgedonic(AlgedonicSignal{Intensity: 0.2, Reason: "minor-blip"})
	id := s.SetIdentity(nil)
	if _, ok := id.Traits["last_algedonic_reason"]; ok {
		t.Error("expected a low-intensity signal not to be recorded")
	}
}
