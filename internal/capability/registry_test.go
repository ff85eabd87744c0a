package capability

import (
	"errors"
	"testing"
)

type fakeConnector struct {
	tools map[string][]ExternalTool
	calls []string
}

func (f *fakeConnector) ListTools(server string) ([]ExternalTool, error) {
	return f.tools[server], nil
}

func (f *fakeConnector) Call(server, tool string, args map[string]any) (any, error) {
	f.calls = append(f.calls, server+"/"+tool)
	return map[string]any{"ok": true}, nil
}

func TestRegisterCapability_RejectsNameCollisionSameKindSource(t *testing.T) {
	r := NewRegistry(nil)
	if _, err := r.RegisterCapability(Capability{Name: "deploy", Kind: KindOperational, Source: LocalSource()}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := r.RegisterCapability(Capability{Name: "deploy", Kind: KindOperational, Source: LocalSource()}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestRegisterCapability_AllowsSameNameAcrossDifferentSource(t *testing.T) {
	r := NewRegistry(nil)
	if _, err := r.RegisterCapability(Capability{Name: "deploy", Kind: KindOperational, Source: LocalSource()}); err != nil {
		t.Fatalf("local register: %v", err)
	}
	if _, err := r.RegisterCapability(Capability{Name: "deploy", Kind: KindOperational, Source: ExternalSource("srv1")}); err != nil {
		t.Errorf("expected distinct source to be allowed, got %v", err)
	}
}

func TestDiscoverCapabilities_ScoresExactKindMatch(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterCapability(Capability{Name: "a", Kind: KindOperational, Source: LocalSource()})
	matches := r.DiscoverCapabilities(Requirement{Kind: KindOperational, Priority: PriorityLow})
	if len(matches) != 1 || matches[0].Score != 120 {
		t.Fatalf("expected one match scoring 120 (100 kind + 20 local), got %+v", matches)
	}
}

func TestDiscoverCapabilities_PriorityAndKeywordBonuses(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterCapability(Capability{
		Name: "weather-lookup", Kind: KindIntelligence, Source: ExternalSource("srv"),
		ServerDesc: "fetches current weather conditions",
	})
	matches := r.DiscoverCapabilities(Requirement{
		Kind: KindIntelligence, Priority: PriorityCritical, Keywords: []string{"weather", "conditions", "unrelated"},
	})
	// 100 (kind) + 50 (critical) + 0 (not local) + 2*25 (two keyword hits)
	if len(matches) != 1 || matches[0].Score != 200 {
		t.Fatalf("expected score 200, got %+v", matches)
	}
}

func TestDiscoverCapabilities_TiesBreakByRegistrationOrder(t *testing.T) {
	r := NewRegistry(nil)
	firstID, _ := r.RegisterCapability(Capability{Name: "first", Kind: KindOperational, Source: LocalSource()})
	r.RegisterCapability(Capability{Name: "second", Kind: KindOperational, Source: LocalSource()})
	matches := r.DiscoverCapabilities(Requirement{Kind: KindOperational, Priority: PriorityLow})
	if len(matches) != 2 || matches[0].Capability.ID != firstID {
		t.Fatalf("expected first-registered capability to rank first on a tie, got %+v", matches)
	}
}

func TestMatchCapabilities_ReportsGapsAndCoverage(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterCapability(Capability{Name: "a", Kind: KindOperational, Source: LocalSource()})

	result := r.MatchCapabilities([]Requirement{
		{ID: "r1", Kind: KindOperational, Priority: PriorityLow},
		{ID: "r2", Kind: KindPolicy, Priority: PriorityCritical},
	})
	if result.Coverage != 50 {
		t.Errorf("Coverage = %v, want 50", result.Coverage)
	}
	if len(result.Gaps) != 1 || result.Gaps[0] != "r2" {
		t.Errorf("Gaps = %v, want [r2]", result.Gaps)
	}
}

func TestMatchCapabilities_CriticalRequiresScoreAtLeast100(t *testing.T) {
	r := NewRegistry(nil)
	// external, non-local: only 100(kind)+50(critical) = 150 >= 100, sufficient
	r.RegisterCapability(Capability{Name: "x", Kind: KindOperational, Source: ExternalSource("s")})
	result := r.MatchCapabilities([]Requirement{{ID: "r1", Kind: KindOperational, Priority: PriorityCritical}})
	if len(result.Gaps) != 0 {
		t.Errorf("expected critical requirement to be sufficiently matched, got gaps %v", result.Gaps)
	}
}

func TestAcquireCapability_BuildsAdapterAndRegistersLocally(t *testing.T) {
	conn := &fakeConnector{tools: map[string][]ExternalTool{
		"srv1": {{Name: "lookup", Description: "looks things up", InputSchema: map[string]any{
			"required": []any{"query"},
		}}},
	}}
	r := NewRegistry(conn)
	id, _ := r.RegisterCapability(Capability{Name: "lookup", Kind: KindOperational, Source: ExternalSource("srv1")})

	adaptedID, err := r.AcquireCapability(id)
	if err != nil {
		t.Fatalf("AcquireCapability: %v", err)
	}

	caps := r.ListCapabilities(Filters{})
	var found *Capability
	for i := range caps {
		if caps[i].ID == adaptedID {
			found = &caps[i]
		}
	}
	if found == nil {
		t.Fatal("adapted capability not found in registry")
	}
	if found.Source.Type != "adapted" {
		t.Errorf("Source.Type = %q, want adapted", found.Source.Type)
	}

	out, err := found.Handler(map[string]any{"query": "weather"})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if out.(map[string]any)["ok"] != true {
		t.Errorf("unexpected handler output: %v", out)
	}
	if len(conn.calls) != 1 || conn.calls[0] != "srv1/lookup" {
		t.Errorf("expected one call to srv1/lookup, got %v", conn.calls)
	}
}

func TestAcquireCapability_ValidationFailureNeverReachesRemote(t *testing.T) {
	conn := &fakeConnector{tools: map[string][]ExternalTool{
		"srv1": {{Name: "lookup", InputSchema: map[string]any{"required": []any{"query"}}}},
	}}
	r := NewRegistry(conn)
	id, _ := r.RegisterCapability(Capability{Name: "lookup", Kind: KindOperational, Source: ExternalSource("srv1")})
	adaptedID, _ := r.AcquireCapability(id)

	caps := r.ListCapabilities(Filters{})
	var found Capability
	for _, c := range caps {
		if c.ID == adaptedID {
			found = c
		}
	}
	if _, err := found.Handler(map[string]any{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(conn.calls) != 0 {
		t.Errorf("expected no remote call on validation failure, got %v", conn.calls)
	}
}

func TestAcquireCapability_RejectsLocalSource(t *testing.T) {
	r := NewRegistry(&fakeConnector{})
	id, _ := r.RegisterCapability(Capability{Name: "a", Kind: KindOperational, Source: LocalSource()})
	if _, err := r.AcquireCapability(id); !errors.Is(err, ErrNotExternal) {
		t.Fatalf("expected ErrNotExternal, got %v", err)
	}
}

func TestCalculateVarietyGap_RecommendsMissingKinds(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterCapability(Capability{Name: "a", Kind: KindOperational, Source: LocalSource()})
	gap := r.CalculateVarietyGap([]Kind{KindOperational, KindIntelligence, KindPolicy})
	if gap.Gap != 2 {
		t.Errorf("Gap = %d, want 2", gap.Gap)
	}
	if len(gap.Recommendations) != 2 {
		t.Errorf("Recommendations = %v, want 2 entries", gap.Recommendations)
	}
}

func TestListCapabilities_FiltersByKindAndSource(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterCapability(Capability{Name: "a", Kind: KindOperational, Source: LocalSource()})
	r.RegisterCapability(Capability{Name: "b", Kind: KindPolicy, Source: LocalSource()})
	out := r.ListCapabilities(Filters{Kind: KindOperational})
	if len(out) != 1 || out[0].Name != "a" {
		t.Errorf("expected only the operational capability, got %+v", out)
	}
}
