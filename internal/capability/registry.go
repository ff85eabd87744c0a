package capability

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vsmcore/vsmcore/internal/infra/metrics"
)

// ExternalTool is what a capability server advertises for one of its
// tools, used both for scoring keyword overlap and for building the
// schema-validating adapter on acquisition.
type ExternalTool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Connector resolves an external capability's server and invokes one
// of its tools. internal/mcpclient implements this against a live JSON-RPC
// connection; tests use a fake.
type Connector interface {
	ListTools(server string) ([]ExternalTool, error)
	Call(server, tool string, args map[string]any) (any, error)
}

// Recorder is the subset of registrydb's durability layer the Registry
// needs — narrow on purpose so this package doesn't depend on
// database/sql. Handler funcs aren't recorded; only the metadata needed
// to audit what existed and reacquire external capabilities.
type Recorder interface {
	Save(id, name, kind, sourceType, sourceServer string, schema map[string]any, metadata map[string]string, serverDesc string) error
	Delete(id string) error
}

// Registry maintains the id -> Capability table. Writes are serialized
// by mu so the registry is "shared read, single-writer" per its
// ownership contract; reads take a copy so callers never observe a
// partially-applied write.
type Registry struct {
	mu        sync.Mutex
	byID      map[string]Capability
	connector Connector
	recorder  Recorder
	seq       uint64
}

// NewRegistry creates an empty registry. connector may be nil if no
// external capability servers are configured.
func NewRegistry(connector Connector) *Registry {
	return &Registry{byID: make(map[string]Capability), connector: connector}
}

// WithRecorder attaches a durability layer: every future
// RegisterCapability/Unregister call also writes through to recorder.
// Returns r for chaining at construction time.
func (r *Registry) WithRecorder(recorder Recorder) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorder = recorder
	return r
}

func nameKey(kind Kind, source Source) string { return string(kind) + "/" + source.Type }

// RegisterCapability assigns def an id (if it doesn't already have one)
// and stores it, rejecting a name collision within the same
// (kind, source.Type) pair.
func (r *Registry) RegisterCapability(def Capability) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.Name == def.Name && nameKey(existing.Kind, existing.Source) == nameKey(def.Kind, def.Source) {
			return "", ErrAlreadyRegistered
		}
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	r.seq++
	def.seq = r.seq
	r.byID[def.ID] = def
	if r.recorder != nil {
		_ = r.recorder.Save(def.ID, def.Name, string(def.Kind), def.Source.Type, def.Source.Server, def.Schema, def.Metadata, def.ServerDesc)
	}
	metrics.CapabilitiesRegistered.WithLabelValues(string(def.Kind), def.Source.Type).Inc()
	return def.ID, nil
}

// Unregister removes a capability by id. Missing ids are a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cap, ok := r.byID[id]
	delete(r.byID, id)
	if r.recorder != nil {
		_ = r.recorder.Delete(id)
	}
	if ok {
		metrics.CapabilitiesRegistered.WithLabelValues(string(cap.Kind), cap.Source.Type).Dec()
	}
}

// score computes req's match score against cap per the fixed weights:
// exact kind match contributes 100, priority adds a fixed bonus, a
// local source adds 20, and keyword overlap with an external tool's
// name/description contributes 25 per matching keyword.
func score(cap Capability, req Requirement) float64 {
	var s float64
	if cap.Kind == req.Kind {
		s += 100
	} else {
		return 0
	}
	s += priorityAdder(req.Priority)
	if cap.Source.Type == "local" {
		s += 20
	}
	if len(req.Keywords) > 0 {
		haystack := strings.ToLower(cap.Name + " " + cap.ServerDesc)
		for _, kw := range req.Keywords {
			if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
				s += 25
			}
		}
	}
	return s
}

// DiscoverCapabilities ranks every registered capability against req,
// highest score first, ties broken by earliest registration.
func (r *Registry) DiscoverCapabilities(req Requirement) []Match {
	r.mu.Lock()
	candidates := make([]Capability, 0, len(r.byID))
	for _, c := range r.byID {
		candidates = append(candidates, c)
	}
	r.mu.Unlock()

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if s := score(c, req); s > 0 {
			matches = append(matches, Match{Capability: c, Score: s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Capability.seq < matches[j].Capability.seq
	})
	if len(matches) > 0 {
		metrics.CapabilityMatchScore.Observe(matches[0].Score)
	}
	return matches
}

// MatchCapabilities evaluates each requirement independently and
// reports the overall coverage.
func (r *Registry) MatchCapabilities(reqs []Requirement) MatchResult {
	result := MatchResult{Matches: make(map[string][]Match, len(reqs))}
	if len(reqs) == 0 {
		result.Coverage = 100
		return result
	}

	sufficient := 0
	for _, req := range reqs {
		ranked := r.DiscoverCapabilities(req)
		result.Matches[req.ID] = ranked
		if len(ranked) > 0 && ranked[0].Score >= sufficientThreshold(req.Priority) {
			sufficient++
		} else {
			result.Gaps = append(result.Gaps, req.ID)
		}
	}
	result.Coverage = float64(sufficient) / float64(len(reqs)) * 100
	return result
}

// AcquireCapability connects to an external capability's server,
// builds a validating adapter, and registers the adapter as a local
// capability so S1 can execute it directly.
func (r *Registry) AcquireCapability(id string) (string, error) {
	r.mu.Lock()
	cap, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		return "", ErrNotFound
	}
	if cap.Source.Type != "external" {
		return "", ErrNotExternal
	}
	if r.connector == nil {
		return "", ErrNotExternal
	}

	tools, err := r.connector.ListTools(cap.Source.Server)
	if err != nil {
		return "", err
	}
	var tool *ExternalTool
	for i := range tools {
		if tools[i].Name == cap.Name {
			tool = &tools[i]
			break
		}
	}
	if tool == nil {
		return "", ErrNotFound
	}

	adapter := newAdapter(r.connector, cap.Source.Server, *tool)
	adapted := Capability{
		Name:       cap.Name,
		Kind:       cap.Kind,
		Source:     AdaptedSource(),
		Schema:     tool.InputSchema,
		Handler:    adapter.Invoke,
		Metadata:   cap.Metadata,
		ServerDesc: tool.Description,
	}
	return r.RegisterCapability(adapted)
}

// Filters narrows ListCapabilities to capabilities matching every
// non-zero field.
type Filters struct {
	Kind   Kind
	Source string // Source.Type, empty means any
}

// ListCapabilities returns a snapshot of every registered capability
// matching filters, in registration order.
func (r *Registry) ListCapabilities(filters Filters) []Capability {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Capability, 0, len(r.byID))
	for _, c := range r.byID {
		if filters.Kind != "" && c.Kind != filters.Kind {
			continue
		}
		if filters.Source != "" && c.Source.Type != filters.Source {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// CalculateVarietyGap measures how many distinct capability kinds are
// registered against how many a caller says are required, recommending
// acquisition of the missing kinds.
func (r *Registry) CalculateVarietyGap(required []Kind) VarietyGap {
	r.mu.Lock()
	present := make(map[Kind]bool)
	available := len(r.byID)
	for _, c := range r.byID {
		present[c.Kind] = true
	}
	r.mu.Unlock()

	var recs []string
	missing := 0
	for _, k := range required {
		if !present[k] {
			missing++
			recs = append(recs, "acquire capability of kind "+string(k))
		}
	}
	current := len(present)
	potential := 0.0
	if len(required) > 0 {
		potential = float64(len(required)-missing) / float64(len(required)) * 100
	}
	metrics.VarietyGapSize.Set(float64(missing))
	return VarietyGap{
		Current:         current,
		Available:       available,
		Required:        len(required),
		Gap:             missing,
		Potential:       potential,
		Recommendations: recs,
	}
}
