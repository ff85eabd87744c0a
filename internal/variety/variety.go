// Package variety implements the Variety/Gap Controller: a periodic
// loop that measures operational variety against environmental
// variety and, in autonomous mode, scales workers, acquires
// capabilities, and raises algedonic signals to close the gap.
package variety

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/vsmcore/vsmcore/internal/infra/metrics"
)

// Metric is one point-in-time measurement of the system's variety
// balance.
type Metric struct {
	Operational   float64
	Environmental float64
	Gap           float64
	GapRatio      float64
	Entropy       float64
	At            time.Time
}

// Action is one autonomous step the controller took, logged with its
// rationale.
type Action struct {
	Kind      string // "scale_up", "schedule_evaluation", "rebalance"
	Rationale string
	At        time.Time
}

// Thresholds configures when the controller escalates.
type Thresholds struct {
	CriticalGap      float64 // default 0.7
	HighGap          float64 // default 0.5
	EntropyThreshold float64 // default 4.5
}

// DefaultThresholds returns the fixed contract defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{CriticalGap: 0.7, HighGap: 0.5, EntropyThreshold: 4.5}
}

// Scaler scales the worker pool by step units (negative shrinks).
type Scaler interface {
	ScaleWorkers(step int)
	RebalanceTowardAdaptive()
}

// Acquirer requests acquisition of one discovered capability when the
// gap is critical. The daemon's implementation takes the
// earliest-registered external capability; candidates are not ranked
// by score.
type Acquirer interface {
	AcquireBestCapability() error
}

// AlgedonicPublisher raises a pain signal proportional to the gap.
type AlgedonicPublisher interface {
	PublishAlgedonic(intensity float64, reason string) error
}

// Sources supplies the controller's raw measurements. OperationalVariety
// is a function of registered capability kinds; EnvironmentalVariety is
// a function of externally observed demand; StateDistribution reports
// counts of subsystem state types for the entropy calculation.
type Sources struct {
	OperationalVariety   func() float64
	EnvironmentalVariety func() float64
	StateDistribution    func() map[string]int
}

const defaultActionLogLimit = 1000

// Controller runs the periodic measurement/action loop.
type Controller struct {
	mu             sync.Mutex
	sources        Sources
	thresholds     Thresholds
	tickInterval   time.Duration
	autonomous     bool
	scaler         Scaler
	acquirer       Acquirer
	algedonic      AlgedonicPublisher
	criticalStep   int
	highStep       int
	metrics        []Metric
	actionLog      []Action
	actionLogLimit int
	now            func() time.Time
}

// Config configures a Controller's construction.
type Config struct {
	TickInterval   time.Duration // default 30s
	Thresholds     Thresholds
	Autonomous     bool
	CriticalStep   int // worker-pool scale step on critical gap, default 4
	HighStep       int // worker-pool scale step on high gap, default 2
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval: 30 * time.Second,
		Thresholds:   DefaultThresholds(),
		CriticalStep: 4,
		HighStep:     2,
	}
}

// NewController wires a controller from its measurement sources and
// autonomous-mode collaborators (any of which may be nil if that
// action is unavailable).
func NewController(cfg Config, sources Sources, scaler Scaler, acquirer Acquirer, algedonic AlgedonicPublisher) *Controller {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.CriticalStep <= 0 {
		cfg.CriticalStep = 4
	}
	if cfg.HighStep <= 0 {
		cfg.HighStep = 2
	}
	return &Controller{
		sources:        sources,
		thresholds:     cfg.Thresholds,
		tickInterval:   cfg.TickInterval,
		autonomous:     cfg.Autonomous,
		scaler:         scaler,
		acquirer:       acquirer,
		algedonic:      algedonic,
		criticalStep:   cfg.CriticalStep,
		highStep:       cfg.HighStep,
		actionLogLimit: defaultActionLogLimit,
		now:            time.Now,
	}
}

// SetAutonomous toggles whether Tick takes autonomous action.
func (c *Controller) SetAutonomous(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autonomous = on
}

// Run drives Tick on the configured interval until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Tick computes one Metric and, in autonomous mode, acts on it.
func (c *Controller) Tick() Metric {
	op := c.sources.OperationalVariety()
	env := c.sources.EnvironmentalVariety()
	gap := env - op
	denom := op
	if denom < 1 {
		denom = 1
	}
	gapRatio := gap / denom

	var dist map[string]int
	if c.sources.StateDistribution != nil {
		dist = c.sources.StateDistribution()
	}
	entropy := shannonEntropy(dist)

	metric := Metric{Operational: op, Environmental: env, Gap: gap, GapRatio: gapRatio, Entropy: entropy, At: c.now()}

	c.mu.Lock()
	c.metrics = append(c.metrics, metric)
	if len(c.metrics) > defaultActionLogLimit {
		c.metrics = c.metrics[len(c.metrics)-defaultActionLogLimit:]
	}
	autonomous := c.autonomous
	thresholds := c.thresholds
	c.mu.Unlock()

	metrics.VarietyRatio.Set(gapRatio)
	metrics.VarietyEntropy.Set(entropy)

	if autonomous {
		c.act(metric, thresholds)
	}
	return metric
}

func (c *Controller) act(m Metric, t Thresholds) {
	switch {
	case m.GapRatio > t.CriticalGap:
		if c.scaler != nil {
			c.scaler.ScaleWorkers(c.criticalStep)
		}
		if c.acquirer != nil {
			_ = c.acquirer.AcquireBestCapability()
		}
		if c.algedonic != nil {
			intensity := m.GapRatio
			if intensity > 1 {
				intensity = 1
			}
			_ = c.algedonic.PublishAlgedonic(intensity, "critical variety gap")
		}
		c.logAction("scale_up", "critical gap ratio exceeded threshold")
	case m.GapRatio > t.HighGap:
		if c.scaler != nil {
			c.scaler.ScaleWorkers(c.highStep)
		}
		c.logAction("schedule_evaluation", "high gap ratio exceeded threshold")
	}

	if m.Entropy > t.EntropyThreshold {
		if c.scaler != nil {
			c.scaler.RebalanceTowardAdaptive()
		}
		c.logAction("rebalance", "state-type entropy exceeded threshold")
	}
}

func (c *Controller) logAction(kind, rationale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actionLog = append(c.actionLog, Action{Kind: kind, Rationale: rationale, At: c.now()})
	if len(c.actionLog) > c.actionLogLimit {
		c.actionLog = c.actionLog[len(c.actionLog)-c.actionLogLimit:]
	}
	metrics.VarietyActions.WithLabelValues(kind).Inc()
}

// Metrics returns the recorded measurement history.
func (c *Controller) Metrics() []Metric {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Metric, len(c.metrics))
	copy(out, c.metrics)
	return out
}

// ActionLog returns the recorded autonomous-action history.
func (c *Controller) ActionLog() []Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Action, len(c.actionLog))
	copy(out, c.actionLog)
	return out
}

// shannonEntropy computes the Shannon entropy, in bits, of dist's
// value distribution.
func shannonEntropy(dist map[string]int) float64 {
	total := 0
	for _, n := range dist {
		total += n
	}
	if total == 0 {
		return 0
	}
	var h float64
	for _, n := range dist {
		if n == 0 {
			continue
		}
		p := float64(n) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}
