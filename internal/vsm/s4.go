package vsm

import (
	"sync"
	"time"
)

// ScanResult is S4's view of the environment as of one scan.
type ScanResult struct {
	Opportunities []string
	Threats       []string
	Trends        []string
	At            time.Time
}

// Prediction is a forecast over a given horizon.
type Prediction struct {
	Horizon       time.Duration
	Scenarios     []string
	Probabilities []float64
	At            time.Time
}

// Item is one observation S4 is asked to classify into an adaptation.
type Item struct {
	Type   string // "opportunity", "threat", or anything else
	Impact string // priority label carried straight through, e.g. "critical"
}

// Adaptation is S4's recommended response to an Item.
type Adaptation struct {
	Strategy string
	Priority string
}

// S4 is the Intelligence subsystem. Its scan/predict algorithms are
// pluggable — what's fixed is the shape of their inputs and outputs —
// so the zero-value scanners here are simple pass-throughs a real
// deployment replaces via SetScanner/SetPredictor.
type S4 struct {
	mu                 sync.Mutex
	environmentalModel map[string]any
	predictions        []Prediction
	adaptations        []Adaptation
	scanningInterval   time.Duration
	historyLimit       int
	now                func() time.Time

	scanner   func(context map[string]any) ScanResult
	predictor func(horizon time.Duration, model map[string]any) Prediction
}

// NewS4 creates an S4 with default pass-through scan/predict algorithms.
func NewS4(scanningInterval time.Duration) *S4 {
	if scanningInterval <= 0 {
		scanningInterval = 60 * time.Second
	}
	s := &S4{
		environmentalModel: make(map[string]any),
		scanningInterval:   scanningInterval,
		historyLimit:       defaultHistoryLimit,
		now:                time.Now,
	}
	s.scanner = defaultScan
	s.predictor = defaultPredict
	return s
}

// SetScanner overrides the environment-scanning algorithm.
func (s *S4) SetScanner(f func(context map[string]any) ScanResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanner = f
}

// SetPredictor overrides the forecasting algorithm.
func (s *S4) SetPredictor(f func(horizon time.Duration, model map[string]any) Prediction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictor = f
}

func defaultScan(context map[string]any) ScanResult {
	toStrings := func(key string) []string {
		v, ok := context[key].([]string)
		if !ok {
			return nil
		}
		return v
	}
	return ScanResult{
		Opportunities: toStrings("opportunities"),
		Threats:       toStrings("threats"),
		Trends:        toStrings("trends"),
	}
}

func defaultPredict(horizon time.Duration, model map[string]any) Prediction {
	return Prediction{Horizon: horizon, Scenarios: []string{"baseline"}, Probabilities: []float64{1.0}}
}

// ScanEnvironment runs the scan algorithm over context, folds the result
// into the environmental model, and returns it.
func (s *S4) ScanEnvironment(context map[string]any) ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.scanner(context)
	result.At = s.now()
	s.environmentalModel["opportunities"] = result.Opportunities
	s.environmentalModel["threats"] = result.Threats
	s.environmentalModel["trends"] = result.Trends
	s.environmentalModel["scanned_at"] = result.At
	return result
}

// PredictFuture runs the forecasting algorithm over the current model for
// horizon and records the prediction.
func (s *S4) PredictFuture(horizon time.Duration) Prediction {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.predictor(horizon, s.environmentalModel)
	p.At = s.now()
	s.predictions = append(s.predictions, p)
	if len(s.predictions) > s.historyLimit {
		s.predictions = s.predictions[len(s.predictions)-s.historyLimit:]
	}
	return p
}

// SuggestAdaptation classifies item into a strategy and priority.
func (s *S4) SuggestAdaptation(item Item) Adaptation {
	var strategy string
	switch item.Type {
	case "opportunity":
		strategy = "exploit"
	case "threat":
		strategy = "mitigate"
	default:
		strategy = "monitor"
	}
	a := Adaptation{Strategy: strategy, Priority: item.Impact}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.adaptations = append(s.adaptations, a)
	if len(s.adaptations) > s.historyLimit {
		s.adaptations = s.adaptations[len(s.adaptations)-s.historyLimit:]
	}
	return a
}

// ScanningInterval returns the configured interval between environment
// scans.
func (s *S4) ScanningInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanningInterval
}
