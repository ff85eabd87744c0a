package vsm

import (
	"fmt"
	"sync"

	"github.com/vsmcore/vsmcore/internal/errs"
	"github.com/vsmcore/vsmcore/internal/infra/metrics"
)

// Handler implements one registered capability.
type Handler func(args map[string]any) (any, error)

// Metrics tracks S1's lifetime execution counts.
type Metrics struct {
	Executions int
	Successes  int
	Failures   int
}

// S1 is the Operations subsystem: it holds the capability table and
// executes coordination plans against it.
type S1 struct {
	mu           sync.Mutex
	capabilities map[string]Handler
	metrics      Metrics
}

// NewS1 creates an S1 with no capabilities registered.
func NewS1() *S1 {
	return &S1{capabilities: make(map[string]Handler)}
}

// RegisterCapability registers or idempotently overwrites the handler for
// name.
func (s *S1) RegisterCapability(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capabilities[name] = h
}

// Execute runs each operation against its registered handler in
// submission order. A missing capability or a handler that fails or
// panics yields an error result for that operation only — it does not
// abort the remaining operations in the batch.
func (s *S1) Execute(ops []OperationRequest) []OperationResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]OperationResult, len(ops))
	for i, op := range ops {
		h, ok := s.capabilities[op.Capability]
		if !ok {
			results[i] = OperationResult{Capability: op.Capability, Err: errs.New(errs.KindMissingCapability, fmt.Errorf("%w: %s", ErrMissingCapability, op.Capability), map[string]string{"name": op.Capability})}
			s.metrics.Failures++
			s.metrics.Executions++
			metrics.OperationsExecuted.WithLabelValues(op.Capability, "missing_capability").Inc()
			continue
		}
		out, err := invokeSafely(h, op.Args)
		s.metrics.Executions++
		if err != nil {
			results[i] = OperationResult{Capability: op.Capability, Err: err}
			s.metrics.Failures++
			metrics.OperationsExecuted.WithLabelValues(op.Capability, "failure").Inc()
			continue
		}
		results[i] = OperationResult{Capability: op.Capability, Output: out}
		s.metrics.Successes++
		metrics.OperationsExecuted.WithLabelValues(op.Capability, "success").Inc()
	}
	return results
}

func invokeSafely(h Handler, args map[string]any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanicked, r)
		}
	}()
	return h(args)
}

// Metrics returns a snapshot of S1's execution counters.
func (s *S1) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}
