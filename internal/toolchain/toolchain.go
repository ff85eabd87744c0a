// Package toolchain composes capability invocations into multi-step
// chains: each step's arguments may reference prior steps' outputs,
// optionally skip via a condition, retry transient failures, and
// post-process their result before it joins the shared context.
package toolchain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vsmcore/vsmcore/internal/errs"
	"github.com/vsmcore/vsmcore/internal/infra/metrics"
)

var ErrChainNotFound = errs.New(errs.KindNotFound, errors.New("toolchain: chain not found"), nil)
var ErrExecutionNotFound = errs.New(errs.KindNotFound, errors.New("toolchain: execution not found"), nil)
var ErrDuplicateStepID = errs.New(errs.KindInvalidOperation, errors.New("toolchain: duplicate step_id in chain"), nil)

// RetryPolicy bounds how many times a transient failure is retried and
// how long to wait between attempts.
type RetryPolicy struct {
	MaxAttempts int
	DelayMs     int
}

// Step is one node of a Chain. Condition and Transform are optional;
// a nil Condition always runs the step, a nil Transform passes the
// invocation result through unchanged.
type Step struct {
	StepID    string
	Tool      string
	Source    string // capability/server this tool is invoked against
	Args      map[string]any
	Condition func(context map[string]any) bool
	Transform func(result any) (any, error)
	Retry     RetryPolicy
}

// Chain is a reusable, totally ordered list of steps.
type Chain struct {
	ID    string
	Name  string
	Steps []Step
}

// StepResult is what one step contributed to an Execution.
type StepResult struct {
	StepID   string
	Output   any
	Skipped  bool
	Err      string
	Attempts int
}

// ExecutionError records the first (and any subsequent) step whose
// retries were exhausted.
type ExecutionError struct {
	StepID  string
	Message string
}

// Execution is one run of a Chain, independently observable by ID.
type Execution struct {
	ID          string
	ChainID     string
	Status      string // "running", "completed", "failed"
	Context     map[string]any
	Results     []StepResult
	Errors      []ExecutionError
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Invoker calls a tool by source and name. transient indicates whether
// a non-nil err is worth retrying, per the invoked source's own
// classification — the engine never guesses.
type Invoker interface {
	Invoke(source, tool string, args map[string]any) (result any, transient bool, err error)
}

// Engine registers chains and executes them against an Invoker.
type Engine struct {
	mu         sync.Mutex
	invoker    Invoker
	chains     map[string]Chain
	executions map[string]*Execution
	seq        uint64
	now        func() time.Time
	sleep      func(time.Duration)
}

// NewEngine creates an engine that invokes tools through invoker.
func NewEngine(invoker Invoker) *Engine {
	return &Engine{
		invoker:    invoker,
		chains:     make(map[string]Chain),
		executions: make(map[string]*Execution),
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// RegisterChain stores chain for later execution, rejecting duplicate
// step_ids within it.
func (e *Engine) RegisterChain(chain Chain) error {
	seen := make(map[string]bool, len(chain.Steps))
	for _, s := range chain.Steps {
		if seen[s.StepID] {
			return fmt.Errorf("%w: %q", ErrDuplicateStepID, s.StepID)
		}
		seen[s.StepID] = true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chains[chain.ID] = chain
	return nil
}

func (e *Engine) nextID(prefix string) string {
	e.mu.Lock()
	e.seq++
	seq := e.seq
	e.mu.Unlock()
	return prefix + "-" + strconv.FormatUint(seq, 10)
}

// Execute runs chainID's steps in order against a context seeded with
// input, and returns the resulting Execution (also retrievable later
// via GetExecution).
func (e *Engine) Execute(chainID string, input map[string]any) (*Execution, error) {
	e.mu.Lock()
	chain, ok := e.chains[chainID]
	e.mu.Unlock()
	if !ok {
		return nil, ErrChainNotFound
	}

	ctx := make(map[string]any, len(input))
	for k, v := range input {
		ctx[k] = v
	}

	exec := &Execution{
		ID:        e.nextID("exec"),
		ChainID:   chainID,
		Status:    "running",
		Context:   ctx,
		StartedAt: e.now(),
	}
	e.mu.Lock()
	e.executions[exec.ID] = exec
	e.mu.Unlock()

	for _, step := range chain.Steps {
		if step.Condition != nil && !step.Condition(ctx) {
			exec.Results = append(exec.Results, StepResult{StepID: step.StepID, Skipped: true})
			continue
		}

		args := resolveArgs(step.Args, ctx)
		maxAttempts := step.Retry.MaxAttempts
		if maxAttempts < 1 {
			maxAttempts = 1
		}

		stepStart := e.now()
		var (
			out       any
			lastErr   error
			attempts  int
			succeeded bool
		)
		for attempts = 1; attempts <= maxAttempts; attempts++ {
			result, transient, err := e.invoker.Invoke(step.Source, step.Tool, args)
			if err == nil {
				out = result
				succeeded = true
				break
			}
			lastErr = err
			if !transient || attempts == maxAttempts {
				break
			}
			metrics.ChainStepRetries.WithLabelValues(chainID).Inc()
			if step.Retry.DelayMs > 0 {
				e.sleep(time.Duration(step.Retry.DelayMs) * time.Millisecond)
			}
		}
		metrics.ChainStepDuration.WithLabelValues(chainID).Observe(e.now().Sub(stepStart).Seconds())

		if !succeeded {
			exec.Errors = append(exec.Errors, ExecutionError{StepID: step.StepID, Message: lastErr.Error()})
			exec.Results = append(exec.Results, StepResult{StepID: step.StepID, Err: lastErr.Error(), Attempts: attempts})
			continue
		}

		if step.Transform != nil {
			transformed, err := step.Transform(out)
			if err != nil {
				exec.Errors = append(exec.Errors, ExecutionError{StepID: step.StepID, Message: err.Error()})
				exec.Results = append(exec.Results, StepResult{StepID: step.StepID, Err: err.Error(), Attempts: attempts})
				continue
			}
			out = transformed
		}

		ctx[step.StepID] = out
		exec.Results = append(exec.Results, StepResult{StepID: step.StepID, Output: out, Attempts: attempts})
	}

	if len(exec.Errors) > 0 {
		exec.Status = "failed"
	} else {
		exec.Status = "completed"
	}
	metrics.ChainExecutions.WithLabelValues(exec.Status).Inc()
	completed := e.now()
	exec.CompletedAt = &completed
	return exec, nil
}

// GetExecution retrieves a previously started execution by id.
func (e *Engine) GetExecution(id string) (*Execution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.executions[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	return exec, nil
}

// resolveArgs substitutes any string value of the form
// "context.<dotted.path>" with the value found at that path in ctx;
// every other value (including nested maps, which are walked
// recursively) passes through unchanged.
func resolveArgs(args map[string]any, ctx map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = resolveValue(v, ctx)
	}
	return out
}

func resolveValue(v any, ctx map[string]any) any {
	switch val := v.(type) {
	case string:
		const prefix = "context."
		if strings.HasPrefix(val, prefix) {
			if resolved, ok := lookupPath(ctx, strings.TrimPrefix(val, prefix)); ok {
				return resolved
			}
		}
		return val
	case map[string]any:
		return resolveArgs(val, ctx)
	default:
		return v
	}
}

func lookupPath(ctx map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var cur any = ctx
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
