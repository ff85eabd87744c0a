package toolchain

import (
	"errors"
	"testing"
	"time"
)

type fakeInvoker struct {
	calls     []string
	responses map[string]any
	fail      map[string]error
	transient map[string]bool
}

func (f *fakeInvoker) Invoke(source, tool string, args map[string]any) (any, bool, error) {
	key := source + "/" + tool
	f.calls = append(f.calls, key)
	if err, ok := f.fail[key]; ok {
		return nil, f.transient[key], err
	}
	return f.responses[key], false, nil
}

func TestExecute_AllStepsSucceedYieldsCompleted(t *testing.T) {
	inv := &fakeInvoker{responses: map[string]any{"local/greet": "hello"}}
	e := NewEngine(inv)
	e.RegisterChain(Chain{ID: "c1", Steps: []Step{{StepID: "s1", Tool: "greet", Source: "local"}}})

	exec, err := e.Execute("c1", map[string]any{"name": "vsm"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exec.Status != "completed" {
		t.Errorf("Status = %q, want completed", exec.Status)
	}
	if exec.Context["s1"] != "hello" {
		t.Errorf("Context[s1] = %v, want hello", exec.Context["s1"])
	}
}

func TestExecute_ArgsSubstituteFromPriorStepContext(t *testing.T) {
	inv := &fakeInvoker{responses: map[string]any{
		"local/lookup": map[string]any{"id": "abc"},
		"local/fetch":  "fetched",
	}}
	e := NewEngine(inv)
	e.RegisterChain(Chain{ID: "c1", Steps: []Step{
		{StepID: "lookup", Tool: "lookup", Source: "local"},
		{StepID: "fetch", Tool: "fetch", Source: "local", Args: map[string]any{"id": "context.lookup.id"}},
	}})

	exec, err := e.Execute("c1", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exec.Status != "completed" {
		t.Fatalf("Status = %q, want completed", exec.Status)
	}
}

func TestExecute_ConditionFalseSkipsStepAndContributesNothing(t *testing.T) {
	inv := &fakeInvoker{responses: map[string]any{"local/maybe": "ran"}}
	e := NewEngine(inv)
	e.RegisterChain(Chain{ID: "c1", Steps: []Step{
		{StepID: "s1", Tool: "maybe", Source: "local", Condition: func(ctx map[string]any) bool { return false }},
	}})

	exec, _ := e.Execute("c1", nil)
	if exec.Status != "completed" {
		t.Fatalf("Status = %q, want completed (skip isn't failure)", exec.Status)
	}
	if _, present := exec.Context["s1"]; present {
		t.Error("skipped step should not contribute to context")
	}
	if !exec.Results[0].Skipped {
		t.Error("expected the step result to be marked skipped")
	}
}

func TestExecute_TransformPostProcessesBeforeContext(t *testing.T) {
	inv := &fakeInvoker{responses: map[string]any{"local/count": 3}}
	e := NewEngine(inv)
	e.RegisterChain(Chain{ID: "c1", Steps: []Step{
		{StepID: "s1", Tool: "count", Source: "local", Transform: func(r any) (any, error) {
			return r.(int) * 10, nil
		}},
	}})

	exec, _ := e.Execute("c1", nil)
	if exec.Context["s1"] != 30 {
		t.Errorf("Context[s1] = %v, want 30", exec.Context["s1"])
	}
}

func TestExecute_RetriesOnlyTransientFailures(t *testing.T) {
	inv := &fakeInvoker{
		fail:      map[string]error{"local/flaky": errors.New("temporary")},
		transient: map[string]bool{"local/flaky": true},
	}
	e := NewEngine(inv)
	e.sleep = func(d time.Duration) {} // no real waiting in tests
	e.RegisterChain(Chain{ID: "c1", Steps: []Step{
		{StepID: "s1", Tool: "flaky", Source: "local", Retry: RetryPolicy{MaxAttempts: 3, DelayMs: 1}},
	}})

	exec, _ := e.Execute("c1", nil)
	if exec.Status != "failed" {
		t.Fatalf("Status = %q, want failed", exec.Status)
	}
	if len(inv.calls) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(inv.calls))
	}
}

func TestExecute_NonTransientFailureDoesNotRetry(t *testing.T) {
	inv := &fakeInvoker{
		fail:      map[string]error{"local/bad": errors.New("permanent")},
		transient: map[string]bool{"local/bad": false},
	}
	e := NewEngine(inv)
	e.sleep = func(time.Duration) {}
	e.RegisterChain(Chain{ID: "c1", Steps: []Step{
		{StepID: "s1", Tool: "bad", Source: "local", Retry: RetryPolicy{MaxAttempts: 5, DelayMs: 1}},
	}})

	exec, _ := e.Execute("c1", nil)
	if len(inv.calls) != 1 {
		t.Errorf("expected exactly 1 attempt for a non-transient error, got %d", len(inv.calls))
	}
	if exec.Status != "failed" {
		t.Errorf("Status = %q, want failed", exec.Status)
	}
}

func TestExecute_RemainingStepsRunAfterAnEarlierFailure(t *testing.T) {
	inv := &fakeInvoker{
		responses: map[string]any{"local/second": "ok"},
		fail:      map[string]error{"local/first": errors.New("boom")},
		transient: map[string]bool{"local/first": false},
	}
	e := NewEngine(inv)
	e.RegisterChain(Chain{ID: "c1", Steps: []Step{
		{StepID: "s1", Tool: "first", Source: "local"},
		{StepID: "s2", Tool: "second", Source: "local"},
	}})

	exec, _ := e.Execute("c1", nil)
	if exec.Status != "failed" {
		t.Fatalf("Status = %q, want failed", exec.Status)
	}
	if exec.Context["s2"] != "ok" {
		t.Error("expected the later step to still run and contribute to context")
	}
}

func TestGetExecution_ReturnsPriorRun(t *testing.T) {
	inv := &fakeInvoker{responses: map[string]any{"local/x": 1}}
	e := NewEngine(inv)
	e.RegisterChain(Chain{ID: "c1", Steps: []Step{{StepID: "s1", Tool: "x", Source: "local"}}})
	exec, _ := e.Execute("c1", nil)

	got, err := e.GetExecution(exec.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.ID != exec.ID {
		t.Errorf("got ID %q, want %q", got.ID, exec.ID)
	}
}

func TestRegisterChain_RejectsDuplicateStepID(t *testing.T) {
	e := NewEngine(&fakeInvoker{})
	err := e.RegisterChain(Chain{ID: "c1", Steps: []Step{
		{StepID: "dup", Tool: "a", Source: "local"},
		{StepID: "dup", Tool: "b", Source: "local"},
	}})
	if !errors.Is(err, ErrDuplicateStepID) {
		t.Fatalf("expected ErrDuplicateStepID, got %v", err)
	}
}
