package vsm

import (
	"errors"
	"testing"
)

func TestS1_ExecuteRunsRegisteredHandler(t *testing.T) {
	s := NewS1()
	s.RegisterCapability("double", func(args map[string]any) (any, error) {
		return args["n"].(int) * 2, nil
	})

	results := s.Execute([]OperationRequest{{Capability: "double", Args: map[string]any{"n": 21}}})
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Output != 42 {
		t.Errorf("Output = %v, want 42", results[0].Output)
	}
	if results[0].Err != nil {
		t.Errorf("Err = %v, want nil", results[0].Err)
	}
}

func TestS1_MissingCapabilityDoesNotAbortBatch(t *testing.T) {
	s := NewS1()
	s.RegisterCapability("ok", func(args map[string]any) (any, error) { return "done", nil })

	results := s.Execute([]OperationRequest{
		{Capability: "missing"},
		{Capability: "ok"},
	})
	if results[0].Err == nil {
		t.Error("expected a missing_capability error for the first operation")
	}
	if results[1].Err != nil || results[1].Output != "done" {
		t.Errorf("second operation should have succeeded, got %+v", results[1])
	}
}

func TestS1_HandlerErrorIsIsolatedPerOperation(t *testing.T) {
	s := NewS1()
	s.RegisterCapability("fails", func(args map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	s.RegisterCapability("ok", func(args map[string]any) (any, error) { return "fine", nil })

	results := s.Execute([]OperationRequest{{Capability: "fails"}, {Capability: "ok"}})
	if results[0].Err == nil {
		t.Error("expected the failing handler's error to be captured")
	}
	if results[1].Err != nil {
		t.Errorf("second operation should be unaffected by the first's failure, got %v", results[1].Err)
	}
}

func TestS1_HandlerPanicBecomesError(t *testing.T) {
	s := NewS1()
	s.RegisterCapability("panics", func(args map[string]any) (any, error) {
		panic("unexpected")
	})

	results := s.Execute([]OperationRequest{{Capability: "panics"}})
	if !errors.Is(results[0].Err, ErrHandlerPanicked) {
		t.Errorf("Err = %v, want ErrHandlerPanicked", results[0].Err)
	}
}

func TestS1_RegisterCapabilityIsIdempotentOverwrite(t *testing.T) {
	s := NewS1()
	s.RegisterCapability("greet", func(args map[string]any) (any, error) { return "v1", nil })
	s.RegisterCapability("greet", func(args map[string]any) (any, error) { return "v2", nil })

	results := s.Execute([]OperationRequest{{Capability: "greet"}})
	if results[0].Output != "v2" {
		t.Errorf("Output = %v, want the overwritten handler's result %q", results[0].Output, "v2")
	}
}

func TestS1_MetricsAccumulate(t *testing.T) {
	s := NewS1()
	s.RegisterCapability("ok", func(args map[string]any) (any, error) { return nil, nil })

	s.Execute([]OperationRequest{{Capability: "ok"}, {Capability: "missing"}})

	m := s.Metrics()
	if m.Executions != 2 || m.Successes != 1 || m.Failures != 1 {
		t.Errorf("Metrics() = %+v, want {2 1 1}", m)
	}
}
