package mcpclient

import (
	"encoding/json"
	"errors"
	"testing"
)

type fakeTransport struct {
	responses []Response
	calls     int
	closed    bool
}

func (f *fakeTransport) RoundTrip(req Request) (Response, error) {
	if f.calls >= len(f.responses) {
		return Response{}, errors.New("no more canned responses")
	}
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func resultOf(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestInitialize_TransitionsToReady(t *testing.T) {
	tr := &fakeTransport{responses: []Response{{Result: resultOf(t, map[string]any{})}}}
	c := NewClient(ServerConfig{Name: "srv"}, tr)

	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if c.State() != StateReady {
		t.Errorf("State = %q, want ready", c.State())
	}
}

func TestListTools_DecodesToolCatalog(t *testing.T) {
	tr := &fakeTransport{responses: []Response{
		{Result: resultOf(t, map[string]any{})},
		{Result: resultOf(t, map[string]any{"tools": []Tool{{Name: "lookup", Description: "d"}}})},
	}}
	c := NewClient(ServerConfig{Name: "srv"}, tr)
	c.Initialize()

	tools, err := c.ListTools()
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "lookup" {
		t.Errorf("unexpected tools: %+v", tools)
	}
}

func TestCall_RepeatedFailuresOpenCircuitAndDegradeState(t *testing.T) {
	tr := &fakeTransport{}
	for i := 0; i < 10; i++ {
		tr.responses = append(tr.responses, Response{Error: &RPCError{Code: -32000, Message: "boom"}})
	}
	c := NewClient(ServerConfig{Name: "srv"}, tr)

	var lastErr error
	for i := 0; i < 6; i++ {
		_, lastErr = c.CallTool("x", nil)
	}
	if lastErr == nil {
		t.Fatal("expected an error after repeated failures")
	}
	if c.State() != StateDegraded {
		t.Errorf("State = %q, want degraded after breaker trips", c.State())
	}
}

func TestCall_SuccessReturnsToReady(t *testing.T) {
	tr := &fakeTransport{responses: []Response{
		{Result: resultOf(t, "ok")},
	}}
	c := NewClient(ServerConfig{Name: "srv"}, tr)
	out, err := c.CallTool("x", nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if out != "ok" {
		t.Errorf("out = %v, want ok", out)
	}
	if c.State() != StateReady {
		t.Errorf("State = %q, want ready", c.State())
	}
}

func TestClose_ClosesTransportAndDisconnects(t *testing.T) {
	tr := &fakeTransport{}
	c := NewClient(ServerConfig{Name: "srv"}, tr)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !tr.closed {
		t.Error("expected underlying transport to be closed")
	}
	if c.State() != StateDisconnected {
		t.Errorf("State = %q, want disconnected", c.State())
	}
}

func TestPool_RoutesToNamedServer(t *testing.T) {
	tr := &fakeTransport{responses: []Response{
		{Result: resultOf(t, map[string]any{"tools": []Tool{{Name: "t1"}}})},
	}}
	c := NewClient(ServerConfig{Name: "srv1"}, tr)
	p := NewPool()
	p.Add(c)

	tools, err := p.ListTools("srv1")
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "t1" {
		t.Errorf("unexpected tools: %+v", tools)
	}
}

func TestPool_UnknownServerErrors(t *testing.T) {
	p := NewPool()
	if _, err := p.ListTools("missing"); err == nil {
		t.Fatal("expected an error for an unregistered server")
	}
}
