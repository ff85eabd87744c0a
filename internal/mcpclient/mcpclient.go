// Package mcpclient addresses MCP capability servers as opaque
// JSON-RPC endpoints, drives their connection state machine, and
// protects against flapping servers with a circuit breaker.
package mcpclient

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vsmcore/vsmcore/internal/errs"
	"github.com/vsmcore/vsmcore/internal/infra/healing"
	"github.com/vsmcore/vsmcore/internal/infra/metrics"
)

// TransportKind names how a server is reached.
type TransportKind string

const (
	TransportStdio     TransportKind = "stdio"
	TransportTCP       TransportKind = "tcp"
	TransportWebsocket TransportKind = "websocket"
)

// ServerConfig addresses one capability server.
type ServerConfig struct {
	Name      string
	Transport TransportKind
	Command   string // stdio
	Address   string // tcp: host:port
	URL       string // websocket
	Args      []string
}

// State is a server connection's position in the lifecycle:
// disconnected -> connecting -> initialized -> ready <-> calling ->
// ready | -> degraded -> disconnected.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateInitialized  State = "initialized"
	StateReady        State = "ready"
	StateCalling      State = "calling"
	StateDegraded     State = "degraded"
)

// Tool is what tools/list reports for one remote tool.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Transport is the wire-level round trip a Client drives through the
// JSON-RPC request/response cycle: it sends one request and returns the
// server's response to it.
type Transport interface {
	RoundTrip(req Request) (Response, error)
	Close() error
}

// Request mirrors the server-side JSON-RPC 2.0 request shape, reused
// for outbound calls.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response mirrors the server-side JSON-RPC 2.0 response shape.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError mirrors the server-side error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// Client drives one server's connection state machine and guards
// calls with a circuit breaker using the healing defaults: 5 recorded
// failures open it, and each success while closed takes one failure off
// the count, so failures need not be consecutive and are not counted
// within a time window. After 30s open it turns half-open, where calls
// are not capped; 3 successes close it and any failure reopens it.
type Client struct {
	mu      sync.Mutex
	cfg     ServerConfig
	state   State
	transport Transport
	breaker *healing.CircuitBreaker
	nextID  atomic.Int64
}

// NewClient creates a client for cfg, not yet connected. transport is
// the already-dialed round-tripper (stdio pipe or TCP conn) for this
// server.
func NewClient(cfg ServerConfig, transport Transport) *Client {
	return &Client{
		cfg:       cfg,
		state:     StateDisconnected,
		transport: transport,
		breaker:   healing.NewCircuitBreaker("mcp:"+cfg.Name, healing.DefaultCircuitBreakerConfig()),
	}
}

// State reports the client's current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// setStateLocked transitions to s, reflecting the move in the
// per-server connection state gauge. Caller must hold c.mu.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	metrics.MCPConnectionState.WithLabelValues(c.cfg.Name, string(c.state)).Set(0)
	c.state = s
	metrics.MCPConnectionState.WithLabelValues(c.cfg.Name, string(s)).Set(1)
}

// Initialize performs the MCP handshake, transitioning
// disconnected -> connecting -> initialized -> ready.
func (c *Client) Initialize() error {
	c.mu.Lock()
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	_, err := c.call("initialize", map[string]any{"clientName": "vsmcore"})
	if err != nil {
		c.mu.Lock()
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.setStateLocked(StateInitialized)
	c.setStateLocked(StateReady)
	c.mu.Unlock()
	return nil
}

// ListTools issues tools/list and decodes the server's tool catalog.
func (c *Client) ListTools() ([]Tool, error) {
	raw, err := c.call("tools/list", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("mcpclient: decode tools/list: %w", err)
	}
	return out.Tools, nil
}

// CallTool issues tools/call(name, arguments) and returns the raw
// result payload.
func (c *Client) CallTool(name string, arguments map[string]any) (any, error) {
	raw, err := c.call("tools/call", map[string]any{"name": name, "arguments": arguments})
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("mcpclient: decode tools/call result: %w", err)
	}
	return out, nil
}

// call guards one request/response round trip with the circuit
// breaker and the ready<->calling state transition.
func (c *Client) call(method string, params any) (json.RawMessage, error) {
	if err := c.breaker.Allow(); err != nil {
		c.mu.Lock()
		c.setStateLocked(StateDegraded)
		c.mu.Unlock()
		return nil, errs.New(errs.KindServerUnavailable, err, map[string]string{"name": c.cfg.Name})
	}

	c.mu.Lock()
	c.setStateLocked(StateCalling)
	c.mu.Unlock()

	start := time.Now()
	req := Request{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params}
	resp, err := c.transport.RoundTrip(req)
	metrics.MCPCallLatency.WithLabelValues(c.cfg.Name).Observe(time.Since(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil || resp.Error != nil {
		c.breaker.RecordFailure()
		metrics.MCPCallFailures.WithLabelValues(c.cfg.Name).Inc()
		if c.breaker.State() == healing.CBOpen {
			c.setStateLocked(StateDegraded)
		} else {
			c.setStateLocked(StateReady)
		}
		if err != nil {
			return nil, errs.New(errs.KindTransientTransport, err, map[string]string{"kind": string(c.cfg.Transport)})
		}
		return nil, resp.Error
	}

	c.breaker.RecordSuccess()
	c.setStateLocked(StateReady)
	return resp.Result, nil
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	c.mu.Lock()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
	return c.transport.Close()
}
