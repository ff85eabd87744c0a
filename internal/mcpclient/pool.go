package mcpclient

import (
	"fmt"
	"sync"

	"github.com/vsmcore/vsmcore/internal/capability"
)

// Pool keeps one Client per configured server and implements
// capability.Connector so the registry can acquire external
// capabilities without depending on this package's connection
// machinery directly.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*Client
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{clients: make(map[string]*Client)}
}

// Add registers an already-constructed client under its server name.
func (p *Pool) Add(client *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[client.cfg.Name] = client
}

func (p *Pool) get(server string) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.clients[server]
	if !ok {
		return nil, fmt.Errorf("mcpclient: unknown server %q", server)
	}
	return c, nil
}

// ListTools satisfies capability.Connector: tool descriptions for
// scoring and schema validation.
func (p *Pool) ListTools(server string) ([]capability.ExternalTool, error) {
	c, err := p.get(server)
	if err != nil {
		return nil, err
	}
	tools, err := c.ListTools()
	if err != nil {
		return nil, err
	}
	out := make([]capability.ExternalTool, len(tools))
	for i, t := range tools {
		out[i] = capability.ExternalTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
	}
	return out, nil
}

// Call satisfies capability.Connector: invokes a tool by server and
// name.
func (p *Pool) Call(server, tool string, args map[string]any) (any, error) {
	c, err := p.get(server)
	if err != nil {
		return nil, err
	}
	return c.CallTool(tool, args)
}
