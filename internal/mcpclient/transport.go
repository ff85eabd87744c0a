package mcpclient

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os/exec"
	"sync"
)

// Dial constructs and connects the Transport addressed by cfg. Stdio
// spawns cfg.Command as a subprocess and frames requests over its
// stdin/stdout as newline-delimited JSON; tcp dials cfg.Address and
// frames the same way. Websocket servers are not yet supported.
func Dial(cfg ServerConfig) (Transport, error) {
	switch cfg.Transport {
	case TransportStdio:
		return dialStdio(cfg)
	case TransportTCP:
		return dialTCP(cfg)
	default:
		return nil, fmt.Errorf("mcpclient: unsupported transport %q", cfg.Transport)
	}
}

// framedConn is a newline-delimited JSON-RPC round-tripper shared by
// the stdio and TCP transports — both reduce to "write one JSON object,
// read one JSON object back" over some connection.
type framedConn struct {
	mu     sync.Mutex
	enc    *json.Encoder
	dec    *json.Decoder
	closer func() error
}

func (f *framedConn) RoundTrip(req Request) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enc.Encode(req); err != nil {
		return Response{}, fmt.Errorf("mcpclient: write request: %w", err)
	}
	var resp Response
	if err := f.dec.Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("mcpclient: read response: %w", err)
	}
	return resp, nil
}

func (f *framedConn) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer()
}

type stdioTransport struct {
	*framedConn
	cmd *exec.Cmd
}

func dialStdio(cfg ServerConfig) (Transport, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcpclient: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcpclient: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcpclient: start %s: %w", cfg.Command, err)
	}
	t := &stdioTransport{cmd: cmd}
	t.framedConn = &framedConn{
		enc: json.NewEncoder(stdin),
		dec: json.NewDecoder(bufio.NewReader(stdout)),
		closer: func() error {
			stdin.Close()
			return cmd.Wait()
		},
	}
	return t, nil
}

type tcpTransport struct {
	*framedConn
	conn net.Conn
}

func dialTCP(cfg ServerConfig) (Transport, error) {
	conn, err := net.Dial("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: dial %s: %w", cfg.Address, err)
	}
	t := &tcpTransport{conn: conn}
	t.framedConn = &framedConn{
		enc:    json.NewEncoder(conn),
		dec:    json.NewDecoder(bufio.NewReader(conn)),
		closer: conn.Close,
	}
	return t, nil
}
