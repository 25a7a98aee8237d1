// Package rpc implements the client and server halves of the
// length-prefixed, framed request/response protocol from spec.md §6 on
// top of plain TCP sockets.
package rpc

import (
	"fmt"
	"net"
	"sync"
	"time"

	"distfs/internal/protocol"
)

// Conn is one pooled connection to a peer. Calls on the same Conn are
// serialized with a mutex: the wire protocol is strictly request/response,
// so two goroutines sharing a connection must not interleave frames.
type Conn struct {
	mu   sync.Mutex
	nc   net.Conn
	addr string
}

// Call writes req as one frame and decodes the next frame into resp,
// under the given per-call deadline (spec §5: "every outbound RPC
// carries an implicit deadline").
func (c *Conn) Call(req, resp interface{}, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timeout > 0 {
		if err := c.nc.SetDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("rpc: set deadline: %w", err)
		}
	}
	if err := protocol.WriteMessage(c.nc, req); err != nil {
		return err
	}
	return protocol.ReadMessage(c.nc, resp)
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.nc.Close() }

// Pool is a shared pool of dialed connections keyed by address, the
// generalization of the teacher's cluster.PeerConns (a gRPC connection
// cache) to raw framed TCP connections. One Pool is typically owned by
// one client-library instance, one storage server (for replica fan-out
// and talking to the coordinator), or the coordinator (for talking to
// storage servers during repair).
type Pool struct {
	mu      sync.Mutex
	conns   map[string]*Conn
	timeout time.Duration
}

// NewPool creates an empty pool; timeout bounds both dial and each call.
func NewPool(timeout time.Duration) *Pool {
	return &Pool{conns: make(map[string]*Conn), timeout: timeout}
}

// Call dials (or reuses) a connection to addr and performs req/resp. On
// any transport error the connection is invalidated so the next call
// redials, mirroring PeerConns.Invalidate.
func (p *Pool) Call(addr string, req, resp interface{}) error {
	conn, err := p.get(addr)
	if err != nil {
		return fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	if err := conn.Call(req, resp, p.timeout); err != nil {
		p.Invalidate(addr)
		return err
	}
	return nil
}

func (p *Pool) get(addr string) (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[addr]; ok {
		return c, nil
	}
	nc, err := net.DialTimeout("tcp", addr, p.timeout)
	if err != nil {
		return nil, err
	}
	c := &Conn{nc: nc, addr: addr}
	p.conns[addr] = c
	return c, nil
}

// Invalidate closes and forgets the cached connection for addr, if any.
func (p *Pool) Invalidate(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[addr]; ok {
		_ = c.Close()
		delete(p.conns, addr)
	}
}

// CloseAll closes every pooled connection; used on shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, c := range p.conns {
		_ = c.Close()
		delete(p.conns, addr)
	}
}
