package transport

import (
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/test"
)

// pipeTickInterval is how often queued frames are handed to readers.
const pipeTickInterval = time.Millisecond

// NetworkCondition configures network behavior simulation.
// Use this to test protocol behavior under adverse link conditions.
type NetworkCondition struct {
	// DropRate is the probability of dropping a frame (0.0 - 1.0).
	DropRate float64

	// DelayMin is the minimum delay to add to each frame.
	DelayMin time.Duration

	// DelayMax is the maximum delay to add to each frame.
	// Actual delay is uniformly distributed between DelayMin and DelayMax.
	DelayMax time.Duration
}

// Pipe is an in-memory, message-preserving connection between a
// provisioner and a device. It wraps pion's test.Bridge, delivers frames
// from a background goroutine and applies a NetworkCondition on send.
//
// Closing either end closes the whole pipe, the way a dropped bearer
// disconnects both sides.
type Pipe struct {
	bridge *test.Bridge

	mu        sync.RWMutex
	condition NetworkCondition
	closed    bool
	rng       *rand.Rand
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewPipe creates a new bidirectional pipe.
func NewPipe() *Pipe {
	p := &Pipe{
		bridge: test.NewBridge(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh: make(chan struct{}),
	}

	p.wg.Add(1)
	go p.deliver()

	return p
}

func (p *Pipe) deliver() {
	defer p.wg.Done()
	ticker := time.NewTicker(pipeTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.bridge.Tick()
		}
	}
}

// SetCondition configures network condition simulation.
// The conditions apply to frames in both directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Condition returns the current network condition configuration.
func (p *Pipe) Condition() NetworkCondition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.condition
}

// Close closes both endpoints of the pipe. Blocked reads on either end
// return io.EOF. Closing an already closed pipe is a no-op.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()

	conn0, conn1 := p.bridge.GetConn0(), p.bridge.GetConn1()
	err0 := conn0.Close()
	err1 := conn1.Close()

	// The bridge closes a read side only on a tick that finds its queue
	// empty. Hand readers what they will take, then cut off the rest.
	for p.bridge.Tick() > 0 {
	}
	p.bridge.Tick()
	now := time.Now()
	_ = conn0.SetReadDeadline(now)
	_ = conn1.SetReadDeadline(now)

	if err0 != nil {
		return err0
	}
	return err1
}

// Closed reports whether the pipe has been closed.
func (p *Pipe) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Conn returns endpoint id (0 or 1) as a net.Conn subject to the pipe's
// network conditions.
func (p *Pipe) Conn(id int) net.Conn {
	conn := p.bridge.GetConn0()
	if id != 0 {
		conn = p.bridge.GetConn1()
	}
	return &pipeConn{
		Conn:  conn,
		pipe:  p,
		local: PipeAddr{ID: id},
		peer:  PipeAddr{ID: 1 - id},
	}
}

// Links returns a connected pair of links over the pipe. Link 0 is
// conventionally the provisioner, link 1 the device.
func (p *Pipe) Links(loggerFactory logging.LoggerFactory) (*ConnLink, *ConnLink, error) {
	l0, err := NewConnLink(ConnLinkConfig{Conn: p.Conn(0), LoggerFactory: loggerFactory})
	if err != nil {
		return nil, nil, err
	}
	l1, err := NewConnLink(ConnLinkConfig{Conn: p.Conn(1), LoggerFactory: loggerFactory})
	if err != nil {
		l0.Close()
		return nil, nil, err
	}
	return l0, l1, nil
}

// write applies the network conditions and writes b to conn.
func (p *Pipe) write(conn net.Conn, b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, net.ErrClosed
	}
	cond := p.condition
	drop := cond.DropRate > 0 && p.rng.Float64() < cond.DropRate
	delay := cond.DelayMin
	if cond.DelayMax > cond.DelayMin {
		delay += time.Duration(p.rng.Int63n(int64(cond.DelayMax - cond.DelayMin)))
	}
	p.mu.Unlock()

	if drop {
		return len(b), nil
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return conn.Write(b)
}

// PipeAddr implements net.Addr for pipe endpoints.
type PipeAddr struct {
	ID   int // Endpoint ID (0 or 1)
	Port int // Logical port number
}

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

// String returns a string representation of the address.
func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d:%d", a.ID, a.Port) }

// pipeConn is a pipe endpoint with pipe addresses and network conditions.
type pipeConn struct {
	net.Conn
	pipe  *Pipe
	local PipeAddr
	peer  PipeAddr
}

// Read reports io.EOF once the pipe is closed, whether or not the bridge
// had drained.
func (c *pipeConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if err != nil && c.pipe.Closed() {
		return 0, io.EOF
	}
	return n, err
}

func (c *pipeConn) Write(b []byte) (int, error) { return c.pipe.write(c.Conn, b) }
func (c *pipeConn) Close() error                { return c.pipe.Close() }
func (c *pipeConn) LocalAddr() net.Addr         { return c.local }
func (c *pipeConn) RemoteAddr() net.Addr        { return c.peer }

var _ net.Conn = (*pipeConn)(nil)
