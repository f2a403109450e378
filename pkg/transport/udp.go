package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// DefaultPort is the default UDP port of the device role.
const DefaultPort = 7373

// UDP is a Link over a datagram socket, one frame per datagram. The peer is
// either configured up front or learned from the first datagram received;
// datagrams from any other address are dropped.
type UDP struct {
	conn     net.PacketConn
	maxFrame int
	log      logging.LeveledLogger

	frames  chan []byte
	closeCh chan struct{}
	wg      sync.WaitGroup

	mu      sync.RWMutex
	peer    net.Addr
	closed  bool
	readErr error
}

// UDPConfig configures the UDP link.
type UDPConfig struct {
	// Conn is an optional pre-existing PacketConn to use.
	// If nil, a new connection will be created using ListenAddr.
	Conn net.PacketConn

	// ListenAddr is the address to listen on (e.g., ":7373").
	// Ignored if Conn is provided.
	ListenAddr string

	// Peer is the remote address. If nil, the first sender becomes the peer.
	Peer net.Addr

	// MaxFrameSize bounds sent and received frames.
	// Default: DefaultMaxFrameSize
	MaxFrameSize int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewUDP creates a UDP link and starts its read loop.
func NewUDP(config UDPConfig) (*UDP, error) {
	u := &UDP{
		conn:     config.Conn,
		maxFrame: config.MaxFrameSize,
		peer:     config.Peer,
		frames:   make(chan []byte, receiveQueueSize),
		closeCh:  make(chan struct{}),
	}
	if u.maxFrame <= 0 {
		u.maxFrame = DefaultMaxFrameSize
	}

	if config.LoggerFactory != nil {
		u.log = config.LoggerFactory.NewLogger("transport")
	}

	if u.conn == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0" // Use ephemeral port
		}

		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, err
		}
		u.conn = conn
	}

	if u.log != nil {
		u.log.Infof("UDP link on %s", u.conn.LocalAddr())
	}

	u.wg.Add(1)
	go u.readLoop()

	return u, nil
}

// DialUDP creates a UDP link to addr from an ephemeral local port.
func DialUDP(addr string, loggerFactory logging.LoggerFactory) (*UDP, error) {
	peer, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return NewUDP(UDPConfig{
		Peer:          peer,
		LoggerFactory: loggerFactory,
	})
}

// Send sends frame to the peer.
func (u *UDP) Send(frame []byte) error {
	u.mu.RLock()
	closed, peer := u.closed, u.peer
	u.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if peer == nil {
		return ErrInvalidAddress
	}
	if len(frame) > u.maxFrame {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(frame), u.maxFrame)
	}

	if u.log != nil {
		u.log.Debugf("sending %d bytes to %v", len(frame), peer)
	}

	if _, err := u.conn.WriteTo(frame, peer); err != nil {
		if u.log != nil {
			u.log.Warnf("send failed: %v", err)
		}
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// Receive returns the next frame from the peer.
func (u *UDP) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-u.frames:
		if !ok {
			u.mu.RLock()
			defer u.mu.RUnlock()
			if u.readErr != nil {
				return nil, u.readErr
			}
			return nil, ErrClosed
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the socket and waits for the read loop to exit.
func (u *UDP) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	u.mu.Unlock()

	if u.log != nil {
		u.log.Debug("closing UDP link")
	}

	close(u.closeCh)

	// Set a short deadline to unblock any pending reads
	u.conn.SetReadDeadline(time.Now())
	err := u.conn.Close()
	u.wg.Wait()

	return err
}

// LocalAddr returns the local address the link is bound to.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// Peer returns the peer address, or nil if none has been learned yet.
func (u *UDP) Peer() net.Addr {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.peer
}

// readLoop reads datagrams from the socket and queues the peer's frames.
func (u *UDP) readLoop() {
	defer u.wg.Done()
	defer close(u.frames)

	buf := make([]byte, u.maxFrame+1)

	for {
		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-u.closeCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
				return
			}
			if u.log != nil {
				u.log.Warnf("UDP read error: %v", err)
			}
			u.mu.Lock()
			u.readErr = fmt.Errorf("%w: %w", ErrReceiveFailed, err)
			u.mu.Unlock()
			return
		}

		if n == 0 {
			continue
		}
		if n > u.maxFrame {
			if u.log != nil {
				u.log.Warnf("dropping oversized datagram (%d bytes) from %v", n, addr)
			}
			continue
		}
		if !u.acceptFrom(addr) {
			if u.log != nil {
				u.log.Debugf("dropping datagram from unknown peer %v", addr)
			}
			continue
		}

		// Make a copy of the data for the receiver
		frame := make([]byte, n)
		copy(frame, buf[:n])

		if u.log != nil {
			u.log.Debugf("received %d bytes from %v", n, addr)
		}

		select {
		case u.frames <- frame:
		case <-u.closeCh:
			return
		}
	}
}

// acceptFrom reports whether addr is the peer, adopting it if none is set.
func (u *UDP) acceptFrom(addr net.Addr) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.peer == nil {
		u.peer = addr
		if u.log != nil {
			u.log.Infof("peer is %v", addr)
		}
		return true
	}
	return u.peer.String() == addr.String()
}

// Verify UDP implements Link.
var _ Link = (*UDP)(nil)
