// Package transport carries provisioning frames between a provisioner and a
// device. A Link moves whole frames: one Send is one frame on the other
// side. Ordering is assumed; segmentation is not performed.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pion/logging"
)

// DefaultMaxFrameSize bounds a single frame.
const DefaultMaxFrameSize = 512

// receiveQueueSize is the number of frames buffered ahead of Receive.
const receiveQueueSize = 16

// Link is a message-preserving, ordered frame channel to one peer.
type Link interface {
	// Send writes one frame.
	Send(frame []byte) error

	// Receive blocks until a frame arrives, the link is closed, or ctx is done.
	Receive(ctx context.Context) ([]byte, error)

	// Close tears the link down. Pending and future Receive calls fail.
	Close() error
}

// ConnLinkConfig configures a ConnLink.
type ConnLinkConfig struct {
	// Conn must preserve message boundaries: each Read returns one frame.
	// Connected UDP sockets and pipe endpoints qualify. Required.
	Conn net.Conn

	// MaxFrameSize bounds sent and received frames.
	// Default: DefaultMaxFrameSize
	MaxFrameSize int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// ConnLink is a Link over a message-preserving net.Conn. A read loop
// goroutine queues incoming frames for Receive.
type ConnLink struct {
	conn     net.Conn
	maxFrame int
	log      logging.LeveledLogger

	frames  chan []byte
	closeCh chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	readErr error
}

// NewConnLink creates a link over config.Conn and starts its read loop.
func NewConnLink(config ConnLinkConfig) (*ConnLink, error) {
	if config.Conn == nil {
		return nil, ErrNoConn
	}

	l := &ConnLink{
		conn:     config.Conn,
		maxFrame: config.MaxFrameSize,
		frames:   make(chan []byte, receiveQueueSize),
		closeCh:  make(chan struct{}),
	}
	if l.maxFrame <= 0 {
		l.maxFrame = DefaultMaxFrameSize
	}
	if config.LoggerFactory != nil {
		l.log = config.LoggerFactory.NewLogger("transport")
	}

	l.wg.Add(1)
	go l.readLoop()

	return l, nil
}

// Send writes frame as one message.
func (l *ConnLink) Send(frame []byte) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if len(frame) > l.maxFrame {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(frame), l.maxFrame)
	}

	if l.log != nil {
		l.log.Tracef("send %x", frame)
	}
	if _, err := l.conn.Write(frame); err != nil {
		if l.log != nil {
			l.log.Warnf("send failed: %v", err)
		}
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// Receive returns the next frame.
func (l *ConnLink) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-l.frames:
		if !ok {
			return nil, l.err()
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the connection and waits for the read loop to exit.
func (l *ConnLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.closeCh)
	err := l.conn.Close()
	l.wg.Wait()
	return err
}

// LocalAddr returns the local address of the connection.
func (l *ConnLink) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

// RemoteAddr returns the peer address of the connection.
func (l *ConnLink) RemoteAddr() net.Addr {
	return l.conn.RemoteAddr()
}

func (l *ConnLink) err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return l.readErr
	}
	return ErrClosed
}

func (l *ConnLink) readLoop() {
	defer l.wg.Done()
	defer close(l.frames)

	buf := make([]byte, l.maxFrame+1)
	for {
		n, err := l.conn.Read(buf)
		if err != nil {
			l.setReadErr(err)
			return
		}
		if n == 0 {
			continue
		}
		if n > l.maxFrame {
			if l.log != nil {
				l.log.Warnf("dropping oversized frame (%d bytes)", n)
			}
			continue
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])
		if l.log != nil {
			l.log.Tracef("recv %x", frame)
		}

		select {
		case l.frames <- frame:
		case <-l.closeCh:
			return
		}
	}
}

func (l *ConnLink) setReadErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		l.readErr = ErrClosed
		return
	}
	l.readErr = fmt.Errorf("%w: %w", ErrReceiveFailed, err)
	if l.log != nil {
		l.log.Warnf("read loop stopped: %v", err)
	}
}

// Verify ConnLink implements Link.
var _ Link = (*ConnLink)(nil)
