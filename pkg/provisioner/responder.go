package provisioner

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/backkem/meshprov/pkg/crypto"
	"github.com/backkem/meshprov/pkg/provisioning"
	"github.com/backkem/meshprov/pkg/transport"
	"github.com/google/uuid"
	"github.com/pion/logging"
)

// ResponderConfig configures a Responder.
type ResponderConfig struct {
	// UUID identifies the device in logs. A random UUID is used if zero.
	UUID uuid.UUID

	// Capabilities advertised to the provisioner. A zero value uses
	// provisioning.DefaultCapabilities.
	Capabilities provisioning.Capabilities

	// Timeout for one handshake, counted from the first frame received.
	// Waiting for a provisioner is unbounded.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// KeyPair and Rand override the handshake's ephemeral key pair and
	// random source. Tests only.
	KeyPair *crypto.P256KeyPair
	Rand    io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Responder runs the device side of provisioning.
type Responder struct {
	config ResponderConfig
	log    logging.LeveledLogger
}

// NewResponder creates a Responder.
func NewResponder(config ResponderConfig) *Responder {
	if config.UUID == uuid.Nil {
		config.UUID = uuid.New()
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	r := &Responder{config: config}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("provisioner")
	}
	return r
}

// UUID returns the device UUID.
func (r *Responder) UUID() uuid.UUID {
	return r.config.UUID
}

// Serve answers one provisioning handshake on link and returns the
// credential received. Serve does not close link: after Complete is sent the
// provisioner is expected to hang up.
func (r *Responder) Serve(ctx context.Context, link transport.Link) (*provisioning.Result, error) {
	d := provisioning.NewDevice(provisioning.DeviceConfig{
		Capabilities:  r.config.Capabilities,
		KeyPair:       r.config.KeyPair,
		Rand:          r.config.Rand,
		LoggerFactory: r.config.LoggerFactory,
	})

	if r.log != nil {
		r.log.Infof("device %s waiting for a provisioner", r.config.UUID)
	}

	// The handshake timeout starts with the first frame.
	frame, err := link.Receive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provisioning.ErrTransport, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	for {
		t, err := d.Feed(frame)
		for _, out := range t.Frames {
			if sendErr := link.Send(out); sendErr != nil {
				if err == nil {
					d.Abort(fmt.Errorf("%w: %w", provisioning.ErrTransport, sendErr))
					err = d.Err()
				}
				break
			}
		}
		if err != nil {
			if r.log != nil {
				r.log.Warnf("device %s: handshake ended in %s: %v", r.config.UUID, d.State(), err)
			}
			return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
		}

		if d.State() == provisioning.StateComplete {
			result, _ := d.Result()
			if r.log != nil {
				r.log.Infof("device %s provisioned at 0x%04x", r.config.UUID, result.UnicastAddress)
			}
			return result, nil
		}

		frame, err = link.Receive(ctx)
		if err != nil {
			// Tell the provisioner why, if the link still works.
			t := d.Abort(fmt.Errorf("%w: %w", provisioning.ErrTransport, err))
			for _, out := range t.Frames {
				_ = link.Send(out)
			}
			if r.log != nil {
				r.log.Warnf("device %s: %v", r.config.UUID, d.Err())
			}
			return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, d.Err())
		}
	}
}
