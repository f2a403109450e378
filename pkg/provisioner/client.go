// Package provisioner drives provisioning handshakes over a transport link.
// Client runs the provisioner role against a network from a network.Store;
// Responder runs the device role.
package provisioner

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/backkem/meshprov/pkg/crypto"
	"github.com/backkem/meshprov/pkg/network"
	"github.com/backkem/meshprov/pkg/provisioning"
	"github.com/backkem/meshprov/pkg/transport"
	"github.com/google/uuid"
	"github.com/pion/logging"
)

// DefaultTimeout bounds one handshake when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// ClientConfig configures a Client.
type ClientConfig struct {
	// Store holds the networks devices are provisioned into. Required.
	Store network.Store

	// Timeout for one handshake, from Invite to Complete.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// Callbacks for handshake events.
	Callbacks Callbacks

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Callbacks provides event callbacks during a handshake. They run on the
// goroutine calling Provision.
type Callbacks struct {
	// OnStateChanged is called after every state transition.
	OnStateChanged func(from, to provisioning.State)

	// OnCapabilities is called when the device's capabilities arrive.
	OnCapabilities func(caps provisioning.Capabilities)

	// OnComplete is called once the node has been recorded.
	OnComplete func(id network.NetworkID, node network.Node)

	// OnError is called when the handshake ends unsuccessfully.
	OnError func(err error, state provisioning.State)
}

// Request describes one device to provision.
type Request struct {
	// NetworkID selects the network from the store.
	NetworkID network.NetworkID

	// DeviceUUID identifies the device. A random UUID is used if zero.
	DeviceUUID uuid.UUID

	// KeyPair and Rand override the handshake's ephemeral key pair and
	// random source. Tests only.
	KeyPair *crypto.P256KeyPair
	Rand    io.Reader
}

// Client provisions devices into stored networks. It is safe to run several
// Provision calls concurrently; address ranges handed out to handshakes in
// flight are reserved until they finish.
type Client struct {
	config ClientConfig
	log    logging.LeveledLogger

	mu       sync.Mutex
	reserved map[network.NetworkID][]network.Node
}

// NewClient creates a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Store == nil {
		return nil, ErrNoStore
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	c := &Client{
		config:   config,
		reserved: make(map[network.NetworkID][]network.Node),
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("provisioner")
	}
	return c, nil
}

// Provision runs the provisioner role over link and records the new node in
// the store. The link is closed when Provision returns.
func (c *Client) Provision(ctx context.Context, link transport.Link, req Request) (*network.Node, error) {
	defer link.Close()

	n, err := c.config.Store.LoadNetwork(req.NetworkID)
	if err != nil {
		return nil, err
	}
	if req.DeviceUUID == uuid.Nil {
		req.DeviceUUID = uuid.New()
	}

	var reservation *network.Node
	defer func() {
		if reservation != nil {
			c.release(n.ID, *reservation)
		}
	}()

	p := provisioning.NewProvisioner(provisioning.ProvisionerConfig{
		Data: provisioning.ProvisioningData{
			NetKey:   n.NetKey,
			KeyIndex: n.KeyIndex,
			Flags:    n.Flags,
			IVIndex:  n.IVIndex,
		},
		AssignAddress: func(elements uint8) (uint16, error) {
			node, err := c.reserve(n, elements)
			if err != nil {
				return 0, err
			}
			reservation = &node
			return node.Address, nil
		},
		KeyPair:       req.KeyPair,
		Rand:          req.Rand,
		LoggerFactory: c.config.LoggerFactory,
	})

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	if c.log != nil {
		c.log.Infof("provisioning device %s into network %s", req.DeviceUUID, n.ID)
	}

	if err := c.run(ctx, p, link); err != nil {
		if c.log != nil {
			c.log.Warnf("provisioning %s failed in %s: %v", req.DeviceUUID, p.State(), err)
		}
		if c.config.Callbacks.OnError != nil {
			c.config.Callbacks.OnError(err, p.State())
		}
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	result, _ := p.Result()
	node := network.Node{
		UUID:          req.DeviceUUID,
		Address:       result.UnicastAddress,
		Elements:      result.Elements,
		DeviceKey:     result.DeviceKey,
		ProvisionedAt: time.Now(),
	}
	crypto.Zero(result.DeviceKey[:])

	if err := c.config.Store.AddNode(n.ID, node); err != nil {
		if c.log != nil {
			c.log.Errorf("device %s provisioned at 0x%04x but not recorded: %v", node.UUID, node.Address, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	if c.log != nil {
		c.log.Infof("provisioned %s at 0x%04x (%d elements)", node.UUID, node.Address, node.Elements)
	}
	if c.config.Callbacks.OnComplete != nil {
		c.config.Callbacks.OnComplete(n.ID, node)
	}
	return &node, nil
}

// run drives p until it reaches a terminal state.
func (c *Client) run(ctx context.Context, p *provisioning.Provisioner, link transport.Link) error {
	t, err := p.Start()
	if err != nil {
		return err
	}
	if err := c.step(p, link, t); err != nil {
		return err
	}

	for !p.State().Terminal() {
		frame, err := link.Receive(ctx)
		if err != nil {
			p.Abort(fmt.Errorf("%w: %w", provisioning.ErrTransport, err))
			return p.Err()
		}

		t, err := p.Feed(frame)
		if err != nil {
			c.notify(t)
			return err
		}
		if err := c.step(p, link, t); err != nil {
			return err
		}
	}

	if p.State() != provisioning.StateComplete {
		return p.Err()
	}
	return nil
}

// step sends the frames of t and reports it.
func (c *Client) step(p *provisioning.Provisioner, link transport.Link, t provisioning.Transition) error {
	c.notify(t)
	if t.From == provisioning.StateInviteSent && t.To == provisioning.StateStartAndKeySent {
		if caps, ok := p.Capabilities(); ok && c.config.Callbacks.OnCapabilities != nil {
			c.config.Callbacks.OnCapabilities(caps)
		}
	}

	for _, frame := range t.Frames {
		if err := link.Send(frame); err != nil {
			p.Abort(fmt.Errorf("%w: %w", provisioning.ErrTransport, err))
			return p.Err()
		}
	}
	return nil
}

func (c *Client) notify(t provisioning.Transition) {
	if t.From != t.To && c.config.Callbacks.OnStateChanged != nil {
		c.config.Callbacks.OnStateChanged(t.From, t.To)
	}
}

// reserve picks the next free address range in n, skipping ranges held by
// handshakes in flight.
func (c *Client) reserve(n *network.Network, elements uint8) (network.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Reload so nodes recorded since the handshake started are seen.
	current, err := c.config.Store.LoadNetwork(n.ID)
	if err != nil {
		return network.Node{}, err
	}
	current.Nodes = append(current.Nodes, c.reserved[n.ID]...)

	addr, err := current.NextAddress(elements)
	if err != nil {
		return network.Node{}, err
	}

	node := network.Node{Address: addr, Elements: elements}
	c.reserved[n.ID] = append(c.reserved[n.ID], node)
	return node, nil
}

func (c *Client) release(id network.NetworkID, node network.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	held := c.reserved[id]
	for i, r := range held {
		if r.Address == node.Address {
			c.reserved[id] = append(held[:i], held[i+1:]...)
			break
		}
	}
	if len(c.reserved[id]) == 0 {
		delete(c.reserved, id)
	}
}
