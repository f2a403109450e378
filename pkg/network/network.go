// Package network holds the provisioner's view of the mesh networks it
// manages: their credentials, the nodes admitted into them and the unicast
// address space. Stores persist this state between runs.
package network

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/backkem/meshprov/pkg/crypto"
	"github.com/google/uuid"
)

const (
	// NetKeySize is the size of a network key.
	NetKeySize = 16

	// DeviceKeySize is the size of a node's device key.
	DeviceKeySize = 16

	// FirstUnicastAddress is the lowest unicast address.
	FirstUnicastAddress uint16 = 0x0001

	// LastUnicastAddress is the highest unicast address.
	LastUnicastAddress uint16 = 0x7FFF

	maxKeyIndex = 0x0FFF
)

// NetworkID identifies a network. It is k3 of the network key, so it can be
// computed by anyone holding the key and reveals nothing about it.
type NetworkID [crypto.NetworkIDSize]byte

// String returns the ID as lowercase hex.
func (id NetworkID) String() string {
	return hex.EncodeToString(id[:])
}

// ParseNetworkID parses a hex network ID.
func ParseNetworkID(s string) (NetworkID, error) {
	var id NetworkID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(id) {
		return id, fmt.Errorf("%w: %q", ErrInvalidNetworkID, s)
	}
	copy(id[:], b)
	return id, nil
}

// IDFromKey derives the network ID of netKey.
func IDFromKey(netKey [NetKeySize]byte) NetworkID {
	return NetworkID(crypto.K3(netKey[:]))
}

// Network is one mesh network and its provisioned nodes.
type Network struct {
	ID       NetworkID        `cbor:"1,keyasint"`
	Name     string           `cbor:"2,keyasint,omitempty"`
	NetKey   [NetKeySize]byte `cbor:"3,keyasint"`
	KeyIndex uint16           `cbor:"4,keyasint"`
	Flags    uint8            `cbor:"5,keyasint"`
	IVIndex  uint32           `cbor:"6,keyasint"`

	// FirstAddress is where address allocation starts.
	FirstAddress uint16 `cbor:"7,keyasint"`

	Nodes     []Node    `cbor:"8,keyasint,omitempty"`
	CreatedAt time.Time `cbor:"9,keyasint"`
}

// Node is a device that completed provisioning.
type Node struct {
	UUID      uuid.UUID           `cbor:"1,keyasint"`
	Address   uint16              `cbor:"2,keyasint"`
	Elements  uint8               `cbor:"3,keyasint"`
	DeviceKey [DeviceKeySize]byte `cbor:"4,keyasint"`

	ProvisionedAt time.Time `cbor:"5,keyasint"`
}

// LastAddress returns the address of the node's last element.
func (n *Node) LastAddress() uint16 {
	return n.Address + uint16(n.Elements) - 1
}

// overlaps reports whether n and the range [addr, addr+elements) share an
// address.
func (n *Node) overlaps(addr uint16, elements uint8) bool {
	last := addr + uint16(elements) - 1
	return addr <= n.LastAddress() && n.Address <= last
}

// New creates a network for netKey. Allocation starts at FirstUnicastAddress.
func New(name string, netKey [NetKeySize]byte, keyIndex uint16, ivIndex uint32) (*Network, error) {
	n := &Network{
		ID:           IDFromKey(netKey),
		Name:         name,
		NetKey:       netKey,
		KeyIndex:     keyIndex,
		IVIndex:      ivIndex,
		FirstAddress: FirstUnicastAddress,
		CreatedAt:    time.Now(),
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// Validate checks that the network is internally consistent.
func (n *Network) Validate() error {
	if n.ID != IDFromKey(n.NetKey) {
		return fmt.Errorf("%w: ID %s does not match the network key", ErrInvalidNetwork, n.ID)
	}
	if n.KeyIndex > maxKeyIndex {
		return fmt.Errorf("%w: key index 0x%04x out of range", ErrInvalidNetwork, n.KeyIndex)
	}
	if n.FirstAddress < FirstUnicastAddress || n.FirstAddress > LastUnicastAddress {
		return fmt.Errorf("%w: first address 0x%04x is not unicast", ErrInvalidNetwork, n.FirstAddress)
	}
	return nil
}

// Clone returns a deep copy of n.
func (n *Network) Clone() *Network {
	if n == nil {
		return nil
	}
	clone := *n
	if n.Nodes != nil {
		clone.Nodes = make([]Node, len(n.Nodes))
		copy(clone.Nodes, n.Nodes)
	}
	return &clone
}

// Node returns the node holding addr as one of its element addresses.
func (n *Network) Node(addr uint16) (Node, bool) {
	for _, node := range n.Nodes {
		if node.overlaps(addr, 1) {
			return node, true
		}
	}
	return Node{}, false
}

// NextAddress returns the lowest address at or after FirstAddress from which
// elements consecutive addresses are free.
func (n *Network) NextAddress(elements uint8) (uint16, error) {
	if elements == 0 {
		return 0, fmt.Errorf("%w: zero elements", ErrInvalidNode)
	}

	addr := uint32(n.FirstAddress)
	for {
		last := addr + uint32(elements) - 1
		if last > uint32(LastUnicastAddress) {
			return 0, fmt.Errorf("%w: no room for %d elements", ErrAddressSpaceExhausted, elements)
		}
		blocker, taken := n.blocking(uint16(addr), elements)
		if !taken {
			return uint16(addr), nil
		}
		addr = uint32(blocker.LastAddress()) + 1
	}
}

func (n *Network) blocking(addr uint16, elements uint8) (Node, bool) {
	for _, node := range n.Nodes {
		if node.overlaps(addr, elements) {
			return node, true
		}
	}
	return Node{}, false
}

// addNode appends node after checking its identity and address range.
func (n *Network) addNode(node Node) error {
	if node.Elements == 0 {
		return fmt.Errorf("%w: zero elements", ErrInvalidNode)
	}
	if node.Address < FirstUnicastAddress ||
		uint32(node.Address)+uint32(node.Elements)-1 > uint32(LastUnicastAddress) {
		return fmt.Errorf("%w: 0x%04x+%d is outside the unicast range", ErrInvalidNode, node.Address, node.Elements)
	}
	for _, existing := range n.Nodes {
		if node.UUID != uuid.Nil && existing.UUID == node.UUID {
			return fmt.Errorf("%w: %s", ErrNodeExists, node.UUID)
		}
		if existing.overlaps(node.Address, node.Elements) {
			return fmt.Errorf("%w: 0x%04x held by %s", ErrAddressInUse, node.Address, existing.UUID)
		}
	}
	if node.ProvisionedAt.IsZero() {
		node.ProvisionedAt = time.Now()
	}
	n.Nodes = append(n.Nodes, node)
	return nil
}
