package network

// Store persists networks and their nodes.
// Implementations can use files, databases, or in-memory storage.
//
// All methods must be safe for concurrent use. Returned networks are copies;
// modifying them does not change the store.
type Store interface {
	// LoadNetworks returns all networks.
	LoadNetworks() ([]*Network, error)

	// LoadNetwork returns the network with the given ID, or
	// ErrNetworkNotFound.
	LoadNetwork(id NetworkID) (*Network, error)

	// SaveNetwork stores or replaces a network.
	SaveNetwork(n *Network) error

	// DeleteNetwork removes a network and all its nodes.
	DeleteNetwork(id NetworkID) error

	// AddNode records a provisioned node. It fails with ErrAddressInUse if
	// the node's address range overlaps an existing node.
	AddNode(id NetworkID, node Node) error
}
