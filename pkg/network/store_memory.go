package network

import (
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store implementation.
// Useful for testing and development. Data is lost when the process exits.
//
// All methods are safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	networks map[NetworkID]*Network
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		networks: make(map[NetworkID]*Network),
	}
}

// LoadNetworks returns all stored networks ordered by creation time.
func (m *MemoryStore) LoadNetworks() ([]*Network, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Network, 0, len(m.networks))
	for _, n := range m.networks {
		result = append(result, n.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// LoadNetwork returns a network by ID.
func (m *MemoryStore) LoadNetwork(id NetworkID) (*Network, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.networks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNetworkNotFound, id)
	}
	return n.Clone(), nil
}

// SaveNetwork stores or updates a network.
func (m *MemoryStore) SaveNetwork(n *Network) error {
	if err := n.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.networks[n.ID] = n.Clone()
	return nil
}

// DeleteNetwork removes a network by ID.
func (m *MemoryStore) DeleteNetwork(id NetworkID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.networks[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNetworkNotFound, id)
	}
	delete(m.networks, id)
	return nil
}

// AddNode records a node in the network with the given ID.
func (m *MemoryStore) AddNode(id NetworkID, node Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.networks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNetworkNotFound, id)
	}
	return n.addNode(node)
}

// Clear removes all stored data.
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.networks = make(map[NetworkID]*Network)
}

// snapshot returns copies of all networks. Callers hold m.mu.
func (m *MemoryStore) snapshot() []*Network {
	result := make([]*Network, 0, len(m.networks))
	for _, n := range m.networks {
		result = append(result, n.Clone())
	}
	return result
}

// Verify MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
