package network

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories lets every Store implementation run the same tests.
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"file": func() Store {
			s, err := OpenFileStore(FileStoreConfig{Path: filepath.Join(t.TempDir(), "networks.cbor")})
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("SaveAndLoad", func(t *testing.T) {
				s := newStore()
				n := sampleNetwork(t)
				require.NoError(t, s.SaveNetwork(n))

				got, err := s.LoadNetwork(n.ID)
				require.NoError(t, err)
				assert.Equal(t, n.NetKey, got.NetKey)
				assert.Equal(t, n.KeyIndex, got.KeyIndex)

				all, err := s.LoadNetworks()
				require.NoError(t, err)
				assert.Len(t, all, 1)
			})

			t.Run("NotFound", func(t *testing.T) {
				s := newStore()
				id := IDFromKey(sampleKey(t))

				_, err := s.LoadNetwork(id)
				assert.ErrorIs(t, err, ErrNetworkNotFound)
				assert.ErrorIs(t, s.DeleteNetwork(id), ErrNetworkNotFound)
				assert.ErrorIs(t, s.AddNode(id, Node{Address: 1, Elements: 1}), ErrNetworkNotFound)
			})

			t.Run("RejectsInvalid", func(t *testing.T) {
				s := newStore()
				n := sampleNetwork(t)
				n.ID[0] ^= 0xFF
				assert.ErrorIs(t, s.SaveNetwork(n), ErrInvalidNetwork)
			})

			t.Run("ReturnsCopies", func(t *testing.T) {
				s := newStore()
				n := sampleNetwork(t)
				require.NoError(t, s.SaveNetwork(n))

				n.Name = "changed after save"
				got, err := s.LoadNetwork(n.ID)
				require.NoError(t, err)
				assert.Equal(t, "home", got.Name)

				got.Nodes = append(got.Nodes, Node{Address: 1, Elements: 1})
				again, err := s.LoadNetwork(n.ID)
				require.NoError(t, err)
				assert.Empty(t, again.Nodes)
			})

			t.Run("AddNode", func(t *testing.T) {
				s := newStore()
				n := sampleNetwork(t)
				require.NoError(t, s.SaveNetwork(n))

				device := uuid.New()
				require.NoError(t, s.AddNode(n.ID, Node{UUID: device, Address: 0x0001, Elements: 2}))
				err := s.AddNode(n.ID, Node{UUID: uuid.New(), Address: 0x0002, Elements: 1})
				assert.ErrorIs(t, err, ErrAddressInUse)

				got, err := s.LoadNetwork(n.ID)
				require.NoError(t, err)
				require.Len(t, got.Nodes, 1)
				assert.Equal(t, device, got.Nodes[0].UUID)

				next, err := got.NextAddress(1)
				require.NoError(t, err)
				assert.Equal(t, uint16(0x0003), next)
			})

			t.Run("Delete", func(t *testing.T) {
				s := newStore()
				n := sampleNetwork(t)
				require.NoError(t, s.SaveNetwork(n))
				require.NoError(t, s.DeleteNetwork(n.ID))

				all, err := s.LoadNetworks()
				require.NoError(t, err)
				assert.Empty(t, all)
			})
		})
	}
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "networks.cbor")

	s, err := OpenFileStore(FileStoreConfig{Path: path})
	require.NoError(t, err)

	n := sampleNetwork(t)
	require.NoError(t, s.SaveNetwork(n))

	device := uuid.New()
	deviceKey := [DeviceKeySize]byte{0x05, 0x20, 0xad, 0xad}
	require.NoError(t, s.AddNode(n.ID, Node{UUID: device, Address: 0x0b0c, Elements: 1, DeviceKey: deviceKey}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := OpenFileStore(FileStoreConfig{Path: path})
	require.NoError(t, err)

	got, err := reopened.LoadNetwork(n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.NetKey, got.NetKey)
	assert.Equal(t, n.IVIndex, got.IVIndex)
	assert.True(t, n.CreatedAt.Equal(got.CreatedAt))
	require.Len(t, got.Nodes, 1)
	assert.Equal(t, device, got.Nodes[0].UUID)
	assert.Equal(t, uint16(0x0b0c), got.Nodes[0].Address)
	assert.Equal(t, deviceKey, got.Nodes[0].DeviceKey)
}

func TestOpenFileStore(t *testing.T) {
	t.Run("missing file is empty", func(t *testing.T) {
		s, err := OpenFileStore(FileStoreConfig{Path: filepath.Join(t.TempDir(), "none.cbor")})
		require.NoError(t, err)

		all, err := s.LoadNetworks()
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := OpenFileStore(FileStoreConfig{})
		assert.Error(t, err)
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "corrupt.cbor")
		require.NoError(t, os.WriteFile(path, []byte{0xff, 0x00, 0x13}, 0600))

		_, err := OpenFileStore(FileStoreConfig{Path: path})
		assert.Error(t, err)
	})
}

func TestFileStoreRollsBackOnWriteFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	s, err := OpenFileStore(FileStoreConfig{Path: filepath.Join(dir, "networks.cbor")})
	require.NoError(t, err)

	// A regular file where the parent directory should be fails every write.
	require.NoError(t, os.WriteFile(dir, nil, 0600))

	assert.Error(t, s.SaveNetwork(sampleNetwork(t)))

	all, err := s.LoadNetworks()
	require.NoError(t, err)
	assert.Empty(t, all)
}
