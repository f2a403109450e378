package network

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pion/logging"
)

// FileVersion is the current version of the store file format.
const FileVersion = 1

// fileEncMode and fileDecMode encode the store file deterministically.
var (
	fileEncMode cbor.EncMode
	fileDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
		ByteArray:     cbor.ByteArrayToByteSlice,
	}
	fileEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create store CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	fileDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create store CBOR decoder mode: %v", err))
	}
}

// storeFile is the on-disk layout.
type storeFile struct {
	Version  int        `cbor:"1,keyasint"`
	SavedAt  time.Time  `cbor:"2,keyasint"`
	Networks []*Network `cbor:"3,keyasint"`
}

// FileStoreConfig configures a FileStore.
type FileStoreConfig struct {
	// Path of the store file. Parent directories are created on first save.
	Path string

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// FileStore is a Store persisted to a single CBOR file. The whole file is
// rewritten on every change, through a temporary file and a rename.
//
// All methods are safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex // serializes mutations and writes
	path string
	mem  *MemoryStore
	log  logging.LeveledLogger
}

// OpenFileStore loads the store at config.Path. A missing file is an empty
// store.
func OpenFileStore(config FileStoreConfig) (*FileStore, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("network: store path is empty")
	}

	s := &FileStore{
		path: config.Path,
		mem:  NewMemoryStore(),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("network")
	}

	networks, err := s.read()
	if err != nil {
		return nil, err
	}
	for _, n := range networks {
		if err := n.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", s.path, err)
		}
		s.mem.networks[n.ID] = n
	}

	if s.log != nil {
		s.log.Debugf("loaded %d networks from %s", len(networks), s.path)
	}
	return s, nil
}

// Path returns the store file path.
func (s *FileStore) Path() string {
	return s.path
}

// LoadNetworks returns all stored networks ordered by creation time.
func (s *FileStore) LoadNetworks() ([]*Network, error) {
	return s.mem.LoadNetworks()
}

// LoadNetwork returns a network by ID.
func (s *FileStore) LoadNetwork(id NetworkID) (*Network, error) {
	return s.mem.LoadNetwork(id)
}

// SaveNetwork stores or updates a network and writes the file.
func (s *FileStore) SaveNetwork(n *Network) error {
	return s.mutate(func(m *MemoryStore) error { return m.SaveNetwork(n) })
}

// DeleteNetwork removes a network and writes the file.
func (s *FileStore) DeleteNetwork(id NetworkID) error {
	return s.mutate(func(m *MemoryStore) error { return m.DeleteNetwork(id) })
}

// AddNode records a node and writes the file.
func (s *FileStore) AddNode(id NetworkID, node Node) error {
	return s.mutate(func(m *MemoryStore) error { return m.AddNode(id, node) })
}

// mutate applies fn and persists the result. If the write fails the
// in-memory state is rolled back.
func (s *FileStore) mutate(fn func(*MemoryStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mem.mu.RLock()
	prev := s.mem.snapshot()
	s.mem.mu.RUnlock()

	if err := fn(s.mem); err != nil {
		return err
	}

	s.mem.mu.RLock()
	next := s.mem.snapshot()
	s.mem.mu.RUnlock()

	if err := s.write(next); err != nil {
		s.mem.mu.Lock()
		s.mem.networks = make(map[NetworkID]*Network, len(prev))
		for _, n := range prev {
			s.mem.networks[n.ID] = n
		}
		s.mem.mu.Unlock()

		if s.log != nil {
			s.log.Warnf("failed to write %s: %v", s.path, err)
		}
		return err
	}
	return nil
}

func (s *FileStore) read() ([]*Network, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var f storeFile
	if err := fileDecMode.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	if f.Version != FileVersion {
		return nil, fmt.Errorf("%s: unsupported store version %d", s.path, f.Version)
	}
	return f.Networks, nil
}

func (s *FileStore) write(networks []*Network) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := fileEncMode.Marshal(storeFile{
		Version:  FileVersion,
		SavedAt:  time.Now(),
		Networks: networks,
	})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}

	if s.log != nil {
		s.log.Debugf("saved %d networks to %s", len(networks), s.path)
	}
	return nil
}

// Verify FileStore implements Store.
var _ Store = (*FileStore)(nil)
