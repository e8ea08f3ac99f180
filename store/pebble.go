package store

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/arloliu/go-nodebus/bus"
)

const addressKey = "nodebus/address"

// PebbleStore keeps the address in a Pebble database, written with a synced
// commit so an acknowledged assignment survives power loss.
type PebbleStore struct {
	mu sync.Mutex
	db *pebble.DB
}

var _ AddressStore = (*PebbleStore)(nil)

// OpenPebble opens or creates the database at path.
func OpenPebble(path string) (*PebbleStore, error) {
	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("store: %s exists and is not a directory", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("store: stat path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("store: ensure directory: %w", err)
	}

	return openPebble(path, &pebble.Options{})
}

// OpenPebbleFS opens the database at path on fs, such as vfs.NewMem().
func OpenPebbleFS(fs vfs.FS, path string) (*PebbleStore, error) {
	return openPebble(path, &pebble.Options{FS: fs})
}

func openPebble(path string, opts *pebble.Options) (*PebbleStore, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) LoadAddress() (bus.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return bus.Unassigned, ErrClosed
	}

	value, closer, err := s.db.Get([]byte(addressKey))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return bus.Unassigned, nil
		}

		return bus.Unassigned, fmt.Errorf("store: get address: %w", err)
	}
	defer closer.Close()

	if len(value) != 1 {
		return bus.Unassigned, fmt.Errorf("store: corrupt address value of %d bytes", len(value))
	}

	return bus.Address(value[0]), nil
}

func (s *PebbleStore) SaveAddress(addr bus.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrClosed
	}
	if err := s.db.Set([]byte(addressKey), []byte{byte(addr)}, pebble.Sync); err != nil {
		return fmt.Errorf("store: set address: %w", err)
	}

	return nil
}

// Close closes the database.
func (s *PebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrClosed
	}
	err := s.db.Close()
	s.db = nil

	return err
}
