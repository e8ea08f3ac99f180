// Package store persists the bus address of a secondary node.
package store

import (
	"errors"
	"sync"

	"github.com/arloliu/go-nodebus/bus"
)

// ErrClosed is returned by a store used after Close.
var ErrClosed = errors.New("store: closed")

// AddressStore is the non-volatile storage of a node's bus address.
// A node that was never registered loads bus.Unassigned.
type AddressStore interface {
	LoadAddress() (bus.Address, error)
	SaveAddress(addr bus.Address) error
}

// MemoryStore keeps the address in memory. It survives agent restarts within
// one process, which is what simulations need.
type MemoryStore struct {
	mu   sync.Mutex
	addr bus.Address
}

var _ AddressStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding addr.
func NewMemoryStore(addr bus.Address) *MemoryStore {
	return &MemoryStore{addr: addr}
}

func (s *MemoryStore) LoadAddress() (bus.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addr, nil
}

func (s *MemoryStore) SaveAddress(addr bus.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.addr = addr

	return nil
}
