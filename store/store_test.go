package store

import (
	"path/filepath"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-nodebus/bus"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(bus.Unassigned)

	addr, err := s.LoadAddress()
	require.NoError(t, err)
	assert.Equal(t, bus.Unassigned, addr)

	require.NoError(t, s.SaveAddress(4))
	addr, err = s.LoadAddress()
	require.NoError(t, err)
	assert.Equal(t, bus.Address(4), addr)
}

func TestPebbleStore_Unassigned(t *testing.T) {
	s, err := OpenPebbleFS(vfs.NewMem(), "node")
	require.NoError(t, err)
	defer s.Close()

	addr, err := s.LoadAddress()
	require.NoError(t, err)
	assert.Equal(t, bus.Unassigned, addr)
}

func TestPebbleStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node")

	s, err := OpenPebble(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveAddress(0))
	require.NoError(t, s.SaveAddress(9))
	require.NoError(t, s.Close())

	s, err = OpenPebble(path)
	require.NoError(t, err)
	defer s.Close()

	addr, err := s.LoadAddress()
	require.NoError(t, err)
	assert.Equal(t, bus.Address(9), addr)
}

func TestPebbleStore_Closed(t *testing.T) {
	s, err := OpenPebbleFS(vfs.NewMem(), "node")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.Close(), ErrClosed)
	require.ErrorIs(t, s.SaveAddress(1), ErrClosed)
	_, err = s.LoadAddress()
	require.ErrorIs(t, err, ErrClosed)
}
