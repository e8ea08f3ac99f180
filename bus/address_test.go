package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-nodebus/line"
)

func TestChildSet(t *testing.T) {
	var s ChildSet
	assert.Equal(t, 0, s.Len())

	s = s.With(0).With(3).With(63)
	assert.True(t, s.Has(3))
	assert.False(t, s.Has(4))
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []Address{0, 3, 63}, s.Addresses())
	assert.Equal(t, "{0,3,63}", s.String())

	s = s.Without(3)
	assert.False(t, s.Has(3))

	// Broadcast is never a member.
	assert.Equal(t, s, s.With(Broadcast))
	assert.False(t, s.Has(Broadcast))
}

func TestChildSet_LowestFree(t *testing.T) {
	var s ChildSet

	a, ok := s.LowestFree(16)
	require.True(t, ok)
	assert.Equal(t, Address(0), a)

	s = s.With(0).With(1).With(3)
	a, ok = s.LowestFree(16)
	require.True(t, ok)
	assert.Equal(t, Address(2), a)

	s = s.With(2)
	_, ok = s.LowestFree(4)
	assert.False(t, ok)

	_, ok = ChildSet(^uint64(0)).LowestFree(MaxChildren)
	assert.False(t, ok)
}

func TestFrame_EncodeParse(t *testing.T) {
	f := Poll(7, MsgHeartbeat)
	wire := f.Encode()
	assert.Equal(t, [FrameSize]byte{0x55, 0xAA, 7, 0x01}, wire)

	got, ok := ParseFrame(wire)
	require.True(t, ok)
	assert.Equal(t, f, got)

	_, ok = ParseFrame([FrameSize]byte{0x55, 0x55, 7, 0x01})
	assert.False(t, ok)

	assert.True(t, AckHello.Valid())
	assert.False(t, AckType(0x23).Valid())
	assert.Equal(t, "broadcast", Broadcast.String())
	assert.True(t, Address(3).Valid(16))
	assert.False(t, Address(16).Valid(16))
}

func TestFrame_Symbols(t *testing.T) {
	syms := Ack(3, AckHello).Symbols()
	require.Len(t, syms, FrameSize)
	assert.Equal(t, line.Marked(Sync1), syms[0])
	for i, sym := range syms {
		assert.True(t, HeaderSymbolOK(i, sym), "position %d", i)
	}

	assert.False(t, HeaderSymbolOK(0, line.Data(Sync1)))
	assert.False(t, HeaderSymbolOK(1, line.Marked(Sync2)))
	assert.False(t, HeaderSymbolOK(2, line.Marked(3)))
}
