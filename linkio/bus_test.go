package linkio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-nodebus/line"
)

const testByteTime line.Tick = 100

func newTestBus() (*Bus, *line.ManualClock) {
	clock := line.NewManualClock(0)
	return NewBus(clock, testByteTime), clock
}

func readAll(p *Port) []rxEntry {
	var out []rxEntry
	for {
		sym, flags, ok := p.ReadSymbol()
		if !ok {
			return out
		}
		out = append(out, rxEntry{sym: sym, flags: flags})
	}
}

func TestBus_DeliversAfterOneByteTime(t *testing.T) {
	b, clock := newTestBus()
	a := b.Attach("a")
	c := b.Attach("c")

	a.EngageTransmit()
	require.True(t, a.WriteSymbol(line.Marked(0x55)))
	require.True(t, a.WriteSymbol(line.Data(0x10)))
	assert.False(t, a.TxComplete())

	clock.Advance(testByteTime - 1)
	assert.Empty(t, readAll(c))

	clock.Advance(1)
	got := readAll(c)
	require.Len(t, got, 1)
	assert.Equal(t, line.Marked(0x55), got[0].sym)
	assert.Zero(t, got[0].flags)

	clock.Advance(testByteTime)
	got = readAll(c)
	require.Len(t, got, 1)
	assert.Equal(t, line.Data(0x10), got[0].sym)
	assert.True(t, a.TxComplete())

	// The sender never hears itself.
	assert.Empty(t, readAll(a))
}

func TestBus_DisabledDriverNeverReachesTheWire(t *testing.T) {
	b, clock := newTestBus()
	a := b.Attach("a")
	c := b.Attach("c")

	require.True(t, a.WriteSymbol(line.Data(1)))
	clock.Advance(5 * testByteTime)

	assert.Empty(t, readAll(c))
	assert.True(t, a.TxComplete())
}

func TestBus_CollisionIsFrameError(t *testing.T) {
	b, clock := newTestBus()
	a := b.Attach("a")
	d := b.Attach("d")
	c := b.Attach("c")

	a.EngageTransmit()
	d.EngageTransmit()
	a.WriteSymbol(line.Marked(0x55))
	d.WriteSymbol(line.Marked(0x55))

	clock.Advance(testByteTime)
	got := readAll(c)
	require.Len(t, got, 2)
	for _, e := range got {
		assert.Equal(t, line.RxFrameError, e.flags)
	}

	// A driving port does not receive.
	assert.Empty(t, readAll(a))
	assert.Empty(t, readAll(d))
}

func TestBus_Overrun(t *testing.T) {
	b, clock := newTestBus()
	a := b.Attach("a")
	c := b.Attach("c")
	c.SetFIFODepth(2)

	a.EngageTransmit()
	for i := range 3 {
		require.True(t, a.WriteSymbol(line.Data(byte(i))))
	}
	clock.Advance(3 * testByteTime)

	_, flags, ok := c.ReadSymbol()
	assert.False(t, ok)
	assert.Equal(t, line.RxOverrun, flags)
}

func TestBus_TransmitFIFOFull(t *testing.T) {
	b, _ := newTestBus()
	a := b.Attach("a")
	a.SetFIFODepth(1)
	a.EngageTransmit()

	assert.True(t, a.WriteSymbol(line.Data(1)))
	assert.False(t, a.WriteSymbol(line.Data(2)))
}

func TestBus_EngageReceiveCutsShifter(t *testing.T) {
	b, clock := newTestBus()
	a := b.Attach("a")
	c := b.Attach("c")

	a.EngageTransmit()
	a.WriteSymbol(line.Data(1))
	a.WriteSymbol(line.Data(2))
	clock.Advance(testByteTime)
	a.EngageReceive()
	clock.Advance(testByteTime)

	got := readAll(c)
	require.Len(t, got, 1)
	assert.Equal(t, line.Data(1), got[0].sym)
	assert.True(t, a.TxComplete())
	assert.False(t, a.Driving())
}

func TestBus_UnpoweredPort(t *testing.T) {
	b, clock := newTestBus()
	a := b.Attach("a")
	c := b.Attach("c")
	c.SetPowered(false)

	a.EngageTransmit()
	a.WriteSymbol(line.Data(1))
	clock.Advance(testByteTime)
	assert.Empty(t, readAll(c))

	c.SetPowered(true)
	a.WriteSymbol(line.Data(2))
	clock.Advance(testByteTime)
	got := readAll(c)
	require.Len(t, got, 1)
	assert.Equal(t, line.Data(2), got[0].sym)
}
