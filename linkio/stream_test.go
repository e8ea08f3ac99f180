package linkio

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-nodebus/line"
	"github.com/arloliu/go-nodebus/logger"
)

func newTestStream(t *testing.T) (*StreamHardware, net.Conn) {
	t.Helper()

	local, remote := net.Pipe()
	h := NewStreamHardware(local, 0, logger.NewSlogWriter(io.Discard, logger.ErrorLevel, false))
	t.Cleanup(func() {
		_ = h.Close()
		_ = remote.Close()
	})

	return h, remote
}

func waitSymbol(t *testing.T, h *StreamHardware) rxEntry {
	t.Helper()

	var e rxEntry
	require.Eventually(t, func() bool {
		sym, flags, ok := h.ReadSymbol()
		if !ok {
			return false
		}
		e = rxEntry{sym: sym, flags: flags}

		return true
	}, time.Second, time.Millisecond)

	return e
}

func TestEncodeSymbol(t *testing.T) {
	assert.Equal(t, [2]byte{0xA1, 0x55}, EncodeSymbol(line.Marked(0x55)))
	assert.Equal(t, [2]byte{0xA0, 0xAA}, EncodeSymbol(line.Data(0xAA)))
}

func TestStreamHardware_Receive(t *testing.T) {
	h, remote := newTestStream(t)

	go func() {
		_, _ = remote.Write([]byte{0xA1, 0x55, 0xA0, 0x10, 0x07, 0xA0, 0x20})
	}()

	e := waitSymbol(t, h)
	assert.Equal(t, line.Marked(0x55), e.sym)
	assert.Zero(t, e.flags)

	e = waitSymbol(t, h)
	assert.Equal(t, line.Data(0x10), e.sym)

	// A byte where a tag belongs is a framing error.
	e = waitSymbol(t, h)
	assert.Equal(t, line.RxFrameError, e.flags)

	e = waitSymbol(t, h)
	assert.Equal(t, line.Data(0x20), e.sym)
}

func TestStreamHardware_Transmit(t *testing.T) {
	h, remote := newTestStream(t)

	h.EngageTransmit()
	require.True(t, h.WriteSymbol(line.Marked(0x55)))
	require.True(t, h.WriteSymbol(line.Data(0x03)))

	buf := make([]byte, 4)
	_, err := io.ReadFull(remote, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xA1, 0x55, 0xA0, 0x03}, buf)

	require.Eventually(t, h.TxComplete, time.Second, time.Millisecond)
}

func TestStreamHardware_DropsEchoWhileDriving(t *testing.T) {
	h, remote := newTestStream(t)

	h.EngageTransmit()
	_, err := remote.Write([]byte{0xA0, 0x01})
	require.NoError(t, err)
	// The second write only returns once the first pair was processed.
	_, err = remote.Write([]byte{0xA0, 0x02})
	require.NoError(t, err)
	h.EngageReceive()
	_, err = remote.Write([]byte{0xA0, 0x03})
	require.NoError(t, err)

	e := waitSymbol(t, h)
	assert.NotEqual(t, line.Data(0x01), e.sym)
	assert.Contains(t, []line.Symbol{line.Data(0x02), line.Data(0x03)}, e.sym)
}

func TestStreamHardware_CloseTwice(t *testing.T) {
	h, _ := newTestStream(t)

	require.NoError(t, h.Close())
	require.ErrorIs(t, h.Close(), ErrStreamClosed)
	assert.True(t, h.WriteSymbol(line.Data(1)))

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("reader did not stop")
	}
}
