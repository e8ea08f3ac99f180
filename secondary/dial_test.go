package secondary

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-nodebus/tunnel"
)

func TestDialAcceptor_Bridges(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.Copy(conn, conn)
	}()

	ep := DialAcceptor(ln.Addr().String(), time.Second, quietLogger()).AcceptTunnel()
	ep.Write([]byte("abc"))

	require.Eventually(t, func() bool { return ep.Available() == 3 }, 2*time.Second, time.Millisecond)
	buf := make([]byte, 3)
	require.Equal(t, 3, ep.Read(buf))
	assert.Equal(t, "abc", string(buf))

	requested, _ := ep.CloseRequested()
	assert.False(t, requested)
	ep.Shutdown(tunnel.StatusClosedByPeer, false)
}

func TestDialAcceptor_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ep := DialAcceptor(addr, time.Second, quietLogger()).AcceptTunnel()

	require.Eventually(t, func() bool {
		requested, abrupt := ep.CloseRequested()
		return requested && abrupt
	}, 2*time.Second, time.Millisecond)
}
