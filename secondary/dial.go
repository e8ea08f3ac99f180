package secondary

import (
	"io"
	"net"
	"time"

	"github.com/arloliu/go-nodebus/logger"
	"github.com/arloliu/go-nodebus/tunnel"
)

// DialAcceptor returns an Acceptor that connects every tunnel to a TCP
// service at address. A failed dial aborts the tunnel.
func DialAcceptor(address string, timeout time.Duration, l logger.Logger) Acceptor {
	if l == nil {
		l = logger.GetLogger()
	}

	return AcceptorFunc(func() tunnel.Endpoint {
		p := tunnel.NewPipe()
		go dialTunnel(p.Conn(), address, timeout, l)

		return p
	})
}

func dialTunnel(pc *tunnel.PipeConn, address string, timeout time.Duration, l logger.Logger) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		l.Warn("nodebus: tunnel service unreachable", "address", address, "error", err)
		pc.Abort()

		return
	}
	defer conn.Close()

	go func() {
		// Tunnel ended: Read returns EOF, the service sees our close.
		_, _ = io.Copy(conn, pc)
		_ = conn.Close()
	}()

	if _, err := io.Copy(pc, conn); err != nil {
		pc.Abort()
		return
	}
	_ = pc.Close()
}
