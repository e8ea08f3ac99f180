package secondary

import (
	"io"

	"github.com/arloliu/go-nodebus/tunnel"
)

// EchoAcceptor returns an Acceptor whose endpoints send every received byte
// back through the tunnel.
func EchoAcceptor() Acceptor {
	return AcceptorFunc(func() tunnel.Endpoint {
		p := tunnel.NewPipe()
		conn := p.Conn()
		go func() {
			_, _ = io.Copy(conn, conn)
			_ = conn.Close()
		}()

		return p
	})
}
