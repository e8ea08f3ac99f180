package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/arloliu/go-nodebus/bus"
	"github.com/arloliu/go-nodebus/tunnel"
)

// SessionInfo describes one connected client.
type SessionInfo struct {
	ID      uint64
	Remote  string
	Address bus.Address // bus.Broadcast until the client has sent it
	Started time.Time
	Tunnel  bool // the controller took the tunnel request
}

type session struct {
	id   uint64
	conn net.Conn

	mu   sync.Mutex
	info SessionInfo
	pipe *tunnel.Pipe
}

func newSession(id uint64, conn net.Conn) *session {
	return &session{
		id:   id,
		conn: conn,
		info: SessionInfo{
			ID:      id,
			Remote:  conn.RemoteAddr().String(),
			Address: bus.Broadcast,
			Started: time.Now(),
		},
	}
}

// Info returns a copy of the session description.
func (sess *session) Info() SessionInfo {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	return sess.info
}

func (sess *session) setTunnel(addr bus.Address, pipe *tunnel.Pipe) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.info.Address = addr
	sess.info.Tunnel = true
	sess.pipe = pipe
}

// abort drops the client and the tunnel without waiting for either.
func (sess *session) abort() {
	sess.mu.Lock()
	pipe := sess.pipe
	sess.mu.Unlock()

	if pipe != nil {
		pipe.Conn().Abort()
	}
	_ = sess.conn.Close()
}

func (s *Server) serveSession(ctx context.Context, sess *session) {
	defer sess.conn.Close()

	var hdr [1]byte
	_ = sess.conn.SetReadDeadline(time.Now().Add(s.cfg.handshakeTimeout))
	if _, err := io.ReadFull(sess.conn, hdr[:]); err != nil {
		s.logger.Debug("nodebus: client sent no address", "session", sess.id, "error", err)
		return
	}
	_ = sess.conn.SetReadDeadline(time.Time{})

	addr := bus.Address(hdr[0])
	pipe := tunnel.NewPipe()
	if err := s.tunneler.RequestTunnel(ctx, addr, pipe); err != nil {
		s.metrics.incRejectCount()
		s.logger.Warn("nodebus: tunnel request rejected", "session", sess.id, "address", addr, "error", err)
		_, _ = fmt.Fprintf(sess.conn, "error: %v\n", err)

		return
	}
	sess.setTunnel(addr, pipe)
	s.metrics.incTunnelCount()
	s.logger.Info("nodebus: tunnel requested by client", "session", sess.id, "address", addr)

	pc := pipe.Conn()
	uplinkDone := make(chan struct{})
	go func() {
		defer close(uplinkDone)

		_, err := io.Copy(pc, sess.conn)
		if err != nil && !errors.Is(err, tunnel.ErrPipeClosed) {
			pc.Abort()
			return
		}
		_ = pc.Close()
	}()

	if _, err := io.Copy(sess.conn, pc); err != nil {
		// The client is gone; nobody is left to read the reason.
		pc.Abort()
		_ = sess.conn.Close()
		<-uplinkDone
		s.logger.Info("nodebus: client dropped", "session", sess.id, "address", addr, "error", err)

		return
	}

	reason, abrupt, _ := pipe.Result()
	_, _ = fmt.Fprintf(sess.conn, "%s\n", reason)
	_ = sess.conn.Close()
	<-uplinkDone

	s.logger.Info("nodebus: client session ended", "session", sess.id, "address", addr,
		"reason", reason.String(), "abrupt", abrupt)
}
