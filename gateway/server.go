package gateway

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-nodebus/bus"
	"github.com/arloliu/go-nodebus/logger"
	"github.com/arloliu/go-nodebus/tunnel"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("gateway: server closed")

// Tunneler opens tunnels on the bus. It must be safe for concurrent use;
// primary.Runner implements it.
type Tunneler interface {
	RequestTunnel(ctx context.Context, addr bus.Address, ep tunnel.Endpoint) error
}

// Server accepts TCP clients and bridges each to a bus tunnel.
type Server struct {
	tunneler Tunneler
	cfg      *Config
	logger   logger.Logger

	listenerMu sync.Mutex
	listener   *net.TCPListener
	shutdown   atomic.Bool

	sessions *xsync.MapOf[uint64, *session]
	nextID   atomic.Uint64
	wg       sync.WaitGroup

	metrics ServerMetrics
}

// NewServer creates a server that requests tunnels from t.
func NewServer(t Tunneler, opts ...Option) (*Server, error) {
	if t == nil {
		return nil, errors.New("gateway: tunneler is nil")
	}

	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Server{
		tunneler: t,
		cfg:      cfg,
		logger:   cfg.logger.With("component", "gateway"),
		sessions: xsync.NewMapOf[uint64, *session](),
	}, nil
}

// GetMetrics returns the server metrics.
func (s *Server) GetMetrics() *ServerMetrics { return &s.metrics }

// ActiveSessions returns the number of connected clients.
func (s *Server) ActiveSessions() int { return s.sessions.Size() }

// Sessions returns a snapshot of the connected clients ordered by ID.
func (s *Server) Sessions() []SessionInfo {
	infos := make([]SessionInfo, 0, s.sessions.Size())
	s.sessions.Range(func(_ uint64, sess *session) bool {
		infos = append(infos, sess.Info())
		return true
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	return infos
}

// Listen binds the TCP listener on address.
func (s *Server) Listen(ctx context.Context, address string) error {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener != nil {
		return errors.New("gateway: already listening")
	}

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		s.logger.Error("nodebus: failed to listen", "address", address, "error", err)
		return err
	}

	tl, ok := l.(*net.TCPListener)
	if !ok {
		_ = l.Close()
		return errors.New("gateway: not a TCP listener")
	}
	s.listener = tl
	s.logger.Info("nodebus: gateway listening", "address", tl.Addr().String())

	return nil
}

// Addr returns the listener address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Serve accepts clients until ctx is done or Close is called, then closes
// every session and waits for them. It returns ctx.Err() or ErrServerClosed.
func (s *Server) Serve(ctx context.Context) error {
	if s.Addr() == nil {
		return errors.New("gateway: Listen must be called before Serve")
	}

	for s.accept(ctx) {
	}

	_ = s.closeListener()
	s.closeSessions()
	s.wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	return ErrServerClosed
}

// Close stops the accept loop. Serve returns once every session is gone.
func (s *Server) Close() error {
	s.shutdown.Store(true)
	err := s.closeListener()
	s.closeSessions()

	return err
}

// accept takes one client; it returns false when the loop must stop.
func (s *Server) accept(ctx context.Context) bool {
	if s.shutdown.Load() || ctx.Err() != nil {
		return false
	}

	l := s.deadlineListener()
	if l == nil {
		return false
	}

	conn, err := l.Accept()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ctx.Err() == nil
		}
		if s.shutdown.Load() {
			return false
		}
		s.logger.Error("nodebus: accept failed", "error", err)

		return true
	}

	if s.sessions.Size() >= s.cfg.maxSessions {
		s.metrics.incRefuseCount()
		s.logger.Warn("nodebus: too many sessions, connection refused",
			"remote", conn.RemoteAddr().String(), "max", s.cfg.maxSessions)
		_ = conn.Close()

		return true
	}

	s.metrics.incAcceptCount()
	sess := newSession(s.nextID.Add(1), conn)
	s.sessions.Store(sess.id, sess)
	s.logger.Debug("nodebus: client connected", "session", sess.id, "remote", sess.info.Remote)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sessions.Delete(sess.id)

		s.serveSession(ctx, sess)
	}()

	return true
}

func (s *Server) deadlineListener() *net.TCPListener {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener == nil {
		return nil
	}

	if err := s.listener.SetDeadline(time.Now().Add(s.cfg.acceptTimeout)); err != nil {
		s.logger.Error("nodebus: failed to set listener deadline", "error", err)
		return nil
	}

	return s.listener
}

func (s *Server) closeListener() error {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil

	return err
}

func (s *Server) closeSessions() {
	s.sessions.Range(func(_ uint64, sess *session) bool {
		sess.abort()
		return true
	})
}
