// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server facade: accepts transport connections, upgrades them, tracks
// sessions, and feeds inbound messages through a bounded worker pool
// with optional per-connection rate limiting.

package server

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/momentics/secure-ws/api"
	"github.com/momentics/secure-ws/internal/session"
	"github.com/momentics/secure-ws/pool"
	"github.com/momentics/secure-ws/protocol"
	"github.com/momentics/secure-ws/transport"
	"github.com/momentics/secure-ws/transport/tcp"
)

var ErrAlreadyRunning = errors.New("server already running")

// Handler processes one inbound data message. It runs on a worker pool
// goroutine, never on the connection's receive loop.
type Handler func(sess *session.Session, msg api.MessageEvent)

// Server encapsulates listener, session registry, and worker pool.
type Server struct {
	cfg      *Config
	log      *slog.Logger
	tlsCfg   *tls.Config
	bufPool  *pool.BytePool
	sessions *session.Registry
	workers  *ants.Pool
	listener *tcp.Listener
	shutdown chan struct{}
	running  atomic.Bool
	stopped  atomic.Bool
}

// NewServer builds the server facade and binds its listener.
func NewServer(cfg *Config, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Server{
		cfg:      cfg,
		sessions: session.NewRegistry(cfg.SessionShards),
		shutdown: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With(slog.String("component", "ws-server"))
	if s.bufPool == nil {
		s.bufPool = pool.NewBytePool(cfg.ReadBufferSize)
	}

	workers, err := ants.NewPool(cfg.WorkerPoolSize)
	if err != nil {
		return nil, err
	}
	s.workers = workers

	ln, err := s.bind()
	if err != nil {
		workers.Release()
		return nil, err
	}
	s.listener = ln
	return s, nil
}

func (s *Server) bind() (*tcp.Listener, error) {
	if s.tlsCfg != nil {
		return tcp.ListenTLSConfig(s.cfg.ListenAddr, s.tlsCfg)
	}
	if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
		return tcp.ListenTLS(s.cfg.ListenAddr, s.cfg.CertFile, s.cfg.KeyFile)
	}
	return tcp.Listen(s.cfg.ListenAddr)
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Sessions exposes the live session registry.
func (s *Server) Sessions() *session.Registry {
	return s.sessions
}

// Serve accepts and handles connections until Shutdown. Each inbound
// data message reaching handler has already passed the rate limiter.
func (s *Server) Serve(handler Handler) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	s.log.Info("listening", slog.String("addr", s.listener.Addr().String()))
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.Warn("accept failed", slog.String("error", err.Error()))
			continue
		}
		go s.handleConn(conn, handler)
	}
}

// handleConn upgrades one accepted transport and registers the session.
func (s *Server) handleConn(tr *transport.NetConn, handler Handler) {
	req, neg, rest, err := protocol.ServerHandshake(tr, &protocol.AcceptOptions{
		Subprotocols:  s.cfg.Subprotocols,
		EnableDeflate: s.cfg.EnableDeflate,
		EchoHeaders:   s.cfg.EchoHeaders,
	})
	if err != nil {
		s.log.Debug("handshake rejected", slog.String("error", err.Error()))
		_ = tr.Close()
		return
	}

	conn := protocol.NewWSConnection(tr, protocol.RoleServer,
		protocol.WithPreface(rest),
		protocol.WithDeflate(neg.Deflate),
		protocol.WithReadBufferSize(s.cfg.ReadBufferSize),
		protocol.WithBufferPool(s.bufPool),
		protocol.WithLogger(s.log),
	)
	sess := s.sessions.Add(conn)

	var limiter *rate.Limiter
	if s.cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst)
	}

	conn.Events().Subscribe(func(ev api.Event) {
		switch e := ev.(type) {
		case api.MessageEvent:
			if limiter != nil && !limiter.Allow() {
				s.log.Warn("rate limit exceeded", slog.String("session", sess.ID()))
				_ = conn.CloseAbnormal(protocol.ClosePolicyViolation, "message rate limit exceeded")
				return
			}
			if handler == nil {
				return
			}
			if perr := s.workers.Submit(func() { handler(sess, e) }); perr != nil {
				s.log.Warn("worker pool rejected message",
					slog.String("session", sess.ID()), slog.String("error", perr.Error()))
			}
		case api.CloseEvent:
			s.sessions.Remove(sess.ID())
		}
	})

	if err := conn.Open(); err != nil {
		s.sessions.Remove(sess.ID())
		_ = conn.CloseAbnormal(protocol.CloseInternalServerErr, "open failed")
		return
	}
	s.log.Debug("session open",
		slog.String("session", sess.ID()),
		slog.String("path", req.Path),
		slog.String("subprotocol", neg.Subprotocol))
}

// Shutdown stops accepting, asks every live session to close with a
// going-away code, and releases the worker pool. Releases the listener
// and workers whether or not Serve ever ran. Idempotent.
func (s *Server) Shutdown() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(s.shutdown)
	err := s.listener.Close()

	done := make(chan struct{})
	go func() {
		s.sessions.Range(func(sess *session.Session) {
			_ = sess.Conn().Close(protocol.CloseGoingAway, "server shutting down")
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownTimeout):
		s.log.Warn("shutdown timed out, abandoning remaining sessions")
	}

	s.workers.Release()
	return err
}
