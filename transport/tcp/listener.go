// File: transport/tcp/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TCP/TLS listener feeding accepted connections to the server role.

package tcp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/momentics/secure-ws/transport"
)

// Listener accepts transport connections for the server role.
type Listener struct {
	ln net.Listener
}

// Listen binds a plain TCP listener. Intended for tests and loopback
// tooling; production deployments should use ListenTLS.
func Listen(addr string) (*Listener, error) {
	lc := listenConfig()
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

// ListenTLS binds a TLS listener using the given certificate pair.
func ListenTLS(addr, certFile, keyFile string) (*Listener, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return ListenTLSConfig(addr, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
}

// ListenTLSConfig binds a TLS listener with a caller-built config.
func ListenTLSConfig(addr string, cfg *tls.Config) (*Listener, error) {
	lc := listenConfig()
	inner, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Listener{ln: tls.NewListener(inner, cfg)}, nil
}

// Accept blocks for the next connection and wraps it as a transport.
// Nagle's algorithm is disabled on the accepted socket.
func (l *Listener) Accept() (*transport.NetConn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	setNoDelay(conn)
	return transport.NewNetConn(conn), nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// setNoDelay disables Nagle on the underlying TCP socket, reaching
// through a TLS wrapper when present.
func setNoDelay(conn net.Conn) {
	type netConner interface{ NetConn() net.Conn }
	c := conn
	if tc, ok := c.(netConner); ok {
		c = tc.NetConn()
	}
	if tcp, ok := c.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
}
