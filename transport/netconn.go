// File: transport/netconn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// NetConn adapts a net.Conn (plain TCP or TLS) to the api.Transport
// abstraction the protocol engine consumes. TLS is terminated here;
// the engine only ever sees decrypted bytes and the peer's certificate
// chain, which it carries but never validates.

package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
)

// NetConn implements api.Transport over a net.Conn.
type NetConn struct {
	conn net.Conn
}

// NewNetConn wraps an established connection.
func NewNetConn(conn net.Conn) *NetConn {
	return &NetConn{conn: conn}
}

// Read fills buf with available bytes.
func (n *NetConn) Read(buf []byte) (int, error) {
	return n.conn.Read(buf)
}

// Write writes all of buf.
func (n *NetConn) Write(buf []byte) (int, error) {
	return n.conn.Write(buf)
}

// Close shuts down the connection.
func (n *NetConn) Close() error {
	return n.conn.Close()
}

// RemoteAddr returns the peer address.
func (n *NetConn) RemoteAddr() net.Addr {
	return n.conn.RemoteAddr()
}

// PeerCertificates returns the TLS peer chain, or nil for plain TCP.
func (n *NetConn) PeerCertificates() []*x509.Certificate {
	if tc, ok := n.conn.(*tls.Conn); ok {
		return tc.ConnectionState().PeerCertificates
	}
	return nil
}

// DialConfig controls outbound transport establishment.
type DialConfig struct {
	// UseTLS selects an encrypted transport (wss). Plain TCP is meant
	// for tests and loopback tooling only.
	UseTLS bool

	// ServerName overrides the SNI/verification name; defaults to the
	// dialed host.
	ServerName string

	// InsecureSkipVerify accepts ANY peer certificate. Testing-only
	// escape hatch; never enable it against production peers. The
	// default is full verification.
	InsecureSkipVerify bool

	// RootCAs optionally pins the verification roots.
	RootCAs *x509.CertPool
}

// Dial establishes the byte channel to addr (host:port) per cfg.
func Dial(ctx context.Context, addr string, cfg DialConfig) (*NetConn, error) {
	d := &net.Dialer{}
	if !cfg.UseTLS {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return NewNetConn(conn), nil
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	serverName := cfg.ServerName
	if serverName == "" {
		serverName = host
	}
	tlsCfg := &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // explicit opt-in, documented testing-only
		RootCAs:            cfg.RootCAs,
		MinVersion:         tls.VersionTLS12,
	}
	td := &tls.Dialer{NetDialer: d, Config: tlsCfg}
	conn, err := td.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial tls %s: %w", addr, err)
	}
	return NewNetConn(conn), nil
}
