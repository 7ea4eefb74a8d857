// File: server/options.go
// Package server defines functional options for the Server facade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"crypto/tls"
	"log/slog"

	"github.com/momentics/secure-ws/pool"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// WithTLSConfig supplies a caller-built TLS configuration, overriding
// the CertFile/KeyFile pair.
func WithTLSConfig(cfg *tls.Config) ServerOption {
	return func(s *Server) {
		s.tlsCfg = cfg
	}
}

// WithBufferPool shares a receive buffer pool across connections.
func WithBufferPool(p *pool.BytePool) ServerOption {
	return func(s *Server) {
		s.bufPool = p
	}
}
