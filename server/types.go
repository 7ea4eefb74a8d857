// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import "time"

// Config holds all server-side configuration parameters.
type Config struct {
	ListenAddr      string        // TCP bind address, e.g. ":9443"
	CertFile        string        // TLS certificate; empty pair means plain TCP
	KeyFile         string        // TLS private key
	Subprotocols    []string      // subprotocols the server will negotiate
	EnableDeflate   bool          // accept permessage-deflate when offered
	EchoHeaders     []string      // request headers echoed into the 101 response
	ReadBufferSize  int           // per-connection receive buffer size
	WorkerPoolSize  int           // message handler goroutine cap
	RateLimit       float64       // messages per second per connection; 0 = unlimited
	RateBurst       int           // rate limiter burst size
	SessionShards   int           // session registry shard count
	ShutdownTimeout time.Duration // graceful shutdown close deadline
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":9443",
		ReadBufferSize:  64 * 1024,
		WorkerPoolSize:  256,
		RateLimit:       0,
		RateBurst:       32,
		SessionShards:   16,
		ShutdownTimeout: 30 * time.Second,
	}
}
