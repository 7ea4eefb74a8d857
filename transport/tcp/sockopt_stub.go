//go:build !linux

// File: transport/tcp/sockopt_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Portable fallback: no socket tuning outside Linux.

package tcp

import "net"

func listenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
