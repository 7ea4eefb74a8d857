//go:build linux

// File: transport/tcp/sockopt_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux socket tuning for the listener: SO_REUSEADDR lets restarts
// rebind without waiting out TIME_WAIT.

package tcp

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenConfig returns a ListenConfig applying listener socket options
// before bind.
func listenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var optErr error
			err := c.Control(func(fd uintptr) {
				optErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return optErr
		},
	}
}
