// File: transport/tcp/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package tcp provides the listening side of the transport boundary:
// a TCP or TLS listener producing api.Transport connections, with
// platform socket tuning applied at bind time.
package tcp
