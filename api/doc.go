// File: api/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package api defines the shared contracts of the secure-ws engine:
// the transport abstraction the protocol core runs on, the event
// variants delivered to subscribers, the error taxonomy, and the
// connection state model.
//
// The protocol core never dials, listens, or touches TLS; it consumes
// an already-established api.Transport carrying decrypted bytes.
package api
