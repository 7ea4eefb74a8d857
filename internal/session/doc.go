// File: internal/session/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package session tracks the server's live connections in a sharded,
// thread-safe registry. The accept loop inserts, each connection
// handler removes on teardown, and shutdown ranges over everything
// left. No cross-connection invariant depends on its contents beyond
// that bookkeeping.
package session
