// File: protocol/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WSConnection owns a single connection's lifecycle: it sequences
// Connecting → Open → Closing → Closed, drives the receive loop over
// the abstract transport, dispatches decoded frames by opcode, and
// funnels every outbound frame through one send path so concurrent
// senders never interleave bytes on the wire.

package protocol

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/momentics/secure-ws/api"
	"github.com/momentics/secure-ws/pool"
)

// Role distinguishes the two endpoint roles. Client frames are always
// masked on the wire, server frames never are; ping/close handling also
// differs per role.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// String returns the role name.
func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// ConnOption customizes WSConnection construction.
type ConnOption func(*WSConnection)

// WithDispatcher shares an externally owned event dispatcher, letting
// subscribers survive reconnects that replace the connection object.
func WithDispatcher(d *api.Dispatcher) ConnOption {
	return func(c *WSConnection) { c.events = d }
}

// WithDeflate enables permessage-deflate on data messages, as agreed
// during the handshake.
func WithDeflate(enabled bool) ConnOption {
	return func(c *WSConnection) { c.deflate = enabled }
}

// WithReadBufferSize overrides the receive buffer size.
func WithReadBufferSize(n int) ConnOption {
	return func(c *WSConnection) {
		if n > 0 {
			c.readBufSize = n
		}
	}
}

// WithBufferPool shares a byte pool across connections.
func WithBufferPool(p *pool.BytePool) ConnOption {
	return func(c *WSConnection) { c.bufPool = p }
}

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) ConnOption {
	return func(c *WSConnection) { c.log = l }
}

// WithPreface seeds the frame decoder with bytes that arrived coalesced
// with the handshake.
func WithPreface(p []byte) ConnOption {
	return func(c *WSConnection) { c.preface = p }
}

// WSConnection encapsulates one WebSocket session over a transport.
type WSConnection struct {
	transport api.Transport
	role      Role
	events    *api.Dispatcher
	log       *slog.Logger

	deflate     bool
	readBufSize int
	bufPool     *pool.BytePool
	preface     []byte
	ownsEvents  bool

	state      atomic.Int32
	sendMu     sync.Mutex   // single writer on the wire at a time
	lastPong   atomic.Int64 // unix nanos, shared with the pong monitor
	deliberate atomic.Bool  // local Close was requested
	closeOnce  sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWSConnection constructs a connection in the Connecting state over
// an already-handshaken transport. Call Open to start the receive loop.
func NewWSConnection(t api.Transport, role Role, opts ...ConnOption) *WSConnection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &WSConnection{
		transport:   t,
		role:        role,
		readBufSize: pool.DefaultBufferSize,
		ctx:         ctx,
		cancel:      cancel,
	}
	c.state.Store(int32(api.StateConnecting))
	for _, o := range opts {
		o(c)
	}
	if c.events == nil {
		c.events = api.NewDispatcher()
		c.ownsEvents = true
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.bufPool == nil {
		c.bufPool = pool.NewBytePool(c.readBufSize)
	}
	c.log = c.log.With(slog.String("role", role.String()))
	return c
}

// Events returns the connection's event dispatcher.
func (c *WSConnection) Events() *api.Dispatcher { return c.events }

// State returns the current lifecycle state.
func (c *WSConnection) State() api.ConnState {
	return api.ConnState(c.state.Load())
}

// Done is closed when the connection reaches Closed.
func (c *WSConnection) Done() <-chan struct{} { return c.ctx.Done() }

// Context carries the connection's cancellation signal; keepalive and
// monitor loops derive from it.
func (c *WSConnection) Context() context.Context { return c.ctx }

// Transport exposes the underlying byte channel, e.g. for peer
// identity inspection. The engine never validates certificates itself.
func (c *WSConnection) Transport() api.Transport { return c.transport }

// LastPong returns the instant the most recent pong arrived.
func (c *WSConnection) LastPong() time.Time {
	return time.Unix(0, c.lastPong.Load())
}

// Open transitions Connecting → Open, emits the open notification, and
// starts the receive loop.
func (c *WSConnection) Open() error {
	if !c.state.CompareAndSwap(int32(api.StateConnecting), int32(api.StateOpen)) {
		return api.ErrConnectionClosed
	}
	c.lastPong.Store(time.Now().UnixNano())
	addr := ""
	if a := c.transport.RemoteAddr(); a != nil {
		addr = a.String()
	}
	_ = c.events.Publish(api.OpenEvent{RemoteAddr: addr})
	c.log.Debug("connection open", slog.String("remote", addr))
	go c.recvLoop()
	return nil
}

// SendText sends a single text frame (compressed when negotiated).
func (c *WSConnection) SendText(s string) error {
	return c.sendData(OpcodeText, []byte(s))
}

// SendBinary sends a single binary frame (compressed when negotiated).
func (c *WSConnection) SendBinary(p []byte) error {
	return c.sendData(OpcodeBinary, p)
}

// SendPing sends a ping control frame.
func (c *WSConnection) SendPing(payload []byte) error {
	return c.sendFrame(OpcodePing, payload, false)
}

// SendPong sends a pong control frame.
func (c *WSConnection) SendPong(payload []byte) error {
	return c.sendFrame(OpcodePong, payload, false)
}

// Close performs the deliberate close path: best-effort close frame with
// the given code and reason, then unconditional teardown. The closed
// notification fires exactly once regardless of who initiated.
func (c *WSConnection) Close(code int, reason string) error {
	c.deliberate.Store(true)
	return c.closeInternal(code, reason, false)
}

// CloseAbnormal closes like Close but flags the closed notification as
// abnormal, which is what the reconnect supervisor reacts to. Used for
// protocol errors and pong timeouts.
func (c *WSConnection) CloseAbnormal(code int, reason string) error {
	return c.closeInternal(code, reason, true)
}

func (c *WSConnection) closeInternal(code int, reason string, abnormal bool) error {
	for {
		cur := c.state.Load()
		if cur == int32(api.StateClosed) {
			return nil
		}
		if c.state.CompareAndSwap(cur, int32(api.StateClosing)) {
			break
		}
	}
	// 1005 and 1006 are synthesized locally and never appear on the wire.
	if code != CloseNoStatusRcvd && code != CloseAbnormalClosure {
		if err := c.sendFrame(OpcodeClose, EncodeClosePayload(code, reason), false); err != nil {
			c.log.Debug("close frame send failed", slog.String("error", err.Error()))
		}
	}
	c.teardown(code, reason, abnormal)
	return nil
}

// teardown releases the transport, cancels background loops, marks the
// state Closed, and emits the closed notification exactly once. A
// dispatcher created by this connection is closed here as well, after
// the closed notification is queued; shared dispatchers stay with
// their owner. The close runs on its own goroutine so teardown is safe
// to reach from a subscriber callback.
func (c *WSConnection) teardown(code int, reason string, abnormal bool) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(api.StateClosed))
		c.cancel()
		_ = c.transport.Close()
		_ = c.events.Publish(api.CloseEvent{Code: code, Reason: reason, Abnormal: abnormal})
		c.log.Debug("connection closed",
			slog.Int("code", code), slog.String("reason", reason), slog.Bool("abnormal", abnormal))
		if c.ownsEvents {
			go c.events.Close()
		}
	})
}

// sendData applies permessage-deflate when negotiated and sends one
// complete data frame.
func (c *WSConnection) sendData(opcode byte, payload []byte) error {
	rsv1 := false
	if c.deflate && len(payload) > 0 {
		compressed, err := CompressMessage(payload)
		if err != nil {
			return err
		}
		payload = compressed
		rsv1 = true
	}
	return c.sendFrame(opcode, payload, rsv1)
}

// sendFrame encodes and writes one frame under the send mutex. Client
// frames are masked, server frames are not.
func (c *WSConnection) sendFrame(opcode byte, payload []byte, rsv1 bool) error {
	st := c.State()
	if st != api.StateOpen && st != api.StateClosing {
		return api.ErrConnectionClosed
	}
	data, err := EncodeFrame(opcode, payload, c.role == RoleClient, rsv1)
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if _, err := c.transport.Write(data); err != nil {
		return &api.TransportError{Op: "write", Err: err}
	}
	return nil
}

// recvLoop reads transport bytes into a pooled buffer, feeds the
// streaming decoder, and dispatches each completed frame. A zero-byte
// read or EOF means the peer dropped the transport without a close
// frame; that synthesizes an abnormal closure with code 1006.
func (c *WSConnection) recvLoop() {
	dec := &StreamDecoder{}
	buf := c.bufPool.Get()
	defer c.bufPool.Put(buf)

	if len(c.preface) > 0 {
		if !c.processBytes(dec, c.preface) {
			return
		}
		c.preface = nil
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		n, err := c.transport.Read(buf)
		if n > 0 {
			if !c.processBytes(dec, buf[:n]) {
				return
			}
		}
		if err != nil || n == 0 {
			if c.State() == api.StateClosed {
				return
			}
			if err == nil || err == io.EOF {
				c.teardown(CloseAbnormalClosure, "abnormal closure", true)
				return
			}
			_ = c.events.Publish(api.ErrorEvent{Err: &api.TransportError{Op: "read", Err: err}})
			c.teardown(CloseAbnormalClosure, "transport failure", true)
			return
		}
	}
}

// processBytes feeds raw bytes to the decoder and dispatches resulting
// frames. Returns false when the loop must stop.
func (c *WSConnection) processBytes(dec *StreamDecoder, raw []byte) bool {
	frames, err := dec.Feed(raw)
	for _, f := range frames {
		if !c.handleFrame(f) {
			return false
		}
	}
	if err != nil {
		_ = c.events.Publish(api.ErrorEvent{Err: err})
		_ = c.CloseAbnormal(CloseProtocolError, "malformed frame")
		return false
	}
	return true
}

// handleFrame dispatches one decoded frame by opcode. Returns false
// when the connection is terminating.
func (c *WSConnection) handleFrame(f *WSFrame) bool {
	switch f.Opcode {
	case OpcodeText, OpcodeBinary:
		return c.handleData(f)

	case OpcodeClose:
		return c.handleClose(f)

	case OpcodePing:
		_ = c.events.Publish(api.PingEvent{Payload: f.Payload})
		if c.role == RoleServer {
			// Server answers immediately with the same payload. The
			// client role only notifies; replying is the caller's call.
			if err := c.SendPong(f.Payload); err != nil {
				c.log.Debug("pong reply failed", slog.String("error", err.Error()))
			}
		}
		return true

	case OpcodePong:
		if c.role == RoleClient {
			c.lastPong.Store(time.Now().UnixNano())
			_ = c.events.Publish(api.PongEvent{Payload: f.Payload})
		}
		return true

	default:
		perr := &api.ProtocolError{Reason: "unsupported opcode"}
		if c.role == RoleServer {
			// Server tolerates unknown opcodes; the connection survives.
			c.log.Warn("ignoring unsupported opcode", slog.Int("opcode", int(f.Opcode)))
			return true
		}
		_ = c.events.Publish(api.ErrorEvent{Err: perr})
		_ = c.CloseAbnormal(CloseProtocolError, perr.Reason)
		return false
	}
}

// handleData validates, optionally inflates, and dispatches one data
// message. Fragmented messages are not reassembled: a non-final data
// frame is treated like an unsupported opcode, per role.
func (c *WSConnection) handleData(f *WSFrame) bool {
	if !f.IsFinal {
		if c.role == RoleServer {
			c.log.Warn("ignoring fragmented data frame")
			return true
		}
		perr := &api.ProtocolError{Reason: "fragmented messages are not supported"}
		_ = c.events.Publish(api.ErrorEvent{Err: perr})
		_ = c.CloseAbnormal(CloseProtocolError, perr.Reason)
		return false
	}

	payload := f.Payload
	if f.Rsv1 {
		if !c.deflate {
			perr := &api.ProtocolError{Reason: "compressed frame without negotiated extension"}
			_ = c.events.Publish(api.ErrorEvent{Err: perr})
			_ = c.CloseAbnormal(CloseProtocolError, perr.Reason)
			return false
		}
		inflated, err := DecompressMessage(payload)
		if err != nil {
			_ = c.events.Publish(api.ErrorEvent{Err: err})
			_ = c.CloseAbnormal(CloseInvalidPayloadData, "inflate failed")
			return false
		}
		payload = inflated
	}

	if f.Opcode == OpcodeText && !utf8.Valid(payload) {
		perr := &api.ProtocolError{Reason: "text payload is not valid UTF-8"}
		_ = c.events.Publish(api.ErrorEvent{Err: perr})
		_ = c.CloseAbnormal(CloseInvalidPayloadData, perr.Reason)
		return false
	}

	_ = c.events.Publish(api.MessageEvent{Data: payload, Text: f.Opcode == OpcodeText})
	return true
}

// handleClose parses the peer's close frame and runs the role-specific
// close response. Both roles end in teardown carrying the peer's code
// and reason.
func (c *WSConnection) handleClose(f *WSFrame) bool {
	code, reason, err := DecodeClosePayload(f.Payload)
	if err != nil {
		_ = c.events.Publish(api.ErrorEvent{Err: err})
		_ = c.CloseAbnormal(CloseProtocolError, "malformed close payload")
		return false
	}

	if c.role == RoleServer {
		// Server replies with its own close frame right away. Never
		// regress a connection that already finished closing.
		for {
			cur := c.state.Load()
			if cur == int32(api.StateClosed) {
				return false
			}
			if c.state.CompareAndSwap(cur, int32(api.StateClosing)) {
				break
			}
		}
		echo := CloseNormalClosure
		if code != CloseNoStatusRcvd {
			echo = code
		}
		if serr := c.sendFrame(OpcodeClose, EncodeClosePayload(echo, ""), false); serr != nil {
			c.log.Debug("close reply failed", slog.String("error", serr.Error()))
		}
		c.teardown(code, reason, false)
		return false
	}

	// Client funnels peer-initiated closes through the unified path.
	_ = c.closeInternal(code, reason, false)
	return false
}
