// File: client/client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reconnecting WebSocket client over an encrypted transport:
// - RFC 6455 handshake with subprotocol and permessage-deflate negotiation
// - keepalive pings and pong-timeout liveness monitoring
// - supervised reconnection with a bounded attempt budget
// - event subscription surviving reconnects

package client

import (
	"context"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/secure-ws/api"
	"github.com/momentics/secure-ws/protocol"
	"github.com/momentics/secure-ws/transport"
)

// Default liveness and retry parameters.
const (
	DefaultKeepaliveInterval = 30 * time.Second
	DefaultReconnectMax      = 5
	DefaultReconnectDelay    = 5 * time.Second
)

// Config holds all configurable parameters for the WebSocket client.
type Config struct {
	URL               string            // ws:// or wss:// endpoint
	Headers           map[string]string // extra handshake headers, last write wins
	Subprotocols      []string          // ordered preference list
	EnableCompression bool              // advertise permessage-deflate
	PongTimeout       time.Duration     // 0 disables the pong monitor
	KeepaliveInterval time.Duration     // ping cadence; default 30s
	ReadBufferSize    int               // receive buffer size
	ReconnectMax      int               // attempt cap; <0 disables reconnection
	ReconnectDelay    time.Duration     // fixed inter-attempt delay; default 5s

	// InsecureSkipVerify accepts ANY server certificate. Explicit
	// testing-only option; the default verifies normally.
	InsecureSkipVerify bool
	RootCAs            *x509.CertPool

	Logger *slog.Logger
}

// WebSocketClient is the client-role facade over the protocol engine.
type WebSocketClient struct {
	cfg    Config
	events *api.Dispatcher
	sup    *Supervisor
	log    *slog.Logger

	mu   sync.Mutex
	conn *protocol.WSConnection
	resp *protocol.HandshakeResponse

	closed       atomic.Bool // deliberate Close; stops the supervisor
	reconnecting atomic.Bool
}

// New validates cfg and builds a client. Connect starts the session.
func New(cfg Config) (*WebSocketClient, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrInvalidArgument, err)
	}
	if (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("%w: URL must be ws:// or wss:// with a host", api.ErrInvalidArgument)
	}
	if cfg.KeepaliveInterval == 0 {
		cfg.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.ReconnectMax == 0 {
		cfg.ReconnectMax = DefaultReconnectMax
	}
	max := cfg.ReconnectMax
	if max < 0 {
		max = 0 // supervisor refuses every ask
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &WebSocketClient{
		cfg:    cfg,
		events: api.NewDispatcher(),
		sup:    NewSupervisor(max, cfg.ReconnectDelay),
		log:    cfg.Logger.With(slog.String("component", "ws-client")),
	}
	c.events.Subscribe(c.onEvent)
	return c, nil
}

// Events returns the dispatcher; subscriptions persist across
// reconnects.
func (c *WebSocketClient) Events() *api.Dispatcher { return c.events }

// Subprotocol returns the protocol agreed during the last handshake.
func (c *WebSocketClient) Subprotocol() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resp == nil {
		return ""
	}
	return c.resp.Subprotocol
}

// State reports the current connection state.
func (c *WebSocketClient) State() api.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return api.StateClosed
	}
	return c.conn.State()
}

// Connect dials, handshakes, and starts the session. A handshake or
// dial failure here is fatal to the attempt; the reconnect supervisor
// only reacts to abnormal closes of a previously open connection.
func (c *WebSocketClient) Connect(ctx context.Context) error {
	c.closed.Store(false)
	c.sup.Reset()
	return c.connectOnce(ctx)
}

// SendText sends a text message.
func (c *WebSocketClient) SendText(s string) error {
	conn := c.current()
	if conn == nil {
		return api.ErrConnectionClosed
	}
	return conn.SendText(s)
}

// SendBinary sends a binary message.
func (c *WebSocketClient) SendBinary(p []byte) error {
	conn := c.current()
	if conn == nil {
		return api.ErrConnectionClosed
	}
	return conn.SendBinary(p)
}

// SendPing sends a ping control frame.
func (c *WebSocketClient) SendPing(payload []byte) error {
	conn := c.current()
	if conn == nil {
		return api.ErrConnectionClosed
	}
	return conn.SendPing(payload)
}

// Close performs a deliberate close with the given code and reason,
// disables reconnection, and releases the dispatcher after queued
// events drain. Idempotent.
func (c *WebSocketClient) Close(code int, reason string) error {
	c.closed.Store(true)
	var err error
	if conn := c.current(); conn != nil {
		err = conn.Close(code, reason)
	}
	// Dispatcher teardown must not run inside a subscriber callback.
	go c.events.Close()
	return err
}

func (c *WebSocketClient) current() *protocol.WSConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// connectOnce runs one full Connecting cycle: dial, handshake, open,
// background loops.
func (c *WebSocketClient) connectOnce(ctx context.Context) error {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", api.ErrInvalidArgument, err)
	}
	useTLS := u.Scheme != "ws"
	addr := u.Host
	if u.Port() == "" {
		if useTLS {
			addr += ":443"
		} else {
			addr += ":80"
		}
	}

	tr, err := transport.Dial(ctx, addr, transport.DialConfig{
		UseTLS:             useTLS,
		InsecureSkipVerify: c.cfg.InsecureSkipVerify,
		RootCAs:            c.cfg.RootCAs,
	})
	if err != nil {
		return &api.TransportError{Op: "dial", Err: err}
	}

	key, err := protocol.GenerateKey()
	if err != nil {
		_ = tr.Close()
		return err
	}
	req := &protocol.HandshakeRequest{
		Host:         u.Host,
		Path:         u.RequestURI(),
		Key:          key,
		Subprotocols: c.cfg.Subprotocols,
		Compression:  c.cfg.EnableCompression,
		Headers:      c.cfg.Headers,
	}
	resp, preface, err := protocol.ClientHandshake(tr, req)
	if err != nil {
		_ = tr.Close()
		return err
	}

	conn := protocol.NewWSConnection(tr, protocol.RoleClient,
		protocol.WithDispatcher(c.events),
		protocol.WithDeflate(c.cfg.EnableCompression && resp.DeflateAccepted),
		protocol.WithReadBufferSize(c.cfg.ReadBufferSize),
		protocol.WithPreface(preface),
		protocol.WithLogger(c.log),
	)

	c.mu.Lock()
	c.conn = conn
	c.resp = resp
	c.mu.Unlock()

	if err := conn.Open(); err != nil {
		return err
	}

	go c.keepaliveLoop(conn)
	if c.cfg.PongTimeout > 0 {
		go c.pongMonitorLoop(conn)
	}
	return nil
}

// keepaliveLoop sends an empty ping every interval while the
// connection is open.
func (c *WebSocketClient) keepaliveLoop(conn *protocol.WSConnection) {
	ticker := time.NewTicker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.SendPing(nil); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}

// pongMonitorLoop checks the shared last-pong timestamp every timeout
// interval. When it goes stale while the connection is still open, it
// surfaces a timeout error and closes with code 1011, exactly once.
// The close runs outside any lock: the timestamp is an atomic value.
func (c *WebSocketClient) pongMonitorLoop(conn *protocol.WSConnection) {
	ticker := time.NewTicker(c.cfg.PongTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if conn.State() != api.StateOpen {
				return
			}
			if time.Since(conn.LastPong()) > c.cfg.PongTimeout {
				terr := &api.TimeoutError{Reason: fmt.Sprintf("no pong within %s", c.cfg.PongTimeout)}
				_ = c.events.Publish(api.ErrorEvent{Err: terr})
				c.log.Warn("pong timeout, closing connection")
				_ = conn.CloseAbnormal(protocol.CloseInternalServerErr, "pong timeout")
				return
			}
		case <-conn.Done():
			return
		}
	}
}

// onEvent feeds abnormal closes into the reconnect supervisor. A
// deliberate Close never triggers retries.
func (c *WebSocketClient) onEvent(ev api.Event) {
	if c.cfg.ReconnectMax < 0 {
		return
	}
	ce, ok := ev.(api.CloseEvent)
	if !ok || !ce.Abnormal || c.closed.Load() {
		return
	}
	if c.reconnecting.CompareAndSwap(false, true) {
		go c.superviseReconnect()
	}
}

// superviseReconnect retries the full Connecting path until success or
// budget exhaustion. Exhaustion emits one terminal error notification
// per episode; the caller must re-initiate manually, and a later
// Connect arms a fresh episode via the supervisor reset.
func (c *WebSocketClient) superviseReconnect() {
	defer c.reconnecting.Store(false)
	for {
		if c.closed.Load() {
			return
		}
		exhausted := c.sup.State() == SupervisorGaveUp
		delay, attempt, ok := c.sup.NextRetry()
		if !ok {
			// Terminal error fires on the edge into GaveUp only;
			// repeat refusals stay silent.
			if !exhausted {
				c.log.Error("reconnect attempts exhausted")
				_ = c.events.Publish(api.ErrorEvent{Err: api.ErrRetriesExhausted})
			}
			return
		}
		time.Sleep(delay)
		if c.closed.Load() {
			return
		}
		c.log.Info("reconnecting", slog.Int("attempt", attempt))
		if err := c.connectOnce(context.Background()); err != nil {
			_ = c.events.Publish(api.ErrorEvent{Err: err})
			continue
		}
		c.sup.Succeeded()
		return
	}
}
