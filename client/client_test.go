package client_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/secure-ws/api"
	"github.com/momentics/secure-ws/client"
	"github.com/momentics/secure-ws/protocol"
	"github.com/momentics/secure-ws/transport"
	"github.com/momentics/secure-ws/transport/tcp"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoServer runs a loopback listener whose connections upgrade and
// echo every data message back.
func echoServer(t *testing.T) string {
	t.Helper()
	ln, err := tcp.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			tr, err := ln.Accept()
			if err != nil {
				return
			}
			go serveEcho(tr)
		}
	}()
	return ln.Addr().String()
}

func serveEcho(tr *transport.NetConn) {
	_, neg, rest, err := protocol.ServerHandshake(tr, &protocol.AcceptOptions{
		Subprotocols:  []string{"chat"},
		EnableDeflate: true,
	})
	if err != nil {
		_ = tr.Close()
		return
	}
	conn := protocol.NewWSConnection(tr, protocol.RoleServer,
		protocol.WithPreface(rest),
		protocol.WithDeflate(neg.Deflate),
		protocol.WithLogger(quiet()),
	)
	conn.Events().Subscribe(func(ev api.Event) {
		if m, ok := ev.(api.MessageEvent); ok {
			if m.Text {
				_ = conn.SendText(string(m.Data))
			} else {
				_ = conn.SendBinary(m.Data)
			}
		}
	})
	_ = conn.Open()
}

type recorder struct {
	ch chan api.Event
}

func record(c *client.WebSocketClient) *recorder {
	r := &recorder{ch: make(chan api.Event, 256)}
	c.Events().Subscribe(func(ev api.Event) { r.ch <- ev })
	return r
}

// waitFor pulls events until one of type T arrives.
func waitFor[T api.Event](t *testing.T, r *recorder) T {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-r.ch:
			if typed, ok := ev.(T); ok {
				return typed
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

// TestClientRejectsInvalidURL verifies scheme and host validation.
func TestClientRejectsInvalidURL(t *testing.T) {
	_, err := client.New(client.Config{URL: "http://example.com", Logger: quiet()})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	_, err = client.New(client.Config{URL: "ws://", Logger: quiet()})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

// TestClientConnectEchoAndClose covers the happy path: upgrade with
// subprotocol negotiation, a text round trip, and a deliberate close.
func TestClientConnectEchoAndClose(t *testing.T) {
	addr := echoServer(t)
	c, err := client.New(client.Config{
		URL:          "ws://" + addr,
		Subprotocols: []string{"chat"},
		ReconnectMax: -1,
		Logger:       quiet(),
	})
	require.NoError(t, err)
	r := record(c)

	require.NoError(t, c.Connect(context.Background()))
	waitFor[api.OpenEvent](t, r)
	assert.Equal(t, "chat", c.Subprotocol())
	assert.Equal(t, api.StateOpen, c.State())

	require.NoError(t, c.SendText("round trip"))
	msg := waitFor[api.MessageEvent](t, r)
	assert.True(t, msg.Text)
	assert.Equal(t, "round trip", string(msg.Data))

	require.NoError(t, c.Close(protocol.CloseNormalClosure, "bye"))
	ce := waitFor[api.CloseEvent](t, r)
	assert.Equal(t, protocol.CloseNormalClosure, ce.Code)
	assert.False(t, ce.Abnormal)
	assert.Equal(t, api.StateClosed, c.State())
}

// TestClientCompressionRoundTrip verifies permessage-deflate end to end
// against a deflate-enabled peer.
func TestClientCompressionRoundTrip(t *testing.T) {
	addr := echoServer(t)
	c, err := client.New(client.Config{
		URL:               "ws://" + addr,
		EnableCompression: true,
		ReconnectMax:      -1,
		Logger:            quiet(),
	})
	require.NoError(t, err)
	r := record(c)

	require.NoError(t, c.Connect(context.Background()))
	waitFor[api.OpenEvent](t, r)

	payload := "compressed payload compressed payload compressed payload"
	require.NoError(t, c.SendText(payload))
	msg := waitFor[api.MessageEvent](t, r)
	assert.Equal(t, payload, string(msg.Data))

	_ = c.Close(protocol.CloseNormalClosure, "")
}

// TestClientRejectsBadAcceptKey verifies an accept-key mismatch fails
// the connect and emits no open notification.
func TestClientRejectsBadAcceptKey(t *testing.T) {
	ln, err := tcp.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		tr, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 4096)
		if _, err := tr.Read(buf); err != nil {
			return
		}
		_, _ = tr.Write([]byte("HTTP/1.1 101 Switching Protocols\r\n" +
			"Upgrade: websocket\r\n" +
			"Connection: Upgrade\r\n" +
			"Sec-WebSocket-Accept: bm90LXRoZS1yaWdodC1rZXk=\r\n\r\n"))
	}()

	c, err := client.New(client.Config{
		URL:          "ws://" + ln.Addr().String(),
		ReconnectMax: -1,
		Logger:       quiet(),
	})
	require.NoError(t, err)
	r := record(c)

	err = c.Connect(context.Background())
	var hsErr *api.HandshakeError
	require.ErrorAs(t, err, &hsErr)

	select {
	case ev := <-r.ch:
		_, isOpen := ev.(api.OpenEvent)
		assert.False(t, isOpen, "no open notification after a failed handshake")
	case <-time.After(100 * time.Millisecond):
	}
}

// TestClientPongTimeout verifies a silent peer triggers the liveness
// monitor: one timeout error, one abnormal close with code 1011.
func TestClientPongTimeout(t *testing.T) {
	ln, err := tcp.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		tr, err := ln.Accept()
		if err != nil {
			return
		}
		if _, _, _, herr := protocol.ServerHandshake(tr, nil); herr != nil {
			_ = tr.Close()
			return
		}
		// Swallow pings, never answer.
		buf := make([]byte, 1024)
		for {
			if _, err := tr.Read(buf); err != nil {
				return
			}
		}
	}()

	c, err := client.New(client.Config{
		URL:               "ws://" + ln.Addr().String(),
		KeepaliveInterval: 20 * time.Millisecond,
		PongTimeout:       80 * time.Millisecond,
		ReconnectMax:      -1,
		Logger:            quiet(),
	})
	require.NoError(t, err)
	r := record(c)

	require.NoError(t, c.Connect(context.Background()))
	waitFor[api.OpenEvent](t, r)

	ee := waitFor[api.ErrorEvent](t, r)
	var terr *api.TimeoutError
	require.ErrorAs(t, ee.Err, &terr)

	ce := waitFor[api.CloseEvent](t, r)
	assert.Equal(t, protocol.CloseInternalServerErr, ce.Code)
	assert.True(t, ce.Abnormal)

	// Exactly one close notification.
	timeout := time.After(200 * time.Millisecond)
	for {
		select {
		case ev := <-r.ch:
			_, isClose := ev.(api.CloseEvent)
			assert.False(t, isClose, "duplicate close notification")
		case <-timeout:
			return
		}
	}
}

// TestClientReconnectExhaustion verifies the retry budget: once the
// peer is gone for good, the attempt cap is spent and exactly one
// terminal error is published.
func TestClientReconnectExhaustion(t *testing.T) {
	ln, err := tcp.Listen("127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		tr, err := ln.Accept()
		if err != nil {
			return
		}
		_ = ln.Close()
		if _, _, _, herr := protocol.ServerHandshake(tr, nil); herr != nil {
			_ = tr.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
		_ = tr.Close()
	}()

	c, err := client.New(client.Config{
		URL:            "ws://" + ln.Addr().String(),
		ReconnectMax:   3,
		ReconnectDelay: 2 * time.Millisecond,
		Logger:         quiet(),
	})
	require.NoError(t, err)
	r := record(c)

	require.NoError(t, c.Connect(context.Background()))
	waitFor[api.OpenEvent](t, r)

	ce := waitFor[api.CloseEvent](t, r)
	assert.Equal(t, protocol.CloseAbnormalClosure, ce.Code)
	assert.True(t, ce.Abnormal)

	terminalSeen := false
	deadline := time.After(5 * time.Second)
	for !terminalSeen {
		select {
		case ev := <-r.ch:
			if ee, ok := ev.(api.ErrorEvent); ok && errors.Is(ee.Err, api.ErrRetriesExhausted) {
				terminalSeen = true
			}
		case <-deadline:
			t.Fatal("terminal error never arrived")
		}
	}

	// Exactly one terminal notification.
	drain := time.After(200 * time.Millisecond)
	for {
		select {
		case ev := <-r.ch:
			if ee, ok := ev.(api.ErrorEvent); ok {
				assert.False(t, errors.Is(ee.Err, api.ErrRetriesExhausted), "duplicate terminal error")
			}
		case <-drain:
			return
		}
	}
}

// TestClientReconnectExhaustionRepeats verifies each exhaustion episode
// emits its own terminal error: after a manual re-Connect, a second
// exhaustion must notify again instead of staying silent.
func TestClientReconnectExhaustionRepeats(t *testing.T) {
	ln, err := tcp.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	// reject=true makes every accepted transport die before the
	// upgrade, so reconnect attempts burn the retry budget.
	var reject atomic.Bool
	go func() {
		for {
			tr, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				if reject.Load() {
					_ = tr.Close()
					return
				}
				if _, _, _, herr := protocol.ServerHandshake(tr, nil); herr != nil {
					_ = tr.Close()
					return
				}
				time.Sleep(30 * time.Millisecond)
				_ = tr.Close()
			}()
		}
	}()

	c, err := client.New(client.Config{
		URL:            "ws://" + ln.Addr().String(),
		ReconnectMax:   2,
		ReconnectDelay: 2 * time.Millisecond,
		Logger:         quiet(),
	})
	require.NoError(t, err)
	r := record(c)

	waitForTerminal := func() {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case ev := <-r.ch:
				if ee, ok := ev.(api.ErrorEvent); ok && errors.Is(ee.Err, api.ErrRetriesExhausted) {
					return
				}
			case <-deadline:
				t.Fatal("terminal error never arrived")
			}
		}
	}

	require.NoError(t, c.Connect(context.Background()))
	waitFor[api.OpenEvent](t, r)
	reject.Store(true)
	waitForTerminal()

	// Manual re-initiation arms a fresh episode.
	reject.Store(false)
	require.NoError(t, c.Connect(context.Background()))
	waitFor[api.OpenEvent](t, r)
	reject.Store(true)
	waitForTerminal()
}

// TestClientReconnectRestoresSession verifies a dropped connection is
// transparently re-established and the original subscription keeps
// receiving events.
func TestClientReconnectRestoresSession(t *testing.T) {
	ln, err := tcp.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	var accepted atomic.Int32
	go func() {
		for {
			tr, err := ln.Accept()
			if err != nil {
				return
			}
			if accepted.Add(1) == 1 {
				// First connection dies shortly after the upgrade.
				go func() {
					if _, _, _, herr := protocol.ServerHandshake(tr, nil); herr != nil {
						_ = tr.Close()
						return
					}
					time.Sleep(20 * time.Millisecond)
					_ = tr.Close()
				}()
				continue
			}
			go serveEcho(tr)
		}
	}()

	c, err := client.New(client.Config{
		URL:            "ws://" + ln.Addr().String(),
		ReconnectMax:   5,
		ReconnectDelay: 2 * time.Millisecond,
		Logger:         quiet(),
	})
	require.NoError(t, err)
	r := record(c)

	require.NoError(t, c.Connect(context.Background()))
	waitFor[api.OpenEvent](t, r)

	ce := waitFor[api.CloseEvent](t, r)
	assert.True(t, ce.Abnormal)

	// Same subscription sees the replacement connection open.
	waitFor[api.OpenEvent](t, r)

	require.NoError(t, c.SendText("still here"))
	msg := waitFor[api.MessageEvent](t, r)
	assert.Equal(t, "still here", string(msg.Data))

	_ = c.Close(protocol.CloseNormalClosure, "")
}
