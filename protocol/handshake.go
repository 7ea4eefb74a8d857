// File: protocol/handshake.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WebSocket HTTP-upgrade handshake for both roles: request/response
// construction, header parsing (CRLF lines, split on the first colon),
// accept-key computation per RFC 6455 §1.3, and negotiation of
// subprotocols and permessage-deflate.

package protocol

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/momentics/secure-ws/api"
)

// HandshakeRequest models the client upgrade request.
type HandshakeRequest struct {
	Host         string
	Path         string
	Key          string            // 16 random bytes, base64-encoded
	Subprotocols []string          // ordered preference list
	Compression  bool              // advertise permessage-deflate
	Headers      map[string]string // caller-supplied headers, last write wins
}

// HandshakeResponse models the server upgrade response as seen by the
// client.
type HandshakeResponse struct {
	StatusLine      string
	Accept          string
	Subprotocol     string
	DeflateAccepted bool
	Headers         map[string]string // remaining headers, lowercased keys
}

// AcceptOptions configures the server side of the handshake.
type AcceptOptions struct {
	Subprotocols  []string // protocols the server is willing to speak
	EnableDeflate bool     // echo permessage-deflate when requested
	EchoHeaders   []string // custom request headers echoed back verbatim
}

// Negotiation records what a completed server handshake agreed on.
type Negotiation struct {
	Subprotocol string
	Deflate     bool
}

// GenerateKey produces the random Sec-WebSocket-Key value.
func GenerateKey() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate websocket key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw[:]), nil
}

// ComputeAcceptKey computes the Sec-WebSocket-Accept value from the
// client's key per RFC 6455 §1.3.
func ComputeAcceptKey(clientKey string) string {
	hash := sha1.Sum([]byte(clientKey + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// Marshal renders the upgrade request wire bytes. Caller headers are
// emitted in sorted order so output is deterministic.
func (r *HandshakeRequest) Marshal() []byte {
	var b strings.Builder
	path := r.Path
	if path == "" {
		path = "/"
	}
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&b, "Host: %s\r\n", r.Host)
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Key: %s\r\n", r.Key)
	fmt.Fprintf(&b, "Sec-WebSocket-Version: %s\r\n", RequiredWebSocketVersion)
	if r.Compression {
		fmt.Fprintf(&b, "Sec-WebSocket-Extensions: %s\r\n", PermessageDeflate)
	}
	if len(r.Subprotocols) > 0 {
		fmt.Fprintf(&b, "Sec-WebSocket-Protocol: %s\r\n", strings.Join(r.Subprotocols, ", "))
	}
	names := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(&b, "%s: %s\r\n", k, r.Headers[k])
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// parseHeaderBlock splits raw handshake bytes into the start line and a
// lowercase-keyed header map. Each header line is split on the first
// colon; malformed lines are rejected.
func parseHeaderBlock(raw []byte) (string, map[string]string, error) {
	lines := strings.Split(string(raw), "\r\n")
	if len(lines) == 0 || lines[0] == "" {
		return "", nil, &api.ProtocolError{Reason: "empty handshake block"}
	}
	headers := make(map[string]string, len(lines))
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			return "", nil, &api.ProtocolError{Reason: "malformed header line: " + line}
		}
		key := strings.ToLower(strings.TrimSpace(line[:idx]))
		headers[key] = strings.TrimSpace(line[idx+1:])
	}
	return lines[0], headers, nil
}

// headerContainsToken reports whether a comma-separated header value
// contains token, case-insensitive.
func headerContainsToken(value, token string) bool {
	token = strings.ToLower(token)
	for _, p := range strings.Split(value, ",") {
		if strings.ToLower(strings.TrimSpace(p)) == token {
			return true
		}
	}
	return false
}

// ParseHandshakeRequest validates a raw client upgrade request on the
// server side and extracts everything negotiation needs.
func ParseHandshakeRequest(raw []byte) (*HandshakeRequest, error) {
	startLine, headers, err := parseHeaderBlock(raw)
	if err != nil {
		return nil, &api.HandshakeError{Reason: "malformed request", Err: err}
	}
	parts := strings.Split(startLine, " ")
	if len(parts) < 3 || parts[0] != "GET" {
		return nil, &api.HandshakeError{Reason: "request line is not a GET upgrade"}
	}

	if !headerContainsToken(headers["connection"], "upgrade") ||
		!headerContainsToken(headers["upgrade"], "websocket") {
		return nil, &api.HandshakeError{Reason: "missing or invalid upgrade headers"}
	}
	if headers["sec-websocket-version"] != RequiredWebSocketVersion {
		return nil, &api.HandshakeError{Reason: "unsupported WebSocket version; only '13' is supported"}
	}
	key := headers["sec-websocket-key"]
	if key == "" {
		return nil, &api.HandshakeError{Reason: "missing Sec-WebSocket-Key header"}
	}

	req := &HandshakeRequest{
		Host:        headers["host"],
		Path:        parts[1],
		Key:         key,
		Compression: headerContainsToken(headers["sec-websocket-extensions"], PermessageDeflate),
		Headers:     make(map[string]string),
	}
	if protos := headers["sec-websocket-protocol"]; protos != "" {
		for _, p := range strings.Split(protos, ",") {
			req.Subprotocols = append(req.Subprotocols, strings.TrimSpace(p))
		}
	}
	for k, v := range headers {
		switch k {
		case "host", "connection", "upgrade":
		default:
			if strings.HasPrefix(k, "sec-websocket-") {
				continue
			}
			req.Headers[k] = v
		}
	}
	return req, nil
}

// BuildHandshakeResponse renders the 101 response for a validated
// request and reports what was negotiated. Deflate is echoed only when
// both sides want it; the first mutually supported subprotocol wins.
func BuildHandshakeResponse(req *HandshakeRequest, opts *AcceptOptions) ([]byte, *Negotiation) {
	if opts == nil {
		opts = &AcceptOptions{}
	}
	neg := &Negotiation{}

	var b strings.Builder
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Accept: %s\r\n", ComputeAcceptKey(req.Key))

	if opts.EnableDeflate && req.Compression {
		fmt.Fprintf(&b, "Sec-WebSocket-Extensions: %s\r\n", PermessageDeflate)
		neg.Deflate = true
	}
	for _, want := range req.Subprotocols {
		for _, have := range opts.Subprotocols {
			if want == have {
				fmt.Fprintf(&b, "Sec-WebSocket-Protocol: %s\r\n", have)
				neg.Subprotocol = have
				break
			}
		}
		if neg.Subprotocol != "" {
			break
		}
	}
	for _, name := range opts.EchoHeaders {
		if v, ok := req.Headers[strings.ToLower(name)]; ok {
			fmt.Fprintf(&b, "%s: %s\r\n", name, v)
		}
	}
	b.WriteString("\r\n")
	return []byte(b.String()), neg
}

// ParseHandshakeResponse parses the server's upgrade response on the
// client side.
func ParseHandshakeResponse(raw []byte) (*HandshakeResponse, error) {
	startLine, headers, err := parseHeaderBlock(raw)
	if err != nil {
		return nil, &api.HandshakeError{Reason: "malformed response", Err: err}
	}
	resp := &HandshakeResponse{
		StatusLine:      startLine,
		Accept:          headers["sec-websocket-accept"],
		Subprotocol:     headers["sec-websocket-protocol"],
		DeflateAccepted: headerContainsToken(headers["sec-websocket-extensions"], PermessageDeflate),
		Headers:         headers,
	}
	return resp, nil
}

// Verify checks the status line and the accept key against the key the
// client sent. Any mismatch is a HandshakeError.
func (resp *HandshakeResponse) Verify(clientKey string) error {
	if !strings.Contains(resp.StatusLine, "101") {
		return &api.HandshakeError{Reason: "unexpected status line: " + resp.StatusLine}
	}
	if resp.Accept == "" {
		return &api.HandshakeError{Reason: "missing Sec-WebSocket-Accept header"}
	}
	if resp.Accept != ComputeAcceptKey(clientKey) {
		return &api.HandshakeError{Reason: "Sec-WebSocket-Accept mismatch"}
	}
	return nil
}

// readHeaderBlock reads from t until the CRLFCRLF terminator, the
// header size cap, or stream end. It returns the header bytes and any
// surplus bytes that arrived coalesced after the terminator, so the
// caller can seed its frame decoder with them.
//
// A zero-byte read or EOF before the terminator means the peer closed
// the transport mid-handshake; that is reported distinctly.
func readHeaderBlock(t api.Transport) (head, rest []byte, err error) {
	var acc []byte
	buf := make([]byte, 4096)
	for {
		n, rerr := t.Read(buf)
		if n > 0 {
			acc = append(acc, buf[:n]...)
			if idx := bytes.Index(acc, []byte("\r\n\r\n")); idx >= 0 {
				head = acc[:idx]
				rest = append([]byte(nil), acc[idx+4:]...)
				return head, rest, nil
			}
			if len(acc) > MaxHandshakeHeadersSize {
				return nil, nil, &api.HandshakeError{Reason: "handshake headers too large"}
			}
		}
		if rerr != nil || n == 0 {
			if rerr == nil || rerr == io.EOF {
				return nil, nil, &api.HandshakeError{Reason: "peer closed transport", Err: api.ErrPeerClosedEarly}
			}
			return nil, nil, &api.HandshakeError{Reason: "read during handshake", Err: rerr}
		}
	}
}

// ClientHandshake sends the upgrade request over t, reads and verifies
// the response. Surplus bytes past the response headers are returned so
// frames coalesced with the handshake are not lost.
func ClientHandshake(t api.Transport, req *HandshakeRequest) (*HandshakeResponse, []byte, error) {
	if _, err := t.Write(req.Marshal()); err != nil {
		return nil, nil, &api.HandshakeError{Reason: "write upgrade request", Err: err}
	}
	head, rest, err := readHeaderBlock(t)
	if err != nil {
		return nil, nil, err
	}
	resp, err := ParseHandshakeResponse(head)
	if err != nil {
		return nil, nil, err
	}
	if err := resp.Verify(req.Key); err != nil {
		return nil, nil, err
	}
	return resp, rest, nil
}

// ServerHandshake reads and validates the client's upgrade request from
// t and writes the 101 response. Surplus bytes past the request headers
// are returned for the caller's frame decoder.
func ServerHandshake(t api.Transport, opts *AcceptOptions) (*HandshakeRequest, *Negotiation, []byte, error) {
	head, rest, err := readHeaderBlock(t)
	if err != nil {
		return nil, nil, nil, err
	}
	req, err := ParseHandshakeRequest(head)
	if err != nil {
		return nil, nil, nil, err
	}
	respBytes, neg := BuildHandshakeResponse(req, opts)
	if _, err := t.Write(respBytes); err != nil {
		return nil, nil, nil, &api.HandshakeError{Reason: "write upgrade response", Err: err}
	}
	return req, neg, rest, nil
}
