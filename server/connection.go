// File: server/connection.go
// Author: driftws contributors
// License: Apache-2.0
//
// Connection is the per-socket state machine: TCP byte stream -> HTTP
// upgrade handshake -> framed WebSocket session -> close (spec.md
// section 3, section 4.2).

package server

import (
	"errors"
	"fmt"
	"net"
	"unicode/utf8"

	"github.com/driftwave/driftws/protocol"
)

// State is one of the four points in the Connection state machine
// (spec.md section 4.2).
type State int

const (
	AwaitingHandshake State = iota
	Established
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingHandshake:
		return "AwaitingHandshake"
	case Established:
		return "Established"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Connection wraps one accepted TCP socket and drives it through the
// handshake and framing state machine. A Connection is owned by exactly
// one Server and must only be driven from the Server's loop goroutine;
// its Send* methods may additionally be called synchronously from
// inside a ConnectionHandler callback for that same connection (spec.md
// section 5: "callbacks run synchronously on the loop thread").
type Connection struct {
	socket net.Conn
	fd     uintptr
	server *Server // non-owning back-reference, lookup only

	state State

	ingress []byte
	parser  *protocol.FrameParser
	handler ConnectionHandler

	hsKey string // client's Sec-WebSocket-Key, kept until handshake completes

	disconnectOnce bool
}

// pingFrame builds an empty-payload ping frame for the idle-liveness
// sweep (spec.md section 3).
func pingFrame() []byte {
	return protocol.EncodeFrame(protocol.OpcodePing, true, nil)
}

func newConnection(srv *Server, socket net.Conn, fd uintptr) *Connection {
	return &Connection{
		socket: socket,
		fd:     fd,
		server: srv,
		state:  AwaitingHandshake,
		parser: protocol.NewFrameParser(srv.cfg.MaxMessageBytes),
	}
}

// RemoteAddr returns the socket's peer address (SPEC_FULL.md
// "Supplemented features").
func (c *Connection) RemoteAddr() net.Addr { return c.socket.RemoteAddr() }

// LocalAddr returns the socket's local address.
func (c *Connection) LocalAddr() net.Addr { return c.socket.LocalAddr() }

// State reports the connection's current state-machine position.
func (c *Connection) State() State { return c.state }

// recv is invoked by the Server loop when the socket is readable. It
// performs one bounded, non-blocking-compatible read and advances the
// state machine with whatever bytes arrived (spec.md section 5: "a
// single read() per ready socket of a bounded buffer size"). It reports
// whether any bytes were actually read, which the Server uses to stamp
// this connection's last_recv in its registry (spec.md section 3).
func (c *Connection) recv() bool {
	buf := make([]byte, c.server.cfg.ReadBufferSize)
	n, err := rawRead(c.socket, buf)
	if n > 0 {
		c.feed(buf[:n])
	}
	if err != nil {
		if errors.Is(err, errWouldBlock) {
			return n > 0
		}
		// EOF or hard I/O error: abrupt close (spec.md section 4.2 last row).
		c.finish(0, "", false)
		return n > 0
	}
	if n == 0 {
		// Zero-length read with no error means EOF on most platforms.
		c.finish(0, "", false)
		return false
	}
	return true
}

// feed routes newly-arrived bytes to the handshake parser or the frame
// parser depending on state.
func (c *Connection) feed(chunk []byte) {
	switch c.state {
	case AwaitingHandshake:
		c.ingress = append(c.ingress, chunk...)
		c.tryHandshake()
	case Established:
		results, err := c.parser.Feed(chunk, true)
		if err != nil {
			c.protocolFail(err)
			return
		}
		for _, res := range results {
			if c.state != Established {
				return // a prior result already moved us to Closing/Closed
			}
			if res.IsControl {
				c.dispatchControl(res.Control)
			} else {
				c.dispatchMessage(res.Message)
			}
		}
	default:
		// Closing/Closed: ignore further bytes.
	}
}

func (c *Connection) tryHandshake() {
	hs, consumed, err := protocol.ParseHandshake(c.ingress)
	if errors.Is(err, protocol.ErrHandshakeIncomplete) {
		return
	}
	if err != nil {
		c.server.logger().Debug().Err(err).Msg("handshake rejected")
		_ = protocol.WriteErrorResponse(c.socket, 400, "Bad Request")
		c.finish(0, "", false)
		return
	}
	c.hsKey = hs.Key
	c.ingress = c.ingress[consumed:]

	handler := c.handler
	subprotocol, reject := "", false
	if handler != nil {
		subprotocol, reject = handler.OnHandshake(c, hs)
	}
	if reject {
		_ = protocol.WriteErrorResponse(c.socket, 403, "Forbidden")
		c.finish(0, "", false)
		return
	}

	if err := protocol.WriteSwitchingProtocols(c.socket, c.hsKey, subprotocol); err != nil {
		c.finish(0, "", false)
		return
	}
	c.state = Established
	c.hsKey = ""

	if handler != nil {
		handler.OnReady(c)
	}

	// A pipelining client may have sent frame bytes immediately after the
	// handshake in the same TCP segment; drain them now that we're
	// Established instead of waiting for the next readiness tick.
	if len(c.ingress) > 0 {
		rest := c.ingress
		c.ingress = nil
		c.feed(rest)
	}
}

func (c *Connection) dispatchControl(f protocol.Frame) {
	switch f.Opcode {
	case protocol.OpcodePing:
		c.writeFrame(protocol.EncodeFrame(protocol.OpcodePong, true, f.Payload))
		if c.handler != nil {
			c.handler.OnPing(c, f.Payload)
		}
	case protocol.OpcodePong:
		if c.handler != nil {
			c.handler.OnPong(c, f.Payload)
		}
	case protocol.OpcodeClose:
		code, reason := protocol.DecodeClosePayload(f.Payload)
		if code == protocol.CloseNoStatusRcvd {
			// 1005 is a local-use-only sentinel for "no status given" and
			// must never appear on the wire (RFC 6455 section 7.4.1);
			// echo back an empty close payload instead.
			c.writeFrame(protocol.EncodeFrame(protocol.OpcodeClose, true, nil))
		} else {
			c.writeFrame(protocol.EncodeClose(uint16(code), reason))
		}
		c.state = Closing
		c.finish(int(code), reason, true)
	}
}

func (c *Connection) dispatchMessage(msg protocol.Message) {
	if c.handler == nil {
		return
	}
	switch msg.Opcode {
	case protocol.OpcodeText:
		if !utf8.Valid(msg.Payload) {
			c.protocolFail(fmt.Errorf("%w", protocol.ErrInvalidUTF8))
			return
		}
		c.handler.OnText(c, string(msg.Payload))
	case protocol.OpcodeBinary:
		c.handler.OnBinary(c, msg.Payload)
	}
}

func (c *Connection) protocolFail(err error) {
	code := protocol.CloseProtocolError
	if errors.Is(err, protocol.ErrInvalidUTF8) {
		code = protocol.CloseInvalidPayloadData
	} else if errors.Is(err, protocol.ErrMessageTooLarge) {
		code = protocol.CloseMessageTooBig
	}
	c.writeFrame(protocol.EncodeClose(uint16(code), err.Error()))
	c.finish(code, err.Error(), false)
}

// writeFrame writes raw wire bytes directly to the socket. Outbound
// bytes written here are flushed before the calling method returns
// (spec.md section 5 ordering guarantee): net.Conn.Write already blocks
// until the data is handed to the kernel.
func (c *Connection) writeFrame(wire []byte) {
	_, _ = c.socket.Write(wire)
}

// SendUTF8 emits a complete, unfragmented text message.
func (c *Connection) SendUTF8(s string) error {
	if c.state != Established {
		return fmt.Errorf("server: cannot send on a %s connection", c.state)
	}
	_, err := c.socket.Write(protocol.EncodeFrame(protocol.OpcodeText, true, []byte(s)))
	return err
}

// SendBinary emits a complete, unfragmented binary message.
func (c *Connection) SendBinary(b []byte) error {
	if c.state != Established {
		return fmt.Errorf("server: cannot send on a %s connection", c.state)
	}
	_, err := c.socket.Write(protocol.EncodeFrame(protocol.OpcodeBinary, true, b))
	return err
}

// SendPing emits a ping frame; payload must be at most 125 bytes.
func (c *Connection) SendPing(payload []byte) error {
	if len(payload) > protocol.MaxControlPayloadLen {
		return fmt.Errorf("server: ping payload exceeds %d bytes", protocol.MaxControlPayloadLen)
	}
	if c.state != Established {
		return fmt.Errorf("server: cannot send on a %s connection", c.state)
	}
	_, err := c.socket.Write(protocol.EncodeFrame(protocol.OpcodePing, true, payload))
	return err
}

// SendPong emits a pong frame; payload must be at most 125 bytes.
func (c *Connection) SendPong(payload []byte) error {
	if len(payload) > protocol.MaxControlPayloadLen {
		return fmt.Errorf("server: pong payload exceeds %d bytes", protocol.MaxControlPayloadLen)
	}
	if c.state != Established {
		return fmt.Errorf("server: cannot send on a %s connection", c.state)
	}
	_, err := c.socket.Write(protocol.EncodeFrame(protocol.OpcodePong, true, payload))
	return err
}

// Disconnect initiates a user-requested close (spec.md section 4.2):
// if Established, it emits a close frame carrying code/reason and
// transitions to Closing; it is idempotent (spec.md section 5,
// section 8 "Idempotence").
func (c *Connection) Disconnect(code int, reason string) {
	if c.disconnectOnce {
		return
	}
	if code == 0 {
		code = protocol.CloseUserDefaultNormal
	}
	if c.state == Established {
		c.writeFrame(protocol.EncodeClose(uint16(code), reason))
		c.state = Closing
	}
	c.finish(code, reason, true)
}

// finish fires on_disconnect exactly once (spec.md section 3 invariant)
// and asks the Server to tear the socket down. graceful indicates the
// close carried a real code/reason (as opposed to I/O error/EOF, which
// spec.md requires be surfaced as nil code/reason — represented here
// as code 0 / empty reason, see OnDisconnect doc).
func (c *Connection) finish(code int, reason string, graceful bool) {
	if c.disconnectOnce {
		return
	}
	c.disconnectOnce = true
	c.state = Closed
	if c.handler != nil {
		if !graceful {
			c.handler.OnDisconnect(c, 0, "")
		} else {
			c.handler.OnDisconnect(c, code, reason)
		}
	}
	c.server.disconnect(c.fd)
}
