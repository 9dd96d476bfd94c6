// File: server/handler.go
// Author: driftws contributors
// License: Apache-2.0
//
// ConnectionHandler replaces the original's mutable per-event callback
// map (spec.md section 9 "Callbacks as capabilities") with a single
// interface holding one entry point per event. The Server exposes one
// handler *factory*, invoked once per accepted socket from the connect
// event; the Connection's contract is then a closed set of methods
// rather than a bag of settable function pointers.

package server

import "github.com/driftwave/driftws/protocol"

// ConnectionHandler receives every event a Connection can emit, per
// spec.md section 6's event table (all events except "connect", which
// is the signal to produce a handler in the first place — see
// HandlerFactory).
type ConnectionHandler interface {
	// OnHandshake fires after the client's upgrade request has been
	// parsed and validated but before the 101 response is written
	// (spec.md section 4.2). Returning reject=true aborts the upgrade
	// (spec.md section 9: "implementations MAY send an HTTP error
	// response before closing"); subprotocol, if non-empty, is echoed
	// in the 101 response.
	OnHandshake(c *Connection, hs *protocol.HandshakeRequest) (subprotocol string, reject bool)

	// OnReady fires once the 101 response has been flushed.
	OnReady(c *Connection)

	// OnText fires once per complete text message; payload is
	// guaranteed valid UTF-8 (spec.md section 8 invariants).
	OnText(c *Connection, text string)

	// OnBinary fires once per complete binary message.
	OnBinary(c *Connection, data []byte)

	// OnPing fires after the automatic pong reply has already been
	// written (spec.md section 6 event table).
	OnPing(c *Connection, payload []byte)

	// OnPong fires on pong receipt, whether solicited by an idle-ping
	// or sent unprompted by the client.
	OnPong(c *Connection, payload []byte)

	// OnDisconnect fires exactly once per connection, during the
	// transition to Closed. code and reason are both empty for abrupt
	// closes (I/O error, EOF before a close frame) (spec.md section 3).
	OnDisconnect(c *Connection, code int, reason string)
}

// HandlerFactory builds the ConnectionHandler for one accepted socket.
// It is invoked synchronously after accept and before the handshake is
// parsed (spec.md section 6: event "connect", signature (server, conn),
// "after accept, before handshake") — the factory return value *is* the
// connect event's payload, per spec.md section 9's redesign note.
type HandlerFactory func(s *Server, c *Connection) ConnectionHandler

// HandlerFuncs adapts a set of plain functions to ConnectionHandler,
// mirroring the http.HandlerFunc idiom: any field left nil behaves as a
// no-op (or, for OnHandshake, as an unconditional accept with no
// subprotocol).
type HandlerFuncs struct {
	Handshake  func(c *Connection, hs *protocol.HandshakeRequest) (string, bool)
	Ready      func(c *Connection)
	Text       func(c *Connection, text string)
	Binary     func(c *Connection, data []byte)
	Ping       func(c *Connection, payload []byte)
	Pong       func(c *Connection, payload []byte)
	Disconnect func(c *Connection, code int, reason string)
}

var _ ConnectionHandler = HandlerFuncs{}

func (h HandlerFuncs) OnHandshake(c *Connection, hs *protocol.HandshakeRequest) (string, bool) {
	if h.Handshake == nil {
		return "", false
	}
	return h.Handshake(c, hs)
}

func (h HandlerFuncs) OnReady(c *Connection) {
	if h.Ready != nil {
		h.Ready(c)
	}
}

func (h HandlerFuncs) OnText(c *Connection, text string) {
	if h.Text != nil {
		h.Text(c, text)
	}
}

func (h HandlerFuncs) OnBinary(c *Connection, data []byte) {
	if h.Binary != nil {
		h.Binary(c, data)
	}
}

func (h HandlerFuncs) OnPing(c *Connection, payload []byte) {
	if h.Ping != nil {
		h.Ping(c, payload)
	}
}

func (h HandlerFuncs) OnPong(c *Connection, payload []byte) {
	if h.Pong != nil {
		h.Pong(c, payload)
	}
}

func (h HandlerFuncs) OnDisconnect(c *Connection, code int, reason string) {
	if h.Disconnect != nil {
		h.Disconnect(c, code, reason)
	}
}
