// File: server/config.go
// Package server implements the core server facade: listener ownership,
// connection registry, readiness multiplexing, idle-ping scheduling, and
// graceful shutdown (spec.md section 4.1).
// Author: driftws contributors
// License: Apache-2.0

package server

import (
	"net"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the fixed, statically-typed option surface (spec.md
// section 4.1: "new(options) validates option names against the fixed
// set {listen, silence_max, on_connect}; unknown option => fatal
// configuration error"). In Go this validation happens at compile time:
// there is no map of option names to mistype, so "unknown option" can
// only mean "unknown Option function", which the compiler already
// rejects. This is the resolution to spec.md's open question on how a
// statically typed host language should surface that failure.
type Config struct {
	// ListenAddr is used by New to open a listener when no pre-bound
	// Listener option is supplied. Default ":80" (spec.md section 6).
	ListenAddr string

	// SilenceMax is the idle threshold in seconds before a connection is
	// sent a liveness ping; 0 disables idle pings entirely (spec.md
	// section 3, section 5). Default 20.
	SilenceMax int

	// MaxMessageBytes bounds the size of a data message, whether a single
	// frame or reassembled from fragments; 0 disables the cap (SPEC_FULL.md "Supplemented features").
	// Default 16 MiB.
	MaxMessageBytes int64

	// ReadBufferSize bounds each non-blocking read (spec.md section 5:
	// "a single read() per ready socket of a bounded buffer size").
	// Default 8192.
	ReadBufferSize int

	Logger zerolog.Logger
}

// DefaultConfig returns the baseline configuration (spec.md section 6
// defaults table).
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":80",
		SilenceMax:      20,
		MaxMessageBytes: 16 << 20,
		ReadBufferSize:  8192,
		Logger:          zerolog.Nop(),
	}
}

// Option customizes a Server at construction time.
type Option func(*Server)

// WithListenAddr sets the TCP address New binds when no explicit
// Listener option is given.
func WithListenAddr(addr string) Option {
	return func(s *Server) { s.cfg.ListenAddr = addr }
}

// WithListener injects a pre-bound listener, bypassing ListenAddr
// entirely (spec.md section 3: "constructed from a port number or
// injected pre-bound").
func WithListener(ln net.Listener) Option {
	return func(s *Server) { s.listener = ln }
}

// WithSilenceMax sets the idle-ping threshold in seconds; 0 disables
// idle pings.
func WithSilenceMax(seconds int) Option {
	return func(s *Server) { s.cfg.SilenceMax = seconds }
}

// WithMaxMessageBytes overrides the reassembled-message size cap.
func WithMaxMessageBytes(n int64) Option {
	return func(s *Server) { s.cfg.MaxMessageBytes = n }
}

// WithLogger attaches a structured logger; the default is a no-op
// logger so consumers pay nothing unless they opt in.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.cfg.Logger = l }
}

// WithHandlerFactory registers the connect callback (spec.md section 6:
// "connect (server, conn): after accept, before handshake"). The
// factory's return value supplies every subsequent event handler for
// that connection; a nil return value means the connection gets no
// callbacks at all (it is still framed and can still be Disconnect'd).
func WithHandlerFactory(f HandlerFactory) Option {
	return func(s *Server) { s.handlerFactory = f }
}

// silenceCheckInterval is silence_max / 2 (spec.md section 3).
func (c *Config) silenceCheckInterval() time.Duration {
	if c.SilenceMax <= 0 {
		return 0
	}
	return time.Duration(c.SilenceMax) * time.Second / 2
}
