// File: server/server.go
// Author: driftws contributors
// License: Apache-2.0
//
// Server owns the listener, the readiness multiplexer, and the
// connection registry, and drives the single-threaded event loop
// described in spec.md section 4.1 and section 5.

package server

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftwave/driftws/reactor"
)

// Server is the top-level facade: one listener, one reactor, one
// goroutine running Start. Exported accessors (Connections,
// ConnByRemoteAddr, Shutdown) are safe to call from other goroutines;
// everything else is only ever touched from the Start goroutine.
type Server struct {
	cfg            *Config
	listener       net.Listener
	listenerFD     uintptr
	handlerFactory HandlerFactory

	rx reactor.Reactor

	mu    sync.Mutex
	conns map[uintptr]*connMeta

	running  bool
	shutdown bool

	silenceNextCheck time.Time
}

// connMeta is the registry entry spec.md section 3's data model
// describes as ConnMeta{conn, last_recv_time}: the Server, not the
// Connection, owns and updates last_recv, since it is the Server's
// idle-ping sweep that consumes it.
type connMeta struct {
	conn     *Connection
	lastRecv time.Time
}

// New builds a Server from a base Config and a set of Options. The
// listener is not opened (and the reactor not created) until Start;
// New only validates the option set (spec.md section 4.1: "new(options)
// validates option names against the fixed set").
func New(opts ...Option) (*Server, error) {
	s := &Server{
		cfg:   DefaultConfig(),
		conns: make(map[uintptr]*connMeta),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.handlerFactory == nil {
		return nil, ErrNoHandlerFactory
	}
	return s, nil
}

func (s *Server) logger() *zerolog.Logger { return &s.cfg.Logger }

// Start opens the listener (if one wasn't injected via WithListener),
// creates the reactor, and runs the event loop. It blocks until
// Shutdown drains every connection or the listener fails.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	if s.listener == nil {
		ln, err := net.Listen("tcp", s.cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("server: listen %s: %w", s.cfg.ListenAddr, err)
		}
		s.listener = ln
	}

	tcpLn, ok := s.listener.(*net.TCPListener)
	if !ok {
		return fmt.Errorf("server: listener must be a *net.TCPListener")
	}
	fd, err := socketFD(tcpLn)
	if err != nil {
		return fmt.Errorf("server: extract listener fd: %w", err)
	}
	s.listenerFD = fd

	rx, err := reactor.New()
	if err != nil {
		return fmt.Errorf("server: create reactor: %w", err)
	}
	s.rx = rx
	if err := s.rx.Register(s.listenerFD); err != nil {
		return fmt.Errorf("server: register listener: %w", err)
	}

	if interval := s.cfg.silenceCheckInterval(); interval > 0 {
		s.silenceNextCheck = time.Now().Add(interval)
	}

	s.logger().Info().Str("addr", s.listener.Addr().String()).Msg("server listening")
	return s.loop()
}

// loop is the body of spec.md section 4.1's algorithm: wait for
// readiness, service the listener and every ready connection, then run
// the idle-ping sweep if its interval has elapsed. It returns once the
// readiness set is empty, which only happens after Shutdown has been
// called and every connection has finished closing.
func (s *Server) loop() error {
	for {
		timeoutMs := s.nextTimeoutMs()
		ready, err := s.rx.Wait(timeoutMs)
		if err != nil {
			return fmt.Errorf("server: reactor wait: %w", err)
		}

		for _, fd := range ready {
			if fd == s.listenerFD {
				s.acceptOne()
				continue
			}
			s.mu.Lock()
			meta := s.conns[fd]
			s.mu.Unlock()
			if meta == nil {
				continue
			}
			if meta.conn.recv() {
				s.mu.Lock()
				if m, ok := s.conns[fd]; ok {
					m.lastRecv = time.Now()
				}
				s.mu.Unlock()
			}
		}

		s.runSilenceSweepIfDue()

		if s.shutdown && s.connCount() == 0 {
			return nil
		}
	}
}

// nextTimeoutMs computes the reactor.Wait timeout from the idle-ping
// schedule: -1 (block indefinitely) when idle pings are disabled,
// otherwise the milliseconds until
// silenceNextCheck (spec.md section 3: "silence_max / 2" tick).
func (s *Server) nextTimeoutMs() int {
	interval := s.cfg.silenceCheckInterval()
	if interval <= 0 {
		return -1
	}
	remaining := time.Until(s.silenceNextCheck)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Millisecond)
}

func (s *Server) acceptOne() {
	if s.shutdown {
		return
	}
	conn, err := s.listener.Accept()
	if err != nil {
		s.logger().Warn().Err(err).Msg("accept failed")
		return
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		_ = conn.Close()
		return
	}
	fd, err := socketFD(tcpConn)
	if err != nil {
		s.logger().Warn().Err(err).Msg("extract connection fd failed")
		_ = conn.Close()
		return
	}
	if err := s.rx.Register(fd); err != nil {
		s.logger().Warn().Err(err).Msg("register connection failed")
		_ = conn.Close()
		return
	}

	c := newConnection(s, tcpConn, fd)
	s.mu.Lock()
	s.conns[fd] = &connMeta{conn: c, lastRecv: time.Now()}
	s.mu.Unlock()

	c.handler = s.handlerFactory(s, c)
	s.logger().Debug().Str("remote", tcpConn.RemoteAddr().String()).Msg("connection accepted")
}

// runSilenceSweepIfDue pings only the connections that have gone silent
// since the last check and reschedules the next check (spec.md section
// 3 data model: per-connection last_recv; section 4.1 step 4 / section
// 5: ping only connections with last_recv < (silence_next_check -
// silence_check_interval)).
func (s *Server) runSilenceSweepIfDue() {
	interval := s.cfg.silenceCheckInterval()
	if interval <= 0 {
		return
	}
	if time.Now().Before(s.silenceNextCheck) {
		return
	}
	threshold := s.silenceNextCheck.Add(-interval)
	s.silenceNextCheck = time.Now().Add(interval)

	s.mu.Lock()
	targets := make([]*Connection, 0, len(s.conns))
	for _, m := range s.conns {
		if m.conn.state == Established && m.lastRecv.Before(threshold) {
			targets = append(targets, m.conn)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		c.writeFrame(pingFrame())
	}
}

// disconnect is the low-level teardown Connection.finish calls after it
// has already fired on_disconnect (spec.md section 6: "disconnect
// (socket): removes the socket from the readiness set and closes it,
// without firing on_disconnect").
func (s *Server) disconnect(fd uintptr) {
	s.mu.Lock()
	m, ok := s.conns[fd]
	if ok {
		delete(s.conns, fd)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = s.rx.Unregister(fd)
	_ = m.conn.socket.Close()
}

// Connections returns a snapshot of every currently tracked connection.
func (s *Server) Connections() []*Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Connection, 0, len(s.conns))
	for _, m := range s.conns {
		out = append(out, m.conn)
	}
	return out
}

// ConnByRemoteAddr finds the connection whose peer address string
// matches addr, or nil (SPEC_FULL.md "Supplemented features").
func (s *Server) ConnByRemoteAddr(addr string) *Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.conns {
		if m.conn.socket.RemoteAddr().String() == addr {
			return m.conn
		}
	}
	return nil
}

func (s *Server) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown removes and closes the listener, then initiates an orderly
// close (code 1001, "Going Away") on every tracked connection. Start
// returns once the last one finishes closing. Shutdown is idempotent
// and safe to call from any goroutine, including from inside a
// callback running on the loop goroutine itself.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	targets := make([]*Connection, 0, len(s.conns))
	for _, m := range s.conns {
		targets = append(targets, m.conn)
	}
	s.mu.Unlock()

	if s.rx != nil {
		_ = s.rx.Unregister(s.listenerFD)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}

	for _, c := range targets {
		c.Disconnect(1001, "Going Away")
	}
}
