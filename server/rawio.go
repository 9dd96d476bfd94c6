// File: server/rawio.go
// Author: driftws contributors
// License: Apache-2.0
//
// rawRead and socketFD bridge net.Conn to the raw file descriptors the
// reactor package multiplexes on. Reads go through SyscallConn.Read so
// a spurious or edge-raced wakeup surfaces as errWouldBlock instead of
// parking the single loop goroutine in the runtime's own netpoller.

package server

import (
	"errors"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

var errWouldBlock = errors.New("server: read would block")

// socketFD extracts the underlying file descriptor of any syscall.Conn
// (net.TCPConn and net.TCPListener both satisfy it) for registration
// with the reactor.
func socketFD(c syscall.Conn) (uintptr, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd uintptr
	ctrlErr := raw.Control(func(f uintptr) { fd = f })
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	return fd, nil
}

// rawRead performs one direct, non-blocking read() against the
// connection's file descriptor. It never parks the calling goroutine:
// if the kernel has nothing buffered (a spurious wakeup, or a second
// goroutine having already drained the socket), it returns
// errWouldBlock instead of waiting for more data, since the caller will
// be re-invoked on the next readiness notification regardless.
func rawRead(conn net.Conn, buf []byte) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return conn.Read(buf)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}

	var n int
	var readErr error
	ctrlErr := raw.Read(func(fd uintptr) bool {
		n, readErr = unix.Read(int(fd), buf)
		if readErr == unix.EAGAIN || readErr == unix.EWOULDBLOCK {
			readErr = errWouldBlock
		}
		return true // always report done: never let the runtime park us
	})
	if ctrlErr != nil {
		return n, ctrlErr
	}
	return n, readErr
}
