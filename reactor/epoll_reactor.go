//go:build linux
// +build linux

// File: reactor/epoll_reactor.go
// Author: driftws contributors
//
// Package reactor - Linux epoll(7) implementation of the readiness-wait
// primitive, grounded on the teacher's raw-syscall epoll reactor.

package reactor

import (
	"fmt"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"
)

func newReactor() (Reactor, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollReactor{epfd: epfd, backlog: queue.New()}, nil
}

// epollReactor implements Reactor using Linux epoll in level-triggered
// mode (the default): a socket with unread bytes keeps reporting ready
// on every Wait call until drained, matching the server loop's "read a
// bounded buffer per ready socket per tick" design (spec.md section 5)
// without needing edge-triggered re-arming.
//
// backlog is a persistent github.com/eapache/queue FIFO spanning
// multiple Wait calls: epoll_wait can report up to maxEvents fds in one
// syscall, but Wait only ever hands the caller returnBatch of them at a
// time, so one busy tick can't starve fairness across many ready
// sockets. The remainder queues here and drains on subsequent Wait
// calls with no further epoll_wait syscall until the backlog empties.
type epollReactor struct {
	epfd    int
	backlog *queue.Queue
}

func (r *epollReactor) Register(fd uintptr) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl add: %w", err)
	}
	return nil
}

func (r *epollReactor) Unregister(fd uintptr) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil); err != nil {
		if err == unix.ENOENT {
			return nil // never registered or already removed
		}
		return fmt.Errorf("reactor: epoll_ctl del: %w", err)
	}
	return nil
}

const (
	maxEvents   = 256 // epoll_wait's event buffer capacity per syscall
	returnBatch = 64  // fds handed to the caller per Wait call
)

// Wait blocks for up to timeoutMs and returns up to returnBatch ready
// fds. If the backlog still holds fds from a previous epoll_wait that
// returned more than returnBatch at once, this call drains from the
// backlog instead of re-polling the kernel, so timeoutMs is ignored in
// that case: there is already known-ready work to hand back.
func (r *epollReactor) Wait(timeoutMs int) ([]uintptr, error) {
	if r.backlog.Length() == 0 {
		var raw [maxEvents]unix.EpollEvent
		n, err := unix.EpollWait(r.epfd, raw[:], timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				return nil, nil
			}
			return nil, fmt.Errorf("reactor: epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			r.backlog.Add(uintptr(raw[i].Fd))
		}
	}

	n := r.backlog.Length()
	if n > returnBatch {
		n = returnBatch
	}
	ready := make([]uintptr, 0, n)
	for i := 0; i < n; i++ {
		ready = append(ready, r.backlog.Peek().(uintptr))
		r.backlog.Remove()
	}
	return ready, nil
}

func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}
