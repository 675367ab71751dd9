//go:build linux

package c11httpd

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// pollerEventKind classifies what epoll told us about an fd, independent
// of the fd's role (listener / connection / signal / AIO wakeup);
// acceptor.go maps fd back to role via its own registries.
type pollerEventKind struct {
	Fd          int
	Readable    bool
	Writable    bool
	HangupOrErr bool
}

// poller wraps epoll(7), matching the role c11httpd/acceptor.cpp's
// internal epoll_fd plays: a single edge-triggered readiness multiplexer
// shared by listening sockets, connection sockets and the signal bridge.
type poller struct {
	epfd int
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("c11httpd: poller: epoll_create1: %w", err)
	}
	return &poller{epfd: fd}, nil
}

// Add registers fd for edge-triggered readability (and writability when
// writable is true). Every fd in this design is edge-triggered: the
// Acceptor's dispatch loop is responsible for draining each fd to EAGAIN
// before returning to epoll_wait, per spec.md §1's level-vs-edge note.
func (p *poller) Add(fd int, writable bool) error {
	events := uint32(unix.EPOLLIN | unix.EPOLLET | unix.EPOLLRDHUP)
	if writable {
		events |= unix.EPOLLOUT
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("c11httpd: poller: epoll_ctl add fd=%d: %w", fd, err)
	}
	return nil
}

// Modify changes the registered interest set for fd, used when a
// connection's pending send buffer transitions between empty and
// non-empty (EPOLLOUT only needed while bytes remain to drain).
func (p *poller) Modify(fd int, writable bool) error {
	events := uint32(unix.EPOLLIN | unix.EPOLLET | unix.EPOLLRDHUP)
	if writable {
		events |= unix.EPOLLOUT
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("c11httpd: poller: epoll_ctl mod fd=%d: %w", fd, err)
	}
	return nil
}

// Remove deregisters fd. Failure is treated as observational by callers
// doing connection teardown/GC (spec.md's resolved Open Question: a
// closed fd is implicitly dropped by the kernel anyway).
func (p *poller) Remove(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("c11httpd: poller: epoll_ctl del fd=%d: %w", fd, err)
	}
	return nil
}

// Wait blocks (bounded by timeoutMS, -1 for indefinite) until at least
// one registered fd is ready, and returns the classified events. maxEvents
// bounds the per-call event array, matching Config.MaxEpollEvents.
func (p *poller) Wait(maxEvents int, timeoutMS int) ([]pollerEventKind, error) {
	raw := make([]unix.EpollEvent, maxEvents)
	n, err := unix.EpollWait(p.epfd, raw, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("c11httpd: poller: epoll_wait: %w", err)
	}

	out := make([]pollerEventKind, 0, n)
	for i := 0; i < n; i++ {
		e := raw[i]
		out = append(out, pollerEventKind{
			Fd:          int(e.Fd),
			Readable:    e.Events&unix.EPOLLIN != 0,
			Writable:    e.Events&unix.EPOLLOUT != 0,
			HangupOrErr: e.Events&(unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0,
		})
	}
	return out, nil
}

// Close releases the epoll fd.
func (p *poller) Close() error {
	return closeFd(p.epfd)
}
