package c11httpd

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// signalBridge turns asynchronous Unix signals into synchronous,
// epoll-pollable readiness events, matching c11httpd/signal_manager.h's
// role of giving the single-threaded event loop a safe way to observe
// signals without running handler code on a signal stack.
//
// The original registers per-signal signal_event_t callbacks on a
// process-wide singleton; this rewrite instead masks SIGTERM, SIGINT and
// SIGCHLD from normal delivery and reads them as binary signalfd_siginfo
// records off a dedicated fd the Acceptor adds to its epoll set
// alongside listening and connection fds (spec.md §7's "signal bridge").
type signalBridge struct {
	fd   int
	mu   sync.Mutex
	log  *logrus.Entry
	prev unix.Sigset_t
}

// newSignalBridge blocks SIGTERM, SIGINT and SIGCHLD from default/signal-
// stack delivery and opens a signalfd that reports them instead. SIGPIPE
// is ignored outright: a peer resetting a connection mid-write must
// surface as an EPIPE return from Conn.Send, never as process death.
func newSignalBridge(log *logrus.Entry) (*signalBridge, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	if err := unix.Signal(unix.SIGPIPE, unix.SIG_IGN); err != nil {
		return nil, fmt.Errorf("c11httpd: signal bridge: ignore SIGPIPE: %w", err)
	}

	var set unix.Sigset_t
	unix.Sigemptyset(&set)
	unix.Sigaddset(&set, int(unix.SIGTERM))
	unix.Sigaddset(&set, int(unix.SIGINT))
	unix.Sigaddset(&set, int(unix.SIGCHLD))

	var prev unix.Sigset_t
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, &prev); err != nil {
		return nil, fmt.Errorf("c11httpd: signal bridge: block signals: %w", err)
	}

	fd, err := unix.Signalfd(-1, &set, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("c11httpd: signal bridge: signalfd: %w", err)
	}

	return &signalBridge{fd: fd, log: log, prev: prev}, nil
}

// Fd returns the signalfd descriptor to register with the poller.
func (b *signalBridge) Fd() int {
	return b.fd
}

// signalRecord is one drained signalfd_siginfo, narrowed to the fields
// the Acceptor's dispatch loop needs.
type signalRecord struct {
	Signo  uint32
	PID    int32
	Status int32
}

// Drain reads one queued signalfd_siginfo record off the signalfd. The
// fd is registered edge-triggered like every other fd in the poller, so
// the caller must call Drain in a loop until it returns (nil, false) to
// avoid missing a coalesced signal (spec.md §1's "drain to EAGAIN"
// invariant applies here too).
func (b *signalBridge) Drain() (*signalRecord, bool) {
	var info unix.SignalfdSiginfo
	buf := (*[unsafe.Sizeof(info)]byte)(unsafe.Pointer(&info))[:]

	n, err := unix.Read(b.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, false
		}
		b.log.WithError(err).Warn("signalfd read failed")
		return nil, false
	}
	if n != len(buf) {
		return nil, false
	}

	return &signalRecord{
		Signo:  info.Signo,
		PID:    int32(info.Pid),
		Status: int32(info.Status),
	}, true
}

// Close releases the signalfd and restores the previous signal mask.
func (b *signalBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := closeFd(b.fd)
	prev := b.prev
	unix.PthreadSigmask(unix.SIG_SETMASK, &prev, nil)
	return err
}
