package c11httpd

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// AIOKind distinguishes a read request from a write request.
type AIOKind int

const (
	AIORead AIOKind = iota
	AIOWrite
)

// AIORecord is an outstanding (or just-completed) asynchronous I/O
// request, matching spec.md §3's "AIO record":
// (id, fd, offset, user_buffer, nbytes, kind, error, bytes_done).
//
// Grounded almost directly on _examples/socket515-gaio/watcher.go's
// aiocb: the same fields (op/ptr/ctx/conn/buffer/deadline -> here
// id/fd/offset/buffer/kind/conn), the same pending-queue-swap submission
// path, and the same EAGAIN-drained try-then-enqueue dispatch loop — see
// aioEngine below. The teacher's pollable-fd model is replaced with a
// bounded goroutine pool performing blocking pread/pwrite, because
// spec.md's AIO targets arbitrary fds (e.g. S6 opens a plain file fd),
// and regular files are not epoll-pollable on Linux; this is exactly the
// "arena owned by the loop, hand back an index instead of a kernel
// pointer" alternative spec.md design note §9 recommends in place of a
// SIGEV_SIGNAL payload pointer.
type AIORecord struct {
	ID        int64
	Fd        int
	Offset    int64
	Buffer    []byte
	Kind      AIOKind
	Err       error
	BytesDone int

	conn       *Conn
	cancelled  bool
}

// aioEngine is the asynchronous-I/O completion engine shared by all
// connections accepted by one Acceptor. It is the Go realization of the
// "kernel's AIO subsystem + AIO-signal" pairing spec.md §4.5/§4.6
// describe: Submit() is aio_read/aio_write's kernel call, and Completed()
// is the channel the acceptor selects on exactly where spec.md's event
// loop selects on the signal-bridge descriptor for AIO-signal records.
type aioEngine struct {
	workers int
	jobs    chan *AIORecord
	done    chan *AIORecord

	mu      sync.Mutex
	pending []*AIORecord // queued, not yet claimed by a worker
	closed  bool
	nextID  int64

	wg sync.WaitGroup
}

func newAIOEngine(workers int) *aioEngine {
	if workers <= 0 {
		workers = 4
	}
	e := &aioEngine{
		workers: workers,
		jobs:    make(chan *AIORecord, 64),
		done:    make(chan *AIORecord, 64),
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Completed returns the channel the acceptor's event loop selects on to
// learn of finished AIO operations.
func (e *aioEngine) Completed() <-chan *AIORecord {
	return e.done
}

// Submit enqueues a read or write request. On submission failure the
// record is discarded and an error returned; the connection is
// unaffected (spec.md §7: "Submission error for AIO — returned to the
// submitter; connection stays viable").
func (e *aioEngine) Submit(conn *Conn, fd int, kind AIOKind, offset int64, buf []byte) (*AIORecord, error) {
	if len(buf) == 0 {
		return nil, ErrEmptyBuffer
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrWatcherClosed
	}
	id := atomic.AddInt64(&e.nextID, 1)
	rec := &AIORecord{ID: id, Fd: fd, Offset: offset, Buffer: buf, Kind: kind, conn: conn}
	e.pending = append(e.pending, rec)
	e.mu.Unlock()

	select {
	case e.jobs <- rec:
	default:
		// jobs channel momentarily full: hand off via a short-lived
		// goroutine rather than blocking the submitter, matching
		// gaio's "never block the caller of aioCreate" contract.
		go func() {
			defer func() { recover() }() // engine may have closed jobs meanwhile
			e.jobs <- rec
		}()
	}

	return rec, nil
}

// Cancel marks every still-queued (not yet claimed by a worker) record
// on fd as cancelled, matching aio_cancel(fd)'s "issue a cancel to the
// kernel for all requests on that fd" contract. Requests already being
// serviced by a worker goroutine run to completion; this is a best-effort
// cancellation exactly as POSIX aio_cancel() itself is.
func (e *aioEngine) Cancel(fd int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rec := range e.pending {
		if rec.Fd == fd {
			rec.cancelled = true
		}
	}
}

func (e *aioEngine) worker() {
	defer e.wg.Done()
	for rec := range e.jobs {
		e.mu.Lock()
		for i, p := range e.pending {
			if p == rec {
				e.pending = append(e.pending[:i], e.pending[i+1:]...)
				break
			}
		}
		cancelled := rec.cancelled
		e.mu.Unlock()

		if cancelled {
			rec.Err = ErrUnsupported
			e.done <- rec
			continue
		}

		switch rec.Kind {
		case AIORead:
			n, err := unix.Pread(rec.Fd, rec.Buffer, rec.Offset)
			rec.BytesDone = n
			rec.Err = err
		case AIOWrite:
			n, err := unix.Pwrite(rec.Fd, rec.Buffer, rec.Offset)
			rec.BytesDone = n
			rec.Err = err
		}
		e.done <- rec
	}
}

// Close stops accepting new work. Workers finish their current job and
// then exit once the jobs channel is drained and closed.
func (e *aioEngine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	close(e.jobs)
	e.wg.Wait()
	close(e.done)
}
