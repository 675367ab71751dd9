package c11httpd

import (
	"io"

	"golang.org/x/sys/unix"
)

// Event-result flags returned by ConnEvent callbacks, matching
// c11httpd/conn_event.h's event_result_??? constants.
const (
	// EventDisconnect closes the connection after any pending send
	// buffer has drained.
	EventDisconnect uint32 = 1
	// EventMoreData signals there is more data to send; the acceptor
	// will call GetMoreData again once the current send buffer drains.
	EventMoreData uint32 = 1 << 1
)

// Conn is a single client TCP connection: socket, recv/send buffers,
// send cursor, last-event flags, optional user context, outstanding AIO
// records, and list-membership linkage — exactly spec.md §3's
// Connection data model.
//
// Grounded on c11httpd/conn.h/.cpp and conn_base.h.
type Conn struct {
	connBase

	RecvBuf *Buf
	SendBuf *Buf

	sendCursor int
	flags      uint32
	userCtx    interface{}

	aioRunning   []*AIORecord
	aioCompleted []*AIORecord

	// disconnecting is set once releaseConn has parked this connection on
	// the aio-wait list pending outstanding AIO (spec.md §4.6 case 3): the
	// fd is already closed and OnDisconnected has already fired, so once
	// the last AIO record completes the connection is recycled directly
	// rather than handed back to the used list for further event delivery.
	disconnecting bool

	// list-membership linkage (see list.go)
	listPrev, listNext *Conn
	membership         listMembership

	// neverUsed is true until this connection has been linked into the
	// acceptor's used-list for the first time; it distinguishes GC case
	// 1 (never added) from case 4 (in used list) per spec.md §4.6.
	neverUsed bool
}

func newConn() *Conn {
	return &Conn{
		RecvBuf:   NewBuf(),
		SendBuf:   NewBuf(),
		neverUsed: true,
	}
}

// reset re-initializes a recycled connection's per-peer state, matching
// "mutated only when the object is reused from the free list".
func (c *Conn) reset(fd int, ip string, port uint16, ipv6 bool) {
	c.connBase = newConnBase(fd, ip, port, false, ipv6)
	c.RecvBuf.Clear()
	c.SendBuf.Clear()
	c.sendCursor = 0
	c.flags = 0
	c.userCtx = nil
	c.aioRunning = c.aioRunning[:0]
	c.aioCompleted = c.aioCompleted[:0]
	c.disconnecting = false
	c.neverUsed = true
}

// IP, Port, IPv6 implement ConnSession.
func (c *Conn) IP() string   { return c.connBase.IP() }
func (c *Conn) Port() uint16 { return c.connBase.Port() }
func (c *Conn) IPv6() bool   { return c.connBase.IPv6() }

// Context returns the connection's user-supplied opaque value.
func (c *Conn) Context() interface{} {
	return c.userCtx
}

// SetContext stores a user-supplied opaque value on the connection. It is
// reset (not freed, matching Go's GC) on recycle.
func (c *Conn) SetContext(ctx interface{}) {
	c.userCtx = ctx
}

// LastEventFlags returns the bitset of {EventDisconnect, EventMoreData}
// most recently returned by a handler callback for this connection.
func (c *Conn) LastEventFlags() uint32 {
	return c.flags
}

func (c *Conn) setLastEventFlags(flags uint32) {
	c.flags = flags
}

// SendPending reports whether there are unsent bytes in SendBuf.
func (c *Conn) SendPending() bool {
	return c.sendCursor < c.SendBuf.Size()
}

// Recv loops non-blocking reads on the socket, appending to RecvBuf in
// 1 KB units, until the kernel signals would-block (returns ok), EOF
// (peerClosed=true), or a real error. On every successful read it
// extends RecvBuf's size, and — where a free byte remains — writes a
// trailing NUL there as a non-semantic debugging convenience, matching
// conn_t::recv()'s contract in spec.md §4.2.
func (c *Conn) Recv() (newBytes int, peerClosed bool, err error) {
	const chunk = 1024

	for {
		dst := c.RecvBuf.ReserveBack(chunk)
		n, rerr := unix.Read(c.fd, dst)
		if rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK {
			break
		}
		if rerr == unix.EINTR {
			continue
		}
		if rerr != nil {
			return newBytes, false, rerr
		}
		if n == 0 {
			peerClosed = true
			break
		}

		c.RecvBuf.AddSize(n)
		newBytes += n

		if c.RecvBuf.FreeSize() > 0 {
			c.RecvBuf.Back()[0] = 0
		}

		// Edge-triggered readiness requires draining to EAGAIN, so keep
		// looping regardless of how many bytes this call returned.
	}

	return newBytes, peerClosed, nil
}

// Send loops non-blocking writes from SendBuf[sendCursor:] until
// would-block, error, or sendCursor == SendBuf.Size(), at which point it
// clears SendBuf and resets the cursor, matching conn_t::send().
func (c *Conn) Send() (newBytes int, err error) {
	for c.sendCursor < c.SendBuf.Size() {
		n, werr := unix.Write(c.fd, c.SendBuf.Front()[c.sendCursor:])
		if werr == unix.EAGAIN || werr == unix.EWOULDBLOCK {
			break
		}
		if werr == unix.EINTR {
			continue
		}
		if werr != nil {
			return newBytes, werr
		}
		if n == 0 {
			break
		}

		c.sendCursor += n
		newBytes += n
	}

	if c.sendCursor == c.SendBuf.Size() {
		c.SendBuf.Clear()
		c.sendCursor = 0
	}

	return newBytes, nil
}

// Close closes the underlying socket fd. Matching conn_t::close()/
// conn_base_t::close(), double-close is a no-op.
func (c *Conn) Close() error {
	if c.fd < 0 {
		return nil
	}
	fd := c.fd
	c.fd = -1
	return closeFd(fd)
}

// AIORead submits an async read request on fd at offset into buf,
// matching conn_t::aio_read(). The connection's socket fd need not match
// fd: per spec.md's S6 scenario, AIO targets an arbitrary file the
// handler opened itself.
func (c *Conn) AIORead(engine *aioEngine, fd int, offset int64, buf []byte) (int64, error) {
	rec, err := engine.Submit(c, fd, AIORead, offset, buf)
	if err != nil {
		return 0, err
	}
	c.aioRunning = append(c.aioRunning, rec)
	return rec.ID, nil
}

// AIOWrite submits an async write request, matching conn_t::aio_write().
func (c *Conn) AIOWrite(engine *aioEngine, fd int, offset int64, buf []byte) (int64, error) {
	rec, err := engine.Submit(c, fd, AIOWrite, offset, buf)
	if err != nil {
		return 0, err
	}
	c.aioRunning = append(c.aioRunning, rec)
	return rec.ID, nil
}

// AIOCancel issues a cancel to the engine for all requests on fd that
// have not yet started, whichever connection submitted them, matching
// conn_t::aio_cancel().
func (c *Conn) AIOCancel(engine *aioEngine, fd int) {
	engine.Cancel(fd)
}

// PopCompleted drains completed AIO records into out, matching
// conn_t::popup_completed(). Handlers call this from OnAIOCompleted to
// retrieve what finished.
func (c *Conn) PopCompleted(out *[]*AIORecord) {
	*out = append(*out, c.aioCompleted...)
	c.aioCompleted = c.aioCompleted[:0]
}

// HasRunningAIO reports whether this connection still has outstanding
// AIO records, used by the acceptor's GC policy (spec.md §4.6).
func (c *Conn) HasRunningAIO() bool {
	return len(c.aioRunning) > 0
}

// onAIODelivered is called by the acceptor when the aio engine reports a
// completed record owned by this connection: it moves the record from
// aioRunning to aioCompleted.
func (c *Conn) onAIODelivered(rec *AIORecord) {
	for i, r := range c.aioRunning {
		if r == rec {
			c.aioRunning = append(c.aioRunning[:i], c.aioRunning[i+1:]...)
			break
		}
	}
	c.aioCompleted = append(c.aioCompleted, rec)
}

var _ io.Closer = (*Conn)(nil)
