package c11httpd

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// Acceptor is the single-threaded TCP event loop: it owns the listening
// sockets, the epoll readiness multiplexer, the AIO engine, the signal
// bridge, the three connection lists (used/free/aio-wait) and the
// connection-to-handler dispatch, matching c11httpd/acceptor.h/.cpp's
// acceptor_t end to end (spec.md §1, §4, §5).
//
// Exactly one goroutine ever touches listeners, the connection lists or
// any *Conn's mutable fields: the goroutine running the dispatch loop
// inside RunTCP. Stop may be called from any goroutine (including a
// signal handler-adjacent one), but it only ever closes a channel; it
// never mutates acceptor state directly.
type Acceptor struct {
	cfg *Config
	log *logrus.Entry

	listeners  []*Listener
	fdListener map[int]*Listener
	fdConn     map[int]*Conn

	poller    *poller
	aio       *aioEngine
	sigBridge *signalBridge
	eventFD   int

	used    *connList
	free    *connList
	aioWait *connList

	pool *WorkerPool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewAcceptor constructs an Acceptor bound to cfg. log may be nil, in
// which case logrus's standard logger is used.
func NewAcceptor(cfg *Config, log *logrus.Entry) *Acceptor {
	if cfg == nil {
		cfg = NewConfig()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Acceptor{
		cfg:        cfg,
		log:        log,
		fdListener: make(map[int]*Listener),
		fdConn:     make(map[int]*Conn),
		used:       newConnList(),
		free:       newConnList(),
		aioWait:    newConnList(),
		stopCh:     make(chan struct{}),
		eventFD:    -1,
	}
}

// AttachWorkerPool wires a WorkerPool into the Acceptor so SIGCHLD
// reaping can report terminated pids back to it and so RunTCP knows to
// run the fork/supervise loop instead of accepting connections directly
// when cfg.WorkerProcesses() > 0 and this is the main process.
func (a *Acceptor) AttachWorkerPool(p *WorkerPool) {
	a.pool = p
}

// Bind opens a listening socket for ip:port (or both IPv4 0.0.0.0 and
// IPv6 :: when ip is empty) and adds it to the acceptor's listener set.
// Matching acceptor_t::bind()'s atomicity: if a dual-stack bind partially
// fails (anything beyond the tolerated lone-v6 failure in bindAny), any
// fd already opened for this call is closed before the error returns, so
// a failed Bind never leaves half-open state behind.
func (a *Acceptor) Bind(ip string, port uint16) error {
	fds, err := bindAny(ip, port, a.cfg.Backlog())
	if err != nil {
		return err
	}

	for _, fd := range fds {
		ipv6 := false
		if sa, serr := unix.Getsockname(fd); serr == nil {
			if _, ok := sa.(*unix.SockaddrInet6); ok {
				ipv6 = true
			}
		}
		l := newListener(fd, ip, port, ipv6)
		a.listeners = append(a.listeners, l)
		a.fdListener[fd] = l
	}

	return nil
}

// AttachListener registers an already-open listening socket — typically
// one handed to this process by github.com/cloudflare/tableflip's
// Upgrade() fd inheritance instead of by Bind()'s own socket/bind/listen
// — as one of this Acceptor's listeners. ln must wrap a TCP socket (the
// concrete type tableflip.Listen and net.Listen("tcp", ...) both return).
// The socket is switched to non-blocking mode, matching every listener
// Bind() creates, since the event loop only ever does non-blocking
// accept4.
func (a *Acceptor) AttachListener(ln net.Listener) error {
	tl, ok := ln.(*net.TCPListener)
	if !ok {
		return fmt.Errorf("c11httpd: acceptor: AttachListener: %T is not a *net.TCPListener", ln)
	}

	f, err := tl.File()
	if err != nil {
		return fmt.Errorf("c11httpd: acceptor: AttachListener: %w", err)
	}
	// File() returns a dup'd fd owned by f, which closes it in f.Close();
	// dup it once more so the Acceptor owns a descriptor that outlives f.
	defer f.Close()
	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return fmt.Errorf("c11httpd: acceptor: AttachListener: dup: %w", err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("c11httpd: acceptor: AttachListener: set non-blocking: %w", err)
	}

	addr, _ := tl.Addr().(*net.TCPAddr)
	ip, ipv6 := "", false
	port := uint16(0)
	if addr != nil {
		ip = addr.IP.String()
		ipv6 = addr.IP.To4() == nil
		port = uint16(addr.Port)
	}

	l := newListener(fd, ip, port, ipv6)
	a.listeners = append(a.listeners, l)
	a.fdListener[fd] = l
	return nil
}

// Stop requests the event loop (or the fork supervisor loop) to shut
// down. Safe to call from any goroutine, any number of times.
func (a *Acceptor) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

// RunTCP starts serving. If cfg.WorkerProcesses() > 0 and a WorkerPool
// was attached via AttachWorkerPool and is currently the main process,
// RunTCP forks that many workers and runs a supervisor loop that only
// reaps/respawns children and watches for shutdown signals — matching
// the nginx-style master/worker split spec.md §7 describes. Otherwise
// (worker_processes == 0, or this call is already running inside a
// re-exec'd worker) it runs the full accept/epoll dispatch loop itself.
func (a *Acceptor) RunTCP(handler ConnEvent) error {
	if a.cfg.WorkerProcesses() > 0 && a.pool != nil && a.pool.MainProcess() {
		return a.runSupervisor()
	}
	return a.runEventLoop(handler)
}

// runSupervisor forks worker_processes workers, then blocks reaping
// SIGCHLD and watching for SIGTERM/SIGINT/Stop, respawning one worker
// per unexpected exit until shutdown is requested.
func (a *Acceptor) runSupervisor() error {
	if err := a.pool.Create(a.cfg.WorkerProcesses()); err != nil {
		return fmt.Errorf("c11httpd: acceptor: spawn workers: %w", err)
	}

	bridge, err := newSignalBridge(a.log)
	if err != nil {
		a.pool.KillAll()
		return err
	}
	defer bridge.Close()

	p, err := newPoller()
	if err != nil {
		a.pool.KillAll()
		return err
	}
	defer p.Close()

	if err := p.Add(bridge.Fd(), false); err != nil {
		a.pool.KillAll()
		return err
	}

	shuttingDown := false
	for {
		select {
		case <-a.stopCh:
			shuttingDown = true
			a.pool.KillAll()
			return nil
		default:
		}

		events, err := p.Wait(8, 1000)
		if err != nil {
			return err
		}

		for _, ev := range events {
			if ev.Fd != bridge.Fd() {
				continue
			}
			for {
				rec, ok := bridge.Drain()
				if !ok {
					break
				}
				switch unix.Signal(rec.Signo) {
				case unix.SIGCHLD:
					a.reapChildren(shuttingDown)
				case unix.SIGTERM, unix.SIGINT:
					shuttingDown = true
					a.pool.KillAll()
					return nil
				}
			}
		}
	}
}

// reapChildren collects every exited child with a non-blocking wait4
// loop, notifying the pool and — unless the supervisor is shutting
// down — respawning one replacement per unexpected exit.
func (a *Acceptor) reapChildren(shuttingDown bool) {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		if a.pool.OnTerminated(pid) && !shuttingDown {
			if err := a.pool.Create(1); err != nil {
				a.log.WithError(err).Warn("failed to respawn worker")
			}
		}
	}
}

// runEventLoop is the heart of the single-process (or single-worker)
// reactor: register every fd with epoll, then dispatch readiness events
// until Stop is called, matching acceptor_t::loop_once()/run() in
// spec.md §4/§5.
func (a *Acceptor) runEventLoop(handler ConnEvent) error {
	if len(a.listeners) == 0 {
		return fmt.Errorf("c11httpd: acceptor: RunTCP called with no bound listeners")
	}

	p, err := newPoller()
	if err != nil {
		return err
	}
	a.poller = p
	defer func() {
		a.poller.Close()
		a.poller = nil
	}()

	bridge, err := newSignalBridge(a.log)
	if err != nil {
		return err
	}
	a.sigBridge = bridge
	defer func() {
		a.sigBridge.Close()
		a.sigBridge = nil
	}()

	a.aio = newAIOEngine(a.cfg.AIOWorkers())
	defer a.aio.Close()

	eventFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return fmt.Errorf("c11httpd: acceptor: eventfd: %w", err)
	}
	a.eventFD = eventFD
	defer func() {
		closeFd(a.eventFD)
		a.eventFD = -1
	}()

	for _, l := range a.listeners {
		if err := a.poller.Add(l.Fd(), false); err != nil {
			return err
		}
	}
	if err := a.poller.Add(a.sigBridge.Fd(), false); err != nil {
		return err
	}
	if err := a.poller.Add(a.eventFD, false); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-a.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	group, gctx := errgroup.WithContext(ctx)

	// aioWakePump forwards AIO completions onto the eventfd so the
	// dispatch loop (the only goroutine allowed to touch *Conn state)
	// learns of them without a second goroutine ever calling
	// onAIODelivered itself — matching spec.md §4.5's single-writer rule
	// for the connection lists.
	aioCh := make(chan *AIORecord, 64)
	group.Go(func() error {
		one := make([]byte, 8)
		one[7] = 1
		for {
			select {
			case <-gctx.Done():
				return nil
			case rec, ok := <-a.aio.Completed():
				if !ok {
					return nil
				}
				select {
				case aioCh <- rec:
				case <-gctx.Done():
					return nil
				}
				unix.Write(a.eventFD, one)
			}
		}
	})

	group.Go(func() error {
		return a.dispatchLoop(gctx, handler, aioCh)
	})

	err = group.Wait()
	a.teardown(handler)
	return err
}

// dispatchLoop is the actual epoll_wait/handle cycle.
func (a *Acceptor) dispatchLoop(ctx context.Context, handler ConnEvent, aioCh <-chan *AIORecord) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		events, err := a.poller.Wait(a.cfg.MaxEpollEvents(), 250)
		if err != nil {
			return err
		}

		for _, ev := range events {
			switch {
			case a.fdListener[ev.Fd] != nil:
				a.acceptLoop(a.fdListener[ev.Fd], handler)
			case a.sigBridge != nil && ev.Fd == a.sigBridge.Fd():
				a.handleSignals()
			case ev.Fd == a.eventFD:
				a.drainAIOWakeups(aioCh, handler)
			default:
				if c := a.fdConn[ev.Fd]; c != nil {
					a.handleConnEvent(c, ev, handler)
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// acceptLoop drains accept4() on l to EAGAIN, matching the edge-triggered
// drain invariant, registering each new connection and invoking
// OnConnected.
func (a *Acceptor) acceptLoop(l *Listener, handler ConnEvent) {
	for {
		fd, sa, err := unix.Accept4(l.Fd(), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				return
			}
			a.log.WithError(err).Warn("accept4 failed")
			return
		}

		ip, port, ipv6 := peerAddr(sa)
		c := a.acquireConn(fd, ip, port, ipv6)

		if err := a.poller.Add(fd, false); err != nil {
			a.log.WithError(err).Warn("failed to register connection fd with epoll")
			a.releaseConn(c, handler, false)
			continue
		}
		a.fdConn[fd] = c

		a.used.PushBack(c)
		c.membership = membershipUsed
		c.neverUsed = false

		flags := handler.OnConnected(newCtxSetter(c), a.cfg, c, c.SendBuf)
		c.setLastEventFlags(flags)
		a.loopSend(c, handler)

		if flags&EventDisconnect != 0 && !c.SendPending() {
			// OnConnected itself asked to disconnect: OnConnected has run,
			// so its matching OnDisconnected fires as the connection is
			// released.
			a.releaseConn(c, handler, true)
			continue
		}

		a.afterHandlerReturn(c, handler, flags, true)
	}
}

// acquireConn pulls a Conn from the free list if one is available,
// otherwise allocates a new one, matching spec.md §4.4's pooling policy.
func (a *Acceptor) acquireConn(fd int, ip string, port uint16, ipv6 bool) *Conn {
	c := a.free.PopFront()
	if c == nil {
		c = newConn()
	} else {
		c.membership = membershipNone
	}
	c.reset(fd, ip, port, ipv6)
	return c
}

// handleConnEvent processes one epoll readiness notification for an
// established connection: receive, dispatch OnReceived, send pending
// bytes, and react to hangup/disconnect.
func (a *Acceptor) handleConnEvent(c *Conn, ev pollerEventKind, handler ConnEvent) {
	if ev.Readable {
		n, peerClosed, err := c.Recv()
		if err != nil {
			a.releaseConn(c, handler, true)
			return
		}
		if n > 0 {
			flags := handler.OnReceived(newCtxSetter(c), a.cfg, c, c.RecvBuf, c.SendBuf)
			c.setLastEventFlags(flags)
			if !a.afterHandlerReturn(c, handler, flags, true) {
				return
			}
		}
		if peerClosed {
			a.releaseConn(c, handler, true)
			return
		}
	}

	if ev.Writable && c.SendPending() {
		// Re-apply the last returned flags so a drained buffer triggers
		// GetMoreData (EventMoreData) or the deferred close (EventDisconnect).
		if !a.afterHandlerReturn(c, handler, c.LastEventFlags(), true) {
			return
		}
	}

	if ev.HangupOrErr && !c.SendPending() {
		a.releaseConn(c, handler, true)
	}
}

// afterHandlerReturn applies a handler's returned event flags: drains
// any pending send buffer, honors EventMoreData by calling GetMoreData
// until it stops returning more, and honors EventDisconnect by tearing
// the connection down once nothing is left to send. It returns false if
// the connection was torn down.
func (a *Acceptor) afterHandlerReturn(c *Conn, handler ConnEvent, flags uint32, allowMore bool) bool {
	for {
		a.loopSend(c, handler)

		if allowMore && flags&EventMoreData != 0 && !c.SendPending() {
			flags = handler.GetMoreData(newCtxSetter(c), a.cfg, c, c.SendBuf)
			c.setLastEventFlags(flags)
			continue
		}
		break
	}

	if flags&EventDisconnect != 0 && !c.SendPending() {
		a.releaseConn(c, handler, true)
		return false
	}

	return true
}

// loopSend drains c.SendBuf through the socket and keeps the poller's
// EPOLLOUT interest in sync with whether bytes remain, matching
// conn_t::send()'s "register for write-readiness only while needed"
// contract (avoids perpetually waking the loop on an idle, writable
// socket).
func (a *Acceptor) loopSend(c *Conn, handler ConnEvent) {
	if !c.SendPending() {
		return
	}

	_, err := c.Send()
	if err != nil {
		a.releaseConn(c, handler, true)
		return
	}

	if err := a.poller.Modify(c.Fd(), c.SendPending()); err != nil {
		a.log.WithError(err).Warn("failed to update epoll interest set")
	}
}

// handleSignals drains the signal bridge and reacts to SIGTERM/SIGINT by
// requesting shutdown, and to SIGCHLD by reaping children when a
// WorkerPool is attached (without one, SIGCHLD is drained and ignored) —
// matching spec.md §7's signal bridge contract.
func (a *Acceptor) handleSignals() {
	for {
		rec, ok := a.sigBridge.Drain()
		if !ok {
			return
		}
		switch unix.Signal(rec.Signo) {
		case unix.SIGTERM, unix.SIGINT:
			a.Stop()
		case unix.SIGCHLD:
			if a.pool != nil {
				a.reapChildren(false)
			}
		}
	}
}

// drainAIOWakeups empties the eventfd counter and every record currently
// queued on aioCh, delivering each to its owning connection and
// invoking OnAIOCompleted — the only place onAIODelivered is called,
// preserving the single-writer invariant on *Conn state.
func (a *Acceptor) drainAIOWakeups(aioCh <-chan *AIORecord, handler ConnEvent) {
	buf := make([]byte, 8)
	for {
		_, err := unix.Read(a.eventFD, buf)
		if err != nil {
			break
		}
	}

	for {
		select {
		case rec := <-aioCh:
			a.deliverAIO(rec, handler)
		default:
			return
		}
	}
}

func (a *Acceptor) deliverAIO(rec *AIORecord, handler ConnEvent) {
	c := rec.conn
	if c == nil {
		return
	}
	c.onAIODelivered(rec)

	if c.HasRunningAIO() {
		return
	}

	if c.disconnecting {
		// Case 2's tail end of case 3 (spec.md §4.6): the peer is already
		// gone, the fd is already closed and OnDisconnected already fired
		// at park time, so the only thing left to do is recycle — no
		// handler call, since there is no live connection left to report
		// completion on. Parking onto the aio-wait list only ever happens
		// via releaseConn, which always sets disconnecting alongside it,
		// so membership is always membershipAIOWait here.
		a.aioWait.Remove(c)
		c.disconnecting = false
		if a.free.Len() < a.cfg.MaxFreeConnection() {
			a.free.PushBack(c)
			c.membership = membershipFree
		} else {
			c.membership = membershipNone
		}
		return
	}

	// A live, still-used connection with outstanding AIO never leaves the
	// used list (only a disconnecting one is parked in aio-wait), so there
	// is nothing to move here — just report completion.
	flags := handler.OnAIOCompleted(newCtxSetter(c), a.cfg, c)
	c.setLastEventFlags(flags)
	a.afterHandlerReturn(c, handler, flags, true)
}

// releaseConn implements spec.md §4.6's 4-case GC policy:
//
//  1. acceptLoop failed to register the new fd with epoll: close the fd
//     and recycle (or drop) the connection as in case 2, with no
//     OnDisconnected, since OnConnected never ran for it.
//  2. The connection is in the used list with no outstanding AIO: call
//     OnDisconnected exactly once, close the fd, deregister from epoll
//     (failure here is observational only, per the resolved Open
//     Question — the kernel already drops a closed fd from its epoll
//     set), then recycle into the free list if it has room, else drop it
//     for the Go garbage collector to reclaim.
//  3. The connection still has outstanding AIO: OnDisconnected fires now
//     (the peer is gone; there is no later point at which "connected" is
//     still true), then the fd is closed and the connection is parked on
//     the aio-wait list with disconnecting set. deliverAIO's matching
//     case 2 recycles it once HasRunningAIO() becomes false, without
//     calling any further handler method.
//  4. The connection is already in the aio-wait list when a second
//     teardown trigger fires: idempotent — the connection is first
//     unlinked from whichever list holds it and then re-parked or
//     recycled, and the neverUsed/disconnecting guards keep
//     OnDisconnected from double-firing.
func (a *Acceptor) releaseConn(c *Conn, handler ConnEvent, wasConnected bool) {
	if a.poller != nil && c.Fd() >= 0 {
		a.poller.Remove(c.Fd())
	}
	delete(a.fdConn, c.Fd())

	switch c.membership {
	case membershipUsed:
		a.used.Remove(c)
	case membershipFree:
		a.free.Remove(c)
	case membershipAIOWait:
		a.aioWait.Remove(c)
	}

	if c.HasRunningAIO() {
		if wasConnected && !c.neverUsed && !c.disconnecting {
			handler.OnDisconnected(newCtxSetter(c), a.cfg, c)
		}
		c.Close()
		c.neverUsed = true
		c.disconnecting = true
		a.aioWait.PushBack(c)
		c.membership = membershipAIOWait
		return
	}

	if wasConnected && !c.neverUsed && !c.disconnecting {
		handler.OnDisconnected(newCtxSetter(c), a.cfg, c)
	}
	c.Close()
	c.neverUsed = true

	if a.free.Len() < a.cfg.MaxFreeConnection() {
		a.free.PushBack(c)
		c.membership = membershipFree
	} else {
		c.membership = membershipNone
	}
}

// teardown runs once the dispatch loop exits: it disconnects every
// still-used connection, closes the fd of every connection parked on the
// aio-wait list, and closes every listener. Completed AIO records still
// held by aio-wait connections are not drained or delivered.
func (a *Acceptor) teardown(handler ConnEvent) {
	a.used.ForEachSafe(func(c *Conn) {
		a.releaseConn(c, handler, true)
	})
	a.aioWait.ForEachSafe(func(c *Conn) {
		c.Close()
	})
	for _, l := range a.listeners {
		l.Close()
	}
	a.fdListener = make(map[int]*Listener)
	a.listeners = nil
}

// peerAddr extracts dotted-decimal/hex IP, port and family from a
// unix.Sockaddr returned by accept4.
func peerAddr(sa unix.Sockaddr) (ip string, port uint16, ipv6 bool) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d", v.Addr[0], v.Addr[1], v.Addr[2], v.Addr[3]), uint16(v.Port), false
	case *unix.SockaddrInet6:
		return fmt.Sprintf("%x", v.Addr), uint16(v.Port), true
	default:
		return "", 0, false
	}
}
