//go:build linux

package reactor

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/michaelpopov/bongo/internal/blog"
	"github.com/michaelpopov/bongo/queue"
	"github.com/michaelpopov/bongo/session"
)

// Stats is a point-in-time snapshot of the reactor's bookkeeping, mirroring
// bongo's NonBlockNet::Stats (original_source/src/net/nonblock_conn.h).
type Stats struct {
	Ready            bool
	Running          bool
	AcceptedCount    uint64
	ConnectedCount   uint64
	ConnectionsCount int
	ListenersCount   int
	ConnectorsCount  int
}

// Count is the total number of connection, listener and connector fds the
// reactor currently has registered; the NotifyPipe's fd is not counted.
func (s Stats) Count() int { return s.ConnectionsCount + s.ListenersCount + s.ConnectorsCount }

// Reactor is the single I/O goroutine described by the package doc. All of
// its unexported state is touched only from the goroutine that calls Run or
// Step; the exported methods that may be called from other goroutines
// (Stop, Notify, Stats, WaitListenersReady) are safe to call concurrently
// because they only touch an atomic flag, a mutex-protected counter, or the
// NotifyPipe's own write side.
type Reactor struct {
	epfd int

	byFd   map[int]*handle
	byConn map[session.ConnHandle]*handle
	nextID uint64

	notify    *queue.NotifyPipe
	workQueue *queue.WorkQueue[session.Core]

	keepRunning atomic.Bool

	mu    sync.Mutex
	stats Stats
}

// New creates an epoll instance and the self-pipe used for worker->reactor
// notifications, and wires them both to workQueue, the FIFO that the
// reactor pushes newly-readable sessions onto for the worker pool to drain.
func New(workQueue *queue.WorkQueue[session.Core]) (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "reactor: epoll_create1")
	}

	notify, err := queue.NewNotifyPipe()
	if err != nil {
		unix.Close(epfd)
		return nil, errors.Wrap(err, "reactor: notify pipe")
	}

	r := &Reactor{
		epfd:      epfd,
		byFd:      make(map[int]*handle),
		byConn:    make(map[session.ConnHandle]*handle),
		nextID:    1,
		notify:    notify,
		workQueue: workQueue,
	}

	pipeHandle := &handle{fd: notify.ReadFd(), kind: kindNotifyPipe, interest: interestRead}
	if err := r.epollAdd(pipeHandle.fd, unix.EPOLLIN); err != nil {
		unix.Close(epfd)
		notify.Close()
		return nil, err
	}
	r.byFd[pipeHandle.fd] = pipeHandle

	r.mu.Lock()
	r.stats.Ready = true
	r.mu.Unlock()

	return r, nil
}

// Notify lets a worker goroutine report that it is done with a session
// (released, normally or via a fatal error), waking the reactor through the
// self-pipe so it can resume polling or tear the connection down.
func (r *Reactor) Notify(kind queue.NoteKind, conn session.ConnHandle) error {
	return r.notify.Notify(kind, conn)
}

// Stats returns a snapshot safe to read concurrently with Run/Step.
func (r *Reactor) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// WaitListenersReady polls Stats until at least n listeners are registered
// or attempts is exhausted, sleeping interval between checks. Ported from
// bongo's NonBlockNet::waitListenerReady
// (original_source/src/net/nonblock_conn.cpp), used by the tests to know the
// listen socket is live before dialing it.
func (r *Reactor) WaitListenersReady(n, attempts int, interval time.Duration) bool {
	for i := 0; i < attempts; i++ {
		if r.Stats().ListenersCount >= n {
			return true
		}
		time.Sleep(interval)
	}
	return r.Stats().ListenersCount >= n
}

// StartListen binds and listens on host:port and registers the socket for
// EPOLLIN; each accepted connection gets a session from factory.
func (r *Reactor) StartListen(name, host string, port int, factory session.Factory) error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return errors.Wrap(err, "reactor: socket")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "reactor: setsockopt SO_REUSEADDR")
	}

	addr, err := resolveSockaddr(host, port)
	if err != nil {
		unix.Close(fd)
		return err
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "reactor: bind")
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "reactor: listen")
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "reactor: set non-blocking")
	}

	h := &handle{fd: fd, kind: kindListener, interest: interestRead, factory: factory}
	if err := r.epollAdd(fd, unix.EPOLLIN); err != nil {
		unix.Close(fd)
		return err
	}
	r.byFd[fd] = h

	r.mu.Lock()
	r.stats.ListenersCount++
	r.mu.Unlock()

	blog.Trace("reactor: listening on %s:%d as %q", host, port, name)
	return nil
}

// StartConnect begins a non-blocking connect to host:port. If the connect
// completes synchronously (loopback, typically) the session starts in
// write-ready state immediately; otherwise the fd is registered for
// EPOLLOUT and the connect is finished on the first writable event.
func (r *Reactor) StartConnect(name, host string, port int, factory session.Factory) error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return errors.Wrap(err, "reactor: socket")
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "reactor: set non-blocking")
	}

	addr, err := resolveSockaddr(host, port)
	if err != nil {
		unix.Close(fd)
		return err
	}

	err = unix.Connect(fd, addr)
	if err == nil {
		return r.finishConnect(fd, factory)
	}
	if err != unix.EINPROGRESS {
		unix.Close(fd)
		return errors.Wrap(err, "reactor: connect")
	}

	h := &handle{fd: fd, kind: kindConnecting, interest: interestWrite, factory: factory}
	if err := r.epollAdd(fd, unix.EPOLLOUT); err != nil {
		unix.Close(fd)
		return err
	}
	r.byFd[fd] = h

	r.mu.Lock()
	r.stats.ConnectorsCount++
	r.mu.Unlock()

	return nil
}

func (r *Reactor) finishConnect(fd int, factory session.Factory) error {
	h := &handle{fd: fd, kind: kindSession, interest: interestRead, factory: factory}
	id := r.allocConn(h)
	h.core = factory.MakeSession(id)
	if err := h.core.Init(); err != nil {
		r.dropConn(h, true)
		return errors.Wrap(err, "reactor: session init")
	}

	if err := r.epollAdd(fd, unix.EPOLLIN); err != nil {
		r.dropConn(h, true)
		return err
	}
	r.byFd[fd] = h

	r.mu.Lock()
	r.stats.ConnectedCount++
	r.stats.ConnectionsCount++
	r.mu.Unlock()

	r.pumpWrite(h)
	return nil
}

func (r *Reactor) allocConn(h *handle) session.ConnHandle {
	id := session.ConnHandle(r.nextID)
	r.nextID++
	h.conn = id
	r.byConn[id] = h
	return id
}

// Run drives Step in a loop until Stop is called or Step reports a fatal
// error.
func (r *Reactor) Run(pollTimeout time.Duration) error {
	r.keepRunning.Store(true)
	r.mu.Lock()
	r.stats.Running = true
	r.mu.Unlock()

	for r.keepRunning.Load() {
		if err := r.Step(pollTimeout); err != nil {
			r.mu.Lock()
			r.stats.Running = false
			r.mu.Unlock()
			return err
		}
	}

	r.mu.Lock()
	r.stats.Running = false
	r.mu.Unlock()
	return nil
}

// Stop asks Run to return after its current Step.
func (r *Reactor) Stop() {
	r.keepRunning.Store(false)
}

// Close releases the epoll fd and the notify pipe. Call after Run returns.
func (r *Reactor) Close() error {
	r.notify.Close()
	return unix.Close(r.epfd)
}

const maxEpollEvents = 256

// Step blocks for up to pollTimeout waiting for I/O readiness and dispatches
// every ready fd once. Ported from bongo's NonBlockNet::step
// (original_source/src/net/nonblock_conn.cpp).
func (r *Reactor) Step(pollTimeout time.Duration) error {
	var events [maxEpollEvents]unix.EpollEvent

	ms := int(pollTimeout / time.Millisecond)
	n, err := unix.EpollWait(r.epfd, events[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return errors.Wrap(err, "reactor: epoll_wait")
	}

	for i := 0; i < n; i++ {
		ev := events[i]
		h, ok := r.byFd[int(ev.Fd)]
		if !ok {
			continue
		}

		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			r.onError(h)
			continue
		}

		if ev.Events&unix.EPOLLIN != 0 {
			switch h.kind {
			case kindSession:
				r.onRead(h)
			case kindListener:
				r.onAccept(h)
			case kindNotifyPipe:
				r.onNotify()
			}
		}

		if ev.Events&unix.EPOLLOUT != 0 {
			switch h.kind {
			case kindSession:
				r.pumpWrite(h)
			case kindConnecting:
				r.onConnectorReady(h)
			}
		}
	}

	return nil
}

func (r *Reactor) onAccept(listener *handle) {
	for {
		fd, _, err := unix.Accept4(listener.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			blog.Error("reactor: accept failed: %v", err)
			return
		}

		h := &handle{fd: fd, kind: kindSession, interest: interestRead, factory: listener.factory}
		id := r.allocConn(h)
		h.core = listener.factory.MakeSession(id)
		if err := h.core.Init(); err != nil {
			blog.Error("reactor: session init failed: %v", err)
			r.dropConn(h, true)
			continue
		}

		if err := r.epollAdd(fd, unix.EPOLLIN); err != nil {
			blog.Error("reactor: failed to register accepted connection: %v", err)
			r.dropConn(h, true)
			continue
		}
		r.byFd[fd] = h

		r.mu.Lock()
		r.stats.AcceptedCount++
		r.stats.ConnectionsCount++
		r.mu.Unlock()

		r.onRead(h)
	}
}

func (r *Reactor) onConnectorReady(connector *handle) {
	fd := connector.fd
	factory := connector.factory

	r.forget(connector)
	r.mu.Lock()
	r.stats.ConnectorsCount--
	r.mu.Unlock()

	if sockErr := socketError(fd); sockErr != nil {
		blog.Error("reactor: connect failed: %v", sockErr)
		unix.Close(fd)
		return
	}

	if err := r.finishConnect(fd, factory); err != nil {
		blog.Error("reactor: finishConnect: %v", err)
	}
}

// onRead drains the socket into the session's read arena until it would
// block, then asks the session to frame whatever arrived. A complete
// message flips a Released session to InProcessing and pushes it onto the
// work queue. The fd stays registered for reads while the session is
// InProcessing: bytes that arrive meanwhile are framed into the session's
// input queue, where the current worker or the NoteSessionReleased handler
// picks them up, but the session is not pushed onto the work queue again.
func (r *Reactor) onRead(h *handle) {
	core := h.core
	peerClosed := false

readLoop:
	for {
		const chunk = 65536
		buf := core.ReadArena().Reserve(chunk)[:chunk]
		n, err := unix.Read(h.fd, buf)

		switch {
		case err != nil && err == unix.EINTR:
			continue readLoop
		case err != nil && (err == unix.EAGAIN || err == unix.EWOULDBLOCK):
			break readLoop
		case err != nil:
			r.dropConn(h, true)
			return
		case n == 0:
			// Peer closed the write half. Whatever is buffered still gets
			// framed below; the connection is torn down once the session
			// has no work left in flight.
			peerClosed = true
			break readLoop
		}

		core.ReadArena().AdvanceWrite(n)
		if n < len(buf) {
			break
		}
	}

	gotMessage, err := core.OnRead()
	if err != nil {
		r.dropConn(h, true)
		return
	}

	if peerClosed {
		h.closing = true
	}

	if gotMessage && core.State() == session.Released {
		core.SetState(session.InProcessing)
		r.workQueue.Push(core)
		return
	}

	if h.closing && core.State() == session.Released {
		r.dropConn(h, false)
	}
}

// pumpWrite sends as much of the session's write arena as the socket will
// currently accept. It mirrors bongo's NonBlockNet::onWrite: EAGAIN with no
// prior Write interest switches the fd to EPOLLOUT-only; once the arena
// drains, it switches back to EPOLLIN.
func (r *Reactor) pumpWrite(h *handle) {
	core := h.core

	for {
		data := core.WriteArena().Data()
		if len(data) == 0 {
			break
		}

		n, err := unix.Write(h.fd, data)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				if h.interest&interestWrite == 0 {
					if modErr := r.epollMod(h.fd, unix.EPOLLOUT); modErr != nil {
						r.dropConn(h, true)
						return
					}
					h.interest = interestWrite
				}
				return
			}
			r.dropConn(h, true)
			return
		}

		core.WriteArena().Consume(n)
	}

	if h.interest != interestRead {
		if err := r.epollMod(h.fd, unix.EPOLLIN); err != nil {
			r.dropConn(h, true)
			return
		}
		h.interest = interestRead
	}
}

func (r *Reactor) onNotify() {
	notes, err := r.notify.Drain()
	if err != nil {
		blog.Error("reactor: notify pipe drain: %v", err)
	}

	for _, note := range notes {
		h, ok := r.byConn[note.Conn]
		if !ok {
			continue
		}

		switch note.Kind {
		case queue.NoteSessionReleased:
			h.core.SetState(session.Released)
			if h.closing {
				r.dropConn(h, false)
				continue
			}
			if h.core.HasRequest() {
				// A request arrived while the worker was finishing the
				// previous one; re-enter processing immediately instead of
				// waiting for the next EPOLLIN.
				h.core.SetState(session.InProcessing)
				r.workQueue.Push(h.core)
				continue
			}
			r.pumpWrite(h)

		case queue.NoteSessionFailed:
			// The worker has let go of the session; tear the connection down.
			h.closing = true
			h.core.SetState(session.Released)
			r.dropConn(h, false)

		case queue.NoteMoreData:
			// The session is still InProcessing; the worker only asked for
			// help draining the write arena, not for release. Pump the
			// socket and leave ownership where it is.
			r.pumpWrite(h)
		}
	}
}

func (r *Reactor) onError(h *handle) {
	errno := socketError(h.fd)
	blog.Trace("reactor: fd=%d socket error: %v", h.fd, errno)
	r.dropConn(h, false)
}

// dropConn tears a session connection down immediately if force is true or
// the session is currently Released; otherwise it marks the handle closing
// and defers teardown until the worker pool reports the session released,
// since the worker goroutine still holds the only safe reference to it
// (invariant: at most one owner).
func (r *Reactor) dropConn(h *handle, force bool) {
	if h.kind == kindSession && !force && h.core != nil && h.core.State() == session.InProcessing {
		h.closing = true
		return
	}
	registered := r.byFd[h.fd] == h
	r.forget(h)
	unix.Close(h.fd)

	if !registered {
		return
	}
	r.mu.Lock()
	switch h.kind {
	case kindSession:
		r.stats.ConnectionsCount--
	case kindListener:
		r.stats.ListenersCount--
	case kindConnecting:
		r.stats.ConnectorsCount--
	}
	r.mu.Unlock()
}

func (r *Reactor) forget(h *handle) {
	unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, h.fd, nil)
	delete(r.byFd, h.fd)
	if h.conn != 0 {
		delete(r.byConn, h.conn)
	}
}

// epollAdd and epollMod register interest by fd only: the reactor looks
// handles up by fd through byFd rather than stashing a pointer in the
// epoll_data union, so no *handle needs to travel through epoll_ctl.
func (r *Reactor) epollAdd(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return errors.Wrap(err, "reactor: epoll_ctl add")
	}
	return nil
}

func (r *Reactor) epollMod(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return errors.Wrap(err, "reactor: epoll_ctl mod")
	}
	return nil
}

func socketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return unix.Errno(errno)
}

func resolveSockaddr(host string, port int) (unix.Sockaddr, error) {
	if host == "" || host == "*" {
		return &unix.SockaddrInet4{Port: port}, nil
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil, errors.Errorf("reactor: cannot resolve host %q", host)
		}
		ip = ips[0]
	}

	ip4 := ip.To4()
	if ip4 == nil {
		return nil, errors.Errorf("reactor: only IPv4 is supported, got %q", host)
	}

	var addr unix.SockaddrInet4
	addr.Port = port
	copy(addr.Addr[:], ip4)
	return &addr, nil
}
