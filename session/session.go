// Package session implements the per-connection state machine described by
// the core design: two byte arenas, a pluggable Framer, a mutex-protected
// input-message queue, and a Released/InProcessing ownership tag that
// oscillates between the reactor goroutine and a worker goroutine under a
// strict at-most-one-owner rule.
//
// It is grounded on bongo's NetSession (original_source/src/net/session_base.h)
// generalized per the spec's Design Notes: the C++ inheritance chain
// (SessionBase -> MirrorSession/HttpSession/ReqRespSession) becomes a small
// interface (Session) plus one shared struct (Base) that concrete protocols
// embed, instead of a virtual base class.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/michaelpopov/bongo/arena"
)

// Request and Response are opaque, protocol-defined values. The core never
// inspects them; it treats them as sum-type variants only the concrete
// Session implementation understands (replacing the source's
// RequestBase/ResponseBase virtual base classes and its dynamic_cast at the
// worker, per the spec's Design Notes).
type Request any
type Response any

// Status is the outcome of Session.Process for a single request.
type Status int

const (
	// StatusOK means the response was fully appended; the worker moves on to
	// the next queued request, if any.
	StatusOK Status = iota
	// StatusFailed means the session hit an unrecoverable error; the worker
	// notifies NoteSessionFailed and the connection is torn down.
	StatusFailed
	// StatusIncompleteSend means Process produced more response data than it
	// could append to the write arena in one go (e.g. a bound on how much it
	// will buffer ahead of the socket). The worker stops processing further
	// requests and notifies NoteMoreData instead of releasing, so the
	// reactor pumps the write side without re-entering the session as
	// Released (spec §4.3/§4.6/§4.7 point 3).
	StatusIncompleteSend
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "Ok"
	case StatusFailed:
		return "Failed"
	case StatusIncompleteSend:
		return "IncompleteSend"
	default:
		return "Unknown"
	}
}

// State is the session's ownership tag (spec §4.3).
type State int32

const (
	Released State = iota
	InProcessing
)

func (s State) String() string {
	if s == InProcessing {
		return "InProcessing"
	}
	return "Released"
}

// ConnHandle is a stable, non-owning reference to a reactor-side connection
// slot. Sessions and workers never dereference a raw connection pointer;
// they pass this id back to the reactor, which resolves it through its own
// handle table. This replaces the source's raw back-pointer between
// NetSession and NonBlockConnection, per the spec's Design Notes.
type ConnHandle uint64

// Session is the application's extension point, replacing bongo's
// SessionBase v-table. Of the five methods the spec's Design Notes name
// (parse_size, parse_message, send_response, has_request, failed), Session
// carries ParseSize, ParseMessage and Failed, folds send_response into
// Process (the per-session request handler that computes and appends a
// response, since the two always happen together in every demo protocol),
// and adds Init; has_request is Core.HasRequest, supplied by Base.
type Session interface {
	// Init runs once at session creation, before any bytes are read. Most
	// protocols use the default no-op; a protocol that must speak first
	// (e.g. a greeting banner) writes into its WriteArena here.
	Init() error

	// ParseSize returns the body length encoded by header, per the active
	// Framer policy. It must return a non-negative integer; Frame rejects
	// anything exceeding the policy's MaxBody as a protocol error.
	ParseSize(header []byte) int

	// ParseMessage converts one framed InputMessage into a Request, or
	// reports that it could not (a protocol error).
	ParseMessage(msg InputMessage) (Request, bool)

	// Process runs the handler for req and appends its response to the
	// session's write arena via AppendResponse. Its return value drives the
	// worker pool's re-queue/release decision (spec §4.7).
	Process(req Request) Status

	// Failed reports whether the session already hit an unrecoverable
	// error and should be torn down once released.
	Failed() bool
}

// Core is the superset of Session that reactor and worker code operate on:
// Session's five methods plus the bookkeeping every protocol shares via an
// embedded *Base. A concrete protocol type satisfies Core automatically by
// embedding *Base and implementing Session.
type Core interface {
	Session

	Conn() ConnHandle
	State() State
	SetState(State)
	ReadArena() *arena.Arena
	WriteArena() *arena.Arena
	FramerPolicy() Policy

	// OnRead runs framing over ReadArena and enqueues any complete
	// messages. It reports whether at least one message was enqueued, so
	// the reactor can decide whether to transition Released->InProcessing.
	OnRead() (bool, error)

	// HasRequest reports whether the input queue is non-empty. Per the
	// spec's corrected Open Question, "has a pending request" is exactly
	// "input queue is non-empty" -- not bongo's inverted hasRequest().
	HasRequest() bool

	// PopMessage removes and returns the oldest queued InputMessage.
	PopMessage() (InputMessage, bool)

	// AppendResponse appends bytes to the write arena. Protocol Process
	// implementations call this instead of touching WriteArena directly, so
	// the append is always mutex-free and always happens on the worker that
	// currently owns the session (I3).
	AppendResponse(b []byte)
}

// Factory constructs a Session for a newly accepted or newly connected
// socket. It is the only application-facing extension point besides Session
// itself, mirroring bongo's NetSessionFactory.
type Factory interface {
	MakeSession(conn ConnHandle) Core
}

// Base implements everything Core needs except the five Session-specific
// methods (Init/ParseSize/ParseMessage/Process/Failed), which a concrete
// protocol supplies by embedding *Base and adding those methods.
//
// A protocol's MakeSession must call Bind(self) once, after constructing the
// full value, so Base.OnRead can reach the concrete ParseSize override. This
// mirrors the "virtual call from inside a base-class method" pattern bongo
// gets for free from C++ inheritance; Go needs the explicit bind.
type Base struct {
	conn ConnHandle

	readArena  *arena.Arena
	writeArena *arena.Arena
	policy     Policy

	mu    sync.Mutex
	queue []InputMessage

	state int32 // State, accessed via sync/atomic

	self Session // bound once via Bind; never reassigned after
}

// NewBase constructs the shared session state for conn, using policy to
// frame its incoming byte stream. readBuf/writeBuf are the initial arena
// capacities (bytes), matching bongo's 1KiB read / 16KiB write defaults
// from original_source/src/net/session_base.h.
func NewBase(conn ConnHandle, policy Policy, readBuf, writeBuf int) *Base {
	if readBuf <= 0 {
		readBuf = 1024
	}
	if writeBuf <= 0 {
		writeBuf = 16 * 1024
	}
	return &Base{
		conn:       conn,
		readArena:  arena.New(readBuf),
		writeArena: arena.New(writeBuf),
		policy:     policy,
	}
}

// Bind records self as the concrete Session so Base.OnRead can dispatch to
// its ParseSize override. MakeSession must call this exactly once.
func (b *Base) Bind(self Session) {
	b.self = self
}

func (b *Base) Conn() ConnHandle { return b.conn }

func (b *Base) State() State {
	return State(atomic.LoadInt32(&b.state))
}

// SetState is called only by the reactor goroutine (Released->InProcessing
// on enqueue, InProcessing->Released on a SessionReleased or SessionFailed
// notification) per
// invariant I1/I2. Workers never call it.
func (b *Base) SetState(s State) {
	atomic.StoreInt32(&b.state, int32(s))
}

func (b *Base) ReadArena() *arena.Arena  { return b.readArena }
func (b *Base) WriteArena() *arena.Arena { return b.writeArena }
func (b *Base) FramerPolicy() Policy     { return b.policy }

func (b *Base) AppendResponse(data []byte) {
	dst := b.writeArena.Reserve(len(data))
	n := copy(dst, data)
	b.writeArena.AdvanceWrite(n)
}

func (b *Base) OnRead() (bool, error) {
	if b.self == nil {
		panic("bongo/session: Base.Bind was never called")
	}
	msgs, err := Frame(b.readArena, b.policy, b.self.ParseSize)
	if err != nil {
		return false, err
	}
	if len(msgs) == 0 {
		return false, nil
	}

	b.mu.Lock()
	b.queue = append(b.queue, msgs...)
	b.mu.Unlock()
	return true, nil
}

func (b *Base) HasRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue) > 0
}

func (b *Base) PopMessage() (InputMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return InputMessage{}, false
	}
	msg := b.queue[0]
	b.queue = b.queue[1:]
	return msg, true
}
