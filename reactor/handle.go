// Package reactor implements the single I/O goroutine: an epoll-driven
// event loop that owns every connection's file descriptor, multiplexes
// accept/connect/read/write readiness, and hands complete requests off to
// the worker pool via a queue.WorkQueue, taking a session back only after the
// worker pool signals release through a queue.NotifyPipe.
//
// Grounded on bongo's NonBlockConnectionManager
// (original_source/src/net/nonblock_conn.cpp), replacing its direct
// epoll_ctl(connection*) registration -- which stashes a raw pointer in
// epoll_data -- with an integer ConnHandle key into a handle table, per the
// spec's Design Notes.
package reactor

import (
	"github.com/michaelpopov/bongo/session"
)

// interest is the epoll event mask a handle is currently registered for.
type interest uint32

const (
	interestRead interest = 1 << iota
	interestWrite
)

// kind distinguishes the four fd roles the reactor multiplexes: a
// listening socket awaiting accept, a connecting socket awaiting its
// connect() to complete, an established session's socket, and the read end
// of the NotifyPipe.
type kind int

const (
	kindListener kind = iota
	kindConnecting
	kindSession
	kindNotifyPipe
)

// handle is the reactor's bookkeeping record for one file descriptor. Only
// the reactor goroutine ever reads or writes a handle's fields; workers and
// other goroutines only ever hold a ConnHandle and go through the
// WorkQueue/NotifyPipe to reach the reactor.
type handle struct {
	fd       int
	kind     kind
	interest interest
	conn     session.ConnHandle
	core     session.Core // nil unless kind == kindSession
	factory  session.Factory
	closing  bool
}

// The Reactor itself owns the by-fd and by-ConnHandle maps (reactor.go):
// both are touched only from the reactor's own goroutine, so no separate
// locking wrapper is needed here.
