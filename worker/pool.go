// Package worker implements the fixed-size goroutine pool that drains the
// reactor's work queue and runs each session's request handler, grounded on
// bongo's ProcessorBase (original_source/src/proc/processor_base.cpp).
package worker

import (
	"sync"
	"sync/atomic"

	"github.com/michaelpopov/bongo/internal/blog"
	"github.com/michaelpopov/bongo/queue"
	"github.com/michaelpopov/bongo/session"
)

// Notifier is the one thing a Pool needs from the reactor: a way to wake it
// up once a session has been released or has failed. *reactor.Reactor
// satisfies this.
type Notifier interface {
	Notify(kind queue.NoteKind, conn session.ConnHandle) error
}

// Stats is a snapshot of pool-wide counters, mirroring bongo's
// ProcessorStats (original_source/src/proc/processor_base.h).
type Stats struct {
	ProcessedCount uint64
}

// Pool runs n goroutines, each looping on WorkQueue.Pop, for as long as the
// queue is not shut down.
type Pool struct {
	size      int
	workQueue *queue.WorkQueue[session.Core]
	notifier  Notifier

	processedCount atomic.Uint64

	wg sync.WaitGroup
}

// New returns a Pool of size worker goroutines. Call Start to launch them.
func New(size int, workQueue *queue.WorkQueue[session.Core], notifier Notifier) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: size, workQueue: workQueue, notifier: notifier}
}

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

// Wait blocks until every worker goroutine has returned, which happens once
// the work queue is shut down and fully drained.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	return Stats{ProcessedCount: p.processedCount.Load()}
}

func (p *Pool) run() {
	defer p.wg.Done()

	for {
		core, ok := p.workQueue.Pop()
		if !ok {
			return
		}
		p.processSession(core)
	}
}

// processSession drains every currently-queued request on core, mirroring
// ProcessorBase::processSession: it keeps handling requests off the same
// session without giving the reactor a chance to interleave (the session is
// owned exclusively by this goroutine, per I3), stopping because the queue
// emptied, the session failed, or Process reported anything other than
// StatusOK.
//
// On a clean stop it notifies the reactor so polling for more input can
// resume; on a failure it tells the reactor to tear the connection down
// instead of resuming it; on StatusIncompleteSend it notifies NoteMoreData
// and leaves the session InProcessing, since the worker still owns it and
// only the reactor's write pump can make further progress on the socket.
func (p *Pool) processSession(core session.Core) {
	failed := false
	moreData := false

loop:
	for core.HasRequest() {
		msg, ok := core.PopMessage()
		if !ok {
			break
		}

		req, ok := core.ParseMessage(msg)
		if !ok {
			blog.Warn("worker: conn %d: failed to parse message", core.Conn())
			failed = true
			break
		}

		p.processedCount.Add(1)
		status := core.Process(req)
		switch status {
		case session.StatusOK:
			continue
		case session.StatusFailed:
			failed = true
		case session.StatusIncompleteSend:
			moreData = true
		}
		break loop
	}

	if core.Failed() {
		failed = true
	}

	if failed {
		if err := p.notifier.Notify(queue.NoteSessionFailed, core.Conn()); err != nil {
			blog.Error("worker: notify failed for conn %d: %v", core.Conn(), err)
		}
		return
	}

	if moreData {
		if err := p.notifier.Notify(queue.NoteMoreData, core.Conn()); err != nil {
			blog.Error("worker: notify more-data for conn %d: %v", core.Conn(), err)
		}
		return
	}

	if !core.HasRequest() {
		if err := p.notifier.Notify(queue.NoteSessionReleased, core.Conn()); err != nil {
			blog.Error("worker: notify released for conn %d: %v", core.Conn(), err)
		}
		return
	}

	// More requests arrived while we were processing; keep working this
	// session without round-tripping through the reactor.
	p.workQueue.Push(core)
}
