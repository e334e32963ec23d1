//go:build linux

package queue

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/michaelpopov/bongo/session"
)

// NoteKind tags a NotifyPipe record, mirroring bongo's PipeQueue message
// tags (original_source/src/utils/pipe_queue.h): a worker has finished with
// a session and the reactor should take it back, a worker hit a fatal
// error and the connection must be torn down, or a worker has a response
// partly written and wants the reactor to keep pumping it out without
// releasing the session.
type NoteKind byte

const (
	NoteSessionReleased NoteKind = iota + 1
	NoteSessionFailed
	NoteMoreData
)

// noteSize is the wire size of one record: 1 tag byte + 8 connection-id
// bytes. Fixed-size records let the reactor read a batch with a single
// read(2) and never have to frame across writes.
const noteSize = 1 + 8

// NotifyPipe is the worker-to-reactor wakeup channel: a self-pipe registered
// with the reactor's epoll set on the read side, written to by worker
// goroutines on the write side. It exists because epoll_wait cannot itself
// be woken by arbitrary goroutines; the pipe gives the workers an fd to
// write to that the reactor is already polling.
//
// Grounded on bongo's PipeQueue (original_source/src/utils/pipe_queue.cpp),
// generalized from a raw SessionBase* in the wire record to a ConnHandle,
// per the spec's Design Notes: no pointer ever crosses the pipe.
type NotifyPipe struct {
	readFd  int
	writeFd int
}

// NewNotifyPipe creates the underlying kernel pipe. Both ends are
// non-blocking: the read side is driven by epoll, and the write side must
// never stall a worker goroutine on a full pipe buffer (size is bounded,
// but one 9-byte record per release keeps it far from saturation in
// practice).
func NewNotifyPipe() (*NotifyPipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, errors.Wrap(err, "notifypipe: pipe2")
	}
	return &NotifyPipe{readFd: fds[0], writeFd: fds[1]}, nil
}

// ReadFd is the descriptor the reactor registers for EPOLLIN.
func (p *NotifyPipe) ReadFd() int { return p.readFd }

// Close closes both ends.
func (p *NotifyPipe) Close() error {
	err1 := unix.Close(p.readFd)
	err2 := unix.Close(p.writeFd)
	if err1 != nil {
		return err1
	}
	return err2
}

// Notify writes one fixed-size record. It retries on EINTR/EAGAIN (the pipe
// buffer is large relative to record size, so EAGAIN should be transient);
// any other error is fatal to the pipe.
func (p *NotifyPipe) Notify(kind NoteKind, conn session.ConnHandle) error {
	var buf [noteSize]byte
	buf[0] = byte(kind)
	binary.LittleEndian.PutUint64(buf[1:], uint64(conn))

	for {
		n, err := unix.Write(p.writeFd, buf[:])
		if err == nil {
			if n != noteSize {
				return errors.New("notifypipe: short write")
			}
			return nil
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			continue
		}
		return errors.Wrap(err, "notifypipe: write")
	}
}

// Note is one decoded NotifyPipe record.
type Note struct {
	Kind NoteKind
	Conn session.ConnHandle
}

// Drain reads every record currently available on the pipe without
// blocking, for the reactor to call once per EPOLLIN wakeup on readFd. It
// returns io.EOF only if the write end has been closed (shutdown).
func (p *NotifyPipe) Drain() ([]Note, error) {
	var notes []Note
	var buf [64 * noteSize]byte

	for {
		n, err := unix.Read(p.readFd, buf[:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				return notes, nil
			}
			return notes, errors.Wrap(err, "notifypipe: read")
		}
		if n == 0 {
			return notes, io.EOF
		}

		for off := 0; off+noteSize <= n; off += noteSize {
			rec := buf[off : off+noteSize]
			notes = append(notes, Note{
				Kind: NoteKind(rec[0]),
				Conn: session.ConnHandle(binary.LittleEndian.Uint64(rec[1:])),
			})
		}
	}
}
