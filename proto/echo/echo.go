// Package echo implements the simplest demo protocol: newline-delimited
// text lines, echoed back verbatim plus their newline. It exercises the
// Delimited Framer policy with a one-byte marker.
package echo

import (
	"github.com/michaelpopov/bongo/session"
)

const maxLineLength = 4096

// policy frames on "\n"; ParseSize always returns 0 because the delimiter
// itself marks the end of the message -- there is no separate body past it.
var policy = session.Policy{
	Kind:      session.Delimited,
	Marker:    []byte("\n"),
	MaxHeader: maxLineLength,
	MaxBody:   0,
}

// Session echoes each line it receives, unmodified, back to the sender.
type Session struct {
	*session.Base
}

// Factory constructs echo sessions.
type Factory struct{}

func (Factory) MakeSession(conn session.ConnHandle) session.Core {
	s := &Session{Base: session.NewBase(conn, policy, 0, 0)}
	s.Bind(s)
	return s
}

func (s *Session) Init() error { return nil }

func (s *Session) ParseSize(header []byte) int { return 0 }

func (s *Session) ParseMessage(msg session.InputMessage) (session.Request, bool) {
	return msg.Header, true
}

func (s *Session) Process(req session.Request) session.Status {
	line := req.([]byte)
	s.AppendResponse(line)
	return session.StatusOK
}

func (s *Session) Failed() bool { return false }
