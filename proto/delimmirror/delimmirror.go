// Package delimmirror implements a text-framed demo protocol: a decimal
// ASCII body length terminated by "\r\n", followed by that many bytes of
// body, mirrored back under a freshly computed header of the same shape.
// It exercises the Delimited Framer policy with a multi-byte marker and the
// unterminated-header protocol error path.
package delimmirror

import (
	"strconv"

	"github.com/michaelpopov/bongo/session"
)

// MaxHeaderSearch bounds how far Frame searches for the "\r\n" marker
// before declaring the stream malformed.
const MaxHeaderSearch = 32

// MaxBodySize bounds a single frame's body.
const MaxBodySize = 1 << 20

var policy = session.Policy{
	Kind:      session.Delimited,
	Marker:    []byte("\r\n"),
	MaxHeader: MaxHeaderSearch,
	MaxBody:   MaxBodySize,
}

// Session mirrors every complete frame it receives.
type Session struct {
	*session.Base
	failed bool
}

// Factory constructs delimmirror sessions.
type Factory struct{}

func (Factory) MakeSession(conn session.ConnHandle) session.Core {
	s := &Session{Base: session.NewBase(conn, policy, 0, 0)}
	s.Bind(s)
	return s
}

func (s *Session) Init() error { return nil }

// ParseSize strips the trailing "\r\n" marker before parsing the decimal
// length. A malformed length is reported as a negative size, which Frame
// treats as a protocol error.
func (s *Session) ParseSize(header []byte) int {
	if len(header) < len(policy.Marker) {
		return -1
	}
	n, err := strconv.Atoi(string(header[:len(header)-len(policy.Marker)]))
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func (s *Session) ParseMessage(msg session.InputMessage) (session.Request, bool) {
	return msg.Body, true
}

func (s *Session) Process(req session.Request) session.Status {
	body := req.([]byte)
	s.AppendResponse([]byte(strconv.Itoa(len(body))))
	s.AppendResponse([]byte("\r\n"))
	s.AppendResponse(body)
	return session.StatusOK
}

func (s *Session) Failed() bool { return s.failed }
