// Package fixedmirror implements a binary framing demo protocol: a 4-byte
// little-endian length header followed by a body of that many bytes, which
// is mirrored back unchanged preceded by the same header. It exercises the
// Fixed Framer policy and the oversized-body protocol error path.
package fixedmirror

import (
	"encoding/binary"

	"github.com/michaelpopov/bongo/session"
)

// MaxBodySize bounds a single frame's body.
const MaxBodySize = 128

var policy = session.Policy{
	Kind:       session.Fixed,
	HeaderSize: 4,
	MaxBody:    MaxBodySize,
}

// Session mirrors every complete frame it receives.
type Session struct {
	*session.Base
	failed bool
}

// Factory constructs fixedmirror sessions.
type Factory struct{}

func (Factory) MakeSession(conn session.ConnHandle) session.Core {
	s := &Session{Base: session.NewBase(conn, policy, 0, 0)}
	s.Bind(s)
	return s
}

func (s *Session) Init() error { return nil }

func (s *Session) ParseSize(header []byte) int {
	return int(binary.LittleEndian.Uint32(header))
}

func (s *Session) ParseMessage(msg session.InputMessage) (session.Request, bool) {
	return msg.Body, true
}

func (s *Session) Process(req session.Request) session.Status {
	body := req.([]byte)
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(body)))
	s.AppendResponse(header)
	s.AppendResponse(body)
	return session.StatusOK
}

func (s *Session) Failed() bool { return s.failed }
