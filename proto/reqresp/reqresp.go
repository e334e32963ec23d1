// Package reqresp implements a small binary RPC demo protocol. Every frame
// starts with a 4-byte little-endian body length; a request body is a
// one-byte opcode plus two little-endian int32 operands, and a response body
// is the little-endian int32 result. Unlike echo/fixedmirror/
// delimmirror, Request and Response here are genuinely distinct shapes,
// exercising the worker's Process -> AppendResponse path with a real
// computed answer instead of a copy.
package reqresp

import (
	"encoding/binary"

	"github.com/michaelpopov/bongo/session"
)

// Opcode selects the operation a Request performs.
type Opcode byte

const (
	OpAdd Opcode = iota
	OpSub
	OpMul
)

const requestBodySize = 1 + 4 + 4 // opcode + two int32 operands

var policy = session.Policy{
	Kind:       session.Fixed,
	HeaderSize: 4,
	MaxBody:    requestBodySize,
}

// Request is the decoded form of one wire frame.
type Request struct {
	Op   Opcode
	A, B int32
}

// Session evaluates each request's arithmetic and replies with the result.
type Session struct {
	*session.Base
	failed bool
}

// Factory constructs reqresp sessions.
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
	if len(msg.Body) != requestBodySize {
		return nil, false
	}
	req := Request{
		Op: Opcode(msg.Body[0]),
		A:  int32(binary.LittleEndian.Uint32(msg.Body[1:5])),
		B:  int32(binary.LittleEndian.Uint32(msg.Body[5:9])),
	}
	if req.Op > OpMul {
		return nil, false
	}
	return req, true
}

func (s *Session) Process(req session.Request) session.Status {
	r := req.(Request)

	var result int32
	switch r.Op {
	case OpAdd:
		result = r.A + r.B
	case OpSub:
		result = r.A - r.B
	case OpMul:
		result = r.A * r.B
	default:
		s.failed = true
		return session.StatusFailed
	}

	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, uint32(result))

	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(payload)))
	s.AppendResponse(header)
	s.AppendResponse(payload)
	return session.StatusOK
}

func (s *Session) Failed() bool { return s.failed }
