// Package httpish implements a deliberately minimal HTTP/1.0-style demo
// protocol: a request-line plus headers terminated by a blank line, with an
// optional body sized by a "Content-Length" header. Its ParseSize searches
// the header block for that header line, and a request without one (a bare
// GET) has a zero-length body.
package httpish

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/michaelpopov/bongo/session"
)

const maxHeaderBlock = 8192
const maxBodySize = 1 << 20

var policy = session.Policy{
	Kind:      session.Delimited,
	Marker:    []byte("\r\n\r\n"),
	MaxHeader: maxHeaderBlock,
	MaxBody:   maxBodySize,
}

// Request is a parsed request line plus whatever body bytes followed it.
type Request struct {
	Line string
	Body []byte
}

// Session replies to every request with a trivial 200 response that echoes
// the request line, demonstrating a protocol whose header and body are
// decoded independently instead of as one opaque blob.
type Session struct {
	*session.Base
	failed bool
}

// Factory constructs httpish sessions.
type Factory struct{}

func (Factory) MakeSession(conn session.ConnHandle) session.Core {
	s := &Session{Base: session.NewBase(conn, policy, 0, 0)}
	s.Bind(s)
	return s
}

func (s *Session) Init() error { return nil }

// ParseSize looks for a "Content-Length:" header line (case-sensitive, as
// this is a demo protocol, not a real HTTP stack) and returns its value, or
// 0 if absent.
func (s *Session) ParseSize(header []byte) int {
	const key = "Content-Length:"
	idx := bytes.Index(header, []byte(key))
	if idx < 0 {
		return 0
	}
	rest := header[idx+len(key):]
	end := bytes.IndexByte(rest, '\r')
	if end < 0 {
		end = len(rest)
	}
	n, err := strconv.Atoi(string(bytes.TrimSpace(rest[:end])))
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func (s *Session) ParseMessage(msg session.InputMessage) (session.Request, bool) {
	lineEnd := bytes.IndexByte(msg.Header, '\r')
	if lineEnd < 0 {
		return nil, false
	}
	return Request{Line: string(msg.Header[:lineEnd]), Body: msg.Body}, true
}

func (s *Session) Process(req session.Request) session.Status {
	r := req.(Request)
	body := fmt.Sprintf("ok: %s (%d body bytes)", r.Line, len(r.Body))
	resp := fmt.Sprintf("HTTP/1.0 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(body), body)
	s.AppendResponse([]byte(resp))
	return session.StatusOK
}

func (s *Session) Failed() bool { return s.failed }
