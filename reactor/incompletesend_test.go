//go:build linux

package reactor

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/michaelpopov/bongo/session"
)

const bigGreetingSize = 3 * 1024 * 1024

var bigGreetingPolicy = session.Policy{Kind: session.Fixed, HeaderSize: 4, MaxBody: 64}

// bigGreetingSession answers any request with a multi-megabyte response built
// from the cyclic "A".."Z" pattern and deliberately reports
// StatusIncompleteSend instead of StatusOK, so the worker notifies
// NoteMoreData rather than releasing the session outright, and the reactor's
// write pump is what drains the arena onto the socket.
type bigGreetingSession struct {
	*session.Base
}

type bigGreetingFactory struct{}

func (bigGreetingFactory) MakeSession(conn session.ConnHandle) session.Core {
	s := &bigGreetingSession{Base: session.NewBase(conn, bigGreetingPolicy, 0, bigGreetingSize+4)}
	s.Bind(s)
	return s
}

func (s *bigGreetingSession) Init() error { return nil }

func (s *bigGreetingSession) ParseSize(header []byte) int {
	return int(binary.LittleEndian.Uint32(header))
}

func (s *bigGreetingSession) ParseMessage(msg session.InputMessage) (session.Request, bool) {
	return msg.Body, true
}

func (s *bigGreetingSession) Process(req session.Request) session.Status {
	body := make([]byte, bigGreetingSize)
	for i := range body {
		body[i] = byte('A' + i%26)
	}
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(body)))
	s.AppendResponse(header)
	s.AppendResponse(body)
	return session.StatusIncompleteSend
}

func (s *bigGreetingSession) Failed() bool { return false }

// TestIncompleteSendDrainsAcrossMultipleWriteCycles exercises end-to-end
// scenario 5 from the distilled spec: a handler returns IncompleteSend after
// filling the write arena with more data than a single socket write will
// accept, the worker notifies NoteMoreData instead of SessionReleased, and
// the reactor's write pump resumes on successive writable edges until the
// arena drains. The client shrinks its receive window and reads in small,
// paced chunks so the server is forced through several EAGAIN/resume cycles
// rather than a single unix.Write.
func TestIncompleteSendDrainsAcrossMultipleWriteCycles(t *testing.T) {
	addr, teardown := newTestServer(t, bigGreetingFactory{})
	defer teardown()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetReadBuffer(4096); err != nil {
			t.Fatalf("SetReadBuffer() error: %v", err)
		}
	}

	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, 0)
	if _, err := conn.Write(header); err != nil {
		t.Fatalf("write request header: %v", err)
	}

	want := bigGreetingSize + 4
	got := make([]byte, 0, want)
	buf := make([]byte, 2048)
	for len(got) < want {
		time.Sleep(time.Millisecond)
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("Read() error after %d/%d bytes: %v", len(got), want, err)
		}
		got = append(got, buf[:n]...)
	}

	gotSize := binary.LittleEndian.Uint32(got[:4])
	if gotSize != bigGreetingSize {
		t.Fatalf("response size header = %d, want %d", gotSize, bigGreetingSize)
	}
	for i, b := range got[4:] {
		if want := byte('A' + i%26); b != want {
			t.Fatalf("body[%d] = %q, want %q (byte conservation/ordering broken)", i, b, want)
		}
	}
}
