package session

import (
	"encoding/binary"
	"testing"
)

// fixedEchoSession is a minimal Session used only to exercise Base: a
// 4-byte little-endian length header, body echoed back verbatim.
type fixedEchoSession struct {
	*Base
	failed bool
}

func newFixedEchoSession(conn ConnHandle) *fixedEchoSession {
	policy := Policy{Kind: Fixed, HeaderSize: 4, MaxBody: 128}
	s := &fixedEchoSession{Base: NewBase(conn, policy, 0, 0)}
	s.Bind(s)
	return s
}

func (s *fixedEchoSession) Init() error { return nil }

func (s *fixedEchoSession) ParseSize(header []byte) int {
	return int(binary.LittleEndian.Uint32(header))
}

func (s *fixedEchoSession) ParseMessage(msg InputMessage) (Request, bool) {
	return msg.Body, true
}

func (s *fixedEchoSession) Process(req Request) Status {
	body := req.([]byte)
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(body)))
	s.AppendResponse(header)
	s.AppendResponse(body)
	return StatusOK
}

func (s *fixedEchoSession) Failed() bool { return s.failed }

func writeFrame(s *fixedEchoSession, body []byte) {
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(body)))
	dst := s.ReadArena().Reserve(4 + len(body))
	n := copy(dst, header)
	n += copy(dst[n:], body)
	s.ReadArena().AdvanceWrite(n)
}

func TestOnReadEnqueuesCompleteFrameOnly(t *testing.T) {
	s := newFixedEchoSession(1)

	// Partial header: nothing should be produced.
	dst := s.ReadArena().Reserve(2)
	s.ReadArena().AdvanceWrite(copy(dst, []byte{0x03, 0x00}))
	got, err := s.OnRead()
	if err != nil || got {
		t.Fatalf("OnRead on partial header = (%v, %v), want (false, nil)", got, err)
	}

	// Complete the header and supply the body.
	dst = s.ReadArena().Reserve(2 + 3)
	n := copy(dst, []byte{0x00, 0x00})
	n += copy(dst[n:], []byte("abc"))
	s.ReadArena().AdvanceWrite(n)

	got, err = s.OnRead()
	if err != nil || !got {
		t.Fatalf("OnRead after completing frame = (%v, %v), want (true, nil)", got, err)
	}
	if !s.HasRequest() {
		t.Fatalf("HasRequest() = false after a message was enqueued")
	}
}

func TestStateMachineTransitions(t *testing.T) {
	s := newFixedEchoSession(1)
	if s.State() != Released {
		t.Fatalf("initial state = %v, want Released", s.State())
	}

	writeFrame(s, []byte("hello"))
	got, err := s.OnRead()
	if err != nil || !got {
		t.Fatalf("OnRead = (%v, %v)", got, err)
	}

	// Reactor-side transition on enqueue.
	if s.State() == Released {
		s.SetState(InProcessing)
	}
	if s.State() != InProcessing {
		t.Fatalf("state after enqueue = %v, want InProcessing", s.State())
	}

	msg, ok := s.PopMessage()
	if !ok {
		t.Fatalf("PopMessage() returned nothing")
	}
	req, ok := s.ParseMessage(msg)
	if !ok {
		t.Fatalf("ParseMessage() failed")
	}
	if status := s.Process(req); status != StatusOK {
		t.Fatalf("Process() = %v, want Ok", status)
	}

	if s.HasRequest() {
		t.Fatalf("HasRequest() = true after draining the only message")
	}

	// Reactor-side transition back to Released on SessionReleased.
	s.SetState(Released)
	if s.State() != Released {
		t.Fatalf("state after release = %v, want Released", s.State())
	}

	want := []byte{5, 0, 0, 0, 'h', 'e', 'l', 'l', 'o'}
	if got := s.WriteArena().Data(); string(got) != string(want) {
		t.Fatalf("WriteArena().Data() = %v, want %v", got, want)
	}
}

func TestProtocolErrorOnOversizedBody(t *testing.T) {
	s := newFixedEchoSession(1)
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, 999)
	dst := s.ReadArena().Reserve(4)
	s.ReadArena().AdvanceWrite(copy(dst, header))

	_, err := s.OnRead()
	if err != ErrProtocol {
		t.Fatalf("OnRead() err = %v, want ErrProtocol", err)
	}
}
