package delimmirror

import (
	"strconv"
	"testing"

	"github.com/michaelpopov/bongo/session"
)

func TestMirrorRoundTrip(t *testing.T) {
	var f Factory
	core := f.MakeSession(1)

	body := "hello world"
	wire := strconv.Itoa(len(body)) + "\r\n" + body
	dst := core.ReadArena().Reserve(len(wire))
	core.ReadArena().AdvanceWrite(copy(dst, wire))

	got, err := core.OnRead()
	if err != nil || !got {
		t.Fatalf("OnRead() = (%v, %v), want (true, nil)", got, err)
	}

	msg, ok := core.PopMessage()
	if !ok {
		t.Fatal("PopMessage() returned nothing")
	}
	req, ok := core.ParseMessage(msg)
	if !ok {
		t.Fatal("ParseMessage() failed")
	}
	if status := core.Process(req); status != session.StatusOK {
		t.Fatalf("Process() = %v, want StatusOK", status)
	}

	if got := string(core.WriteArena().Data()); got != wire {
		t.Fatalf("WriteArena().Data() = %q, want %q", got, wire)
	}
}

func TestUnterminatedHeaderPastBoundIsProtocolError(t *testing.T) {
	var f Factory
	core := f.MakeSession(1)

	junk := make([]byte, MaxHeaderSearch+1)
	for i := range junk {
		junk[i] = 'x'
	}
	dst := core.ReadArena().Reserve(len(junk))
	core.ReadArena().AdvanceWrite(copy(dst, junk))

	if _, err := core.OnRead(); err != session.ErrProtocol {
		t.Fatalf("OnRead() err = %v, want ErrProtocol", err)
	}
}
