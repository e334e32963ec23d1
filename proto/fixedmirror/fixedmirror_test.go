package fixedmirror

import (
	"encoding/binary"
	"testing"

	"github.com/michaelpopov/bongo/session"
)

func TestMirrorRoundTrip(t *testing.T) {
	var f Factory
	core := f.MakeSession(1)
	if err := core.Init(); err != nil {
		t.Fatalf("Init() error: %v", err)
	}

	body := []byte("hello world")
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(body)))
	dst := core.ReadArena().Reserve(len(header) + len(body))
	n := copy(dst, header)
	n += copy(dst[n:], body)
	core.ReadArena().AdvanceWrite(n)

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

	want := append(append([]byte(nil), header...), body...)
	if got := core.WriteArena().Data(); string(got) != string(want) {
		t.Fatalf("WriteArena().Data() = %v, want %v", got, want)
	}
}

func TestOversizedBodyIsProtocolError(t *testing.T) {
	var f Factory
	core := f.MakeSession(1)
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, MaxBodySize+1)
	dst := core.ReadArena().Reserve(4)
	core.ReadArena().AdvanceWrite(copy(dst, header))

	if _, err := core.OnRead(); err != session.ErrProtocol {
		t.Fatalf("OnRead() err = %v, want ErrProtocol", err)
	}
}
