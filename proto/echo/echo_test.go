package echo

import (
	"testing"

	"github.com/michaelpopov/bongo/session"
)

func TestEchoesLineWithNewline(t *testing.T) {
	var f Factory
	core := f.MakeSession(1)

	line := "hello\n"
	dst := core.ReadArena().Reserve(len(line))
	core.ReadArena().AdvanceWrite(copy(dst, line))

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

	if got := string(core.WriteArena().Data()); got != line {
		t.Fatalf("WriteArena().Data() = %q, want %q", got, line)
	}
}

func TestPartialLineProducesNoMessage(t *testing.T) {
	var f Factory
	core := f.MakeSession(1)

	dst := core.ReadArena().Reserve(5)
	core.ReadArena().AdvanceWrite(copy(dst, "hello"))

	got, err := core.OnRead()
	if err != nil || got {
		t.Fatalf("OnRead() = (%v, %v), want (false, nil)", got, err)
	}
}
