//go:build linux

package queue

import (
	"testing"

	"github.com/michaelpopov/bongo/session"
)

func TestNotifyPipeRoundTrip(t *testing.T) {
	p, err := NewNotifyPipe()
	if err != nil {
		t.Fatalf("NewNotifyPipe() error: %v", err)
	}
	defer p.Close()

	if err := p.Notify(NoteSessionReleased, session.ConnHandle(7)); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if err := p.Notify(NoteSessionFailed, session.ConnHandle(9)); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}

	notes, err := p.Drain()
	if err != nil {
		t.Fatalf("Drain() error: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("Drain() returned %d notes, want 2", len(notes))
	}
	if notes[0].Kind != NoteSessionReleased || notes[0].Conn != 7 {
		t.Fatalf("notes[0] = %+v, want {Released 7}", notes[0])
	}
	if notes[1].Kind != NoteSessionFailed || notes[1].Conn != 9 {
		t.Fatalf("notes[1] = %+v, want {Failed 9}", notes[1])
	}
}

func TestNotifyPipeDrainOnEmptyReturnsNoNotes(t *testing.T) {
	p, err := NewNotifyPipe()
	if err != nil {
		t.Fatalf("NewNotifyPipe() error: %v", err)
	}
	defer p.Close()

	notes, err := p.Drain()
	if err != nil {
		t.Fatalf("Drain() error: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("Drain() on empty pipe = %v, want none", notes)
	}
}
