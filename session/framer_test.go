package session

import (
	"encoding/binary"
	"reflect"
	"strconv"
	"testing"

	"github.com/michaelpopov/bongo/arena"
)

func fixedLen(header []byte) int {
	return int(binary.LittleEndian.Uint32(header))
}

func TestFrameFixedMultipleMessages(t *testing.T) {
	a := arena.New(16)
	policy := Policy{Kind: Fixed, HeaderSize: 4, MaxBody: 64}

	for _, body := range []string{"one", "two", "three"} {
		header := make([]byte, 4)
		binary.LittleEndian.PutUint32(header, uint32(len(body)))
		dst := a.Reserve(len(header) + len(body))
		n := copy(dst, header)
		n += copy(dst[n:], body)
		a.AdvanceWrite(n)
	}

	msgs, err := Frame(a, policy, fixedLen)
	if err != nil {
		t.Fatalf("Frame() error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("Frame() produced %d messages, want 3", len(msgs))
	}
	for i, want := range []string{"one", "two", "three"} {
		if string(msgs[i].Body) != want {
			t.Fatalf("msgs[%d].Body = %q, want %q", i, msgs[i].Body, want)
		}
	}
	if a.Len() != 0 {
		t.Fatalf("arena not fully consumed: %d bytes left", a.Len())
	}
}

func TestFrameFixedOversizedBodyIsProtocolError(t *testing.T) {
	a := arena.New(16)
	policy := Policy{Kind: Fixed, HeaderSize: 4, MaxBody: 10}
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, 11)
	dst := a.Reserve(4)
	a.AdvanceWrite(copy(dst, header))

	_, err := Frame(a, policy, fixedLen)
	if err != ErrProtocol {
		t.Fatalf("Frame() err = %v, want ErrProtocol", err)
	}
}

func decimalLen(header []byte) int {
	// header includes the trailing CRLF marker; strip it before parsing.
	n, err := strconv.Atoi(string(header[:len(header)-2]))
	if err != nil {
		return -1
	}
	return n
}

func TestFrameDelimited(t *testing.T) {
	a := arena.New(16)
	policy := Policy{Kind: Delimited, Marker: []byte("\r\n"), MaxHeader: 32, MaxBody: 64}

	body := "hello world"
	msg := strconv.Itoa(len(body)) + "\r\n" + body
	dst := a.Reserve(len(msg))
	a.AdvanceWrite(copy(dst, msg))

	msgs, err := Frame(a, policy, decimalLen)
	if err != nil {
		t.Fatalf("Frame() error: %v", err)
	}
	if len(msgs) != 1 || string(msgs[0].Body) != body {
		t.Fatalf("Frame() = %+v, want one message with body %q", msgs, body)
	}
}

func TestFrameDelimitedUnterminatedPastMaxHeaderIsProtocolError(t *testing.T) {
	a := arena.New(64)
	policy := Policy{Kind: Delimited, Marker: []byte("\r\n"), MaxHeader: 4, MaxBody: 64}
	dst := a.Reserve(10)
	a.AdvanceWrite(copy(dst, "1234567890"))

	_, err := Frame(a, policy, decimalLen)
	if err != ErrProtocol {
		t.Fatalf("Frame() err = %v, want ErrProtocol", err)
	}
}

func TestFrameStopsOnPartialBody(t *testing.T) {
	a := arena.New(16)
	policy := Policy{Kind: Fixed, HeaderSize: 4, MaxBody: 64}
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, 5)
	dst := a.Reserve(4 + 2)
	n := copy(dst, header)
	n += copy(dst[n:], "ab")
	a.AdvanceWrite(n)

	msgs, err := Frame(a, policy, fixedLen)
	if err != nil {
		t.Fatalf("Frame() error: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("Frame() = %v, want no messages yet", msgs)
	}
	if !reflect.DeepEqual(a.Data(), append(append([]byte(nil), header...), "ab"...)) {
		t.Fatalf("Frame() must not consume a partial message")
	}
}
