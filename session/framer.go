package session

import (
	"bytes"
	"errors"

	"github.com/michaelpopov/bongo/arena"
)

// ErrProtocol is returned by Frame when the byte stream violates the active
// framing policy (oversized body, unterminated delimited header past the
// configured bound). It always triggers connection teardown by the reactor.
var ErrProtocol = errors.New("bongo/session: protocol error")

// Kind identifies which framing policy a Session uses, mirroring the
// FramerPolicy tagged union from the spec (fixed-size-header vs.
// delimiter-terminated-header), generalized from bongo's
// NetSession::processReadBufferData, which only ever implemented Fixed.
type Kind int

const (
	// Fixed frames have a constant-size header whose bytes encode the body
	// length (e.g. 4-byte little-endian uint32, as in proto/fixedmirror).
	Fixed Kind = iota
	// Delimited frames search for a marker (e.g. CRLF) that terminates the
	// header; the header's bytes, including the marker, encode the body
	// length via ParseSize.
	Delimited
)

// Policy configures a Framer. ParseSize is supplied by the concrete protocol
// and must return a non-negative integer bounded by MaxBody; the core
// never interprets header bytes itself.
type Policy struct {
	Kind       Kind
	HeaderSize int // used when Kind == Fixed
	Marker     []byte
	MaxHeader  int // used when Kind == Delimited: cap on search distance
	MaxBody    int
}

// InputMessage is an immutable (header, body) pair produced by Frame. It is
// owned by the session's input queue until a worker pops it via PopMessage.
type InputMessage struct {
	Header []byte
	Body   []byte
}

// Frame repeatedly extracts complete messages from the front of arena's
// unconsumed data according to policy, consuming each message's bytes as it
// is emitted. It stops when the buffered bytes cannot yet form a complete
// message, and returns ErrProtocol if the wire violates the policy's bounds.
//
// This is the Go generalization of bongo's NetSession::processReadBufferData
// (original_source/src/net/session_base.cpp), split into a pure function so
// it has no dependency on session ownership or the reactor.
func Frame(a *arena.Arena, policy Policy, parseSize func(header []byte) int) ([]InputMessage, error) {
	var out []InputMessage

	for {
		data := a.Data()

		var headerSize int
		switch policy.Kind {
		case Fixed:
			if len(data) < policy.HeaderSize {
				return out, nil
			}
			headerSize = policy.HeaderSize

		case Delimited:
			idx := bytes.Index(data, policy.Marker)
			if idx < 0 {
				if policy.MaxHeader > 0 && len(data) > policy.MaxHeader {
					return out, ErrProtocol
				}
				return out, nil
			}
			headerSize = idx + len(policy.Marker)

		default:
			return out, ErrProtocol
		}

		bodySize := parseSize(data[:headerSize])
		if bodySize < 0 || (policy.MaxBody > 0 && bodySize > policy.MaxBody) {
			return out, ErrProtocol
		}

		total := headerSize + bodySize
		if len(data) < total {
			return out, nil
		}

		header := append([]byte(nil), data[:headerSize]...)
		body := append([]byte(nil), data[headerSize:total]...)
		out = append(out, InputMessage{Header: header, Body: body})
		a.Consume(total)
	}
}
