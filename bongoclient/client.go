// Package bongoclient provides small blocking helpers for talking to a
// bongo reactor server from tests and the demo CLI client, grounded on
// kcptun's client/dial.go (a thin net.Dial wrapper) generalized from UDP/KCP
// to plain TCP.
package bongoclient

import (
	"bufio"
	"encoding/binary"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Client is a blocking, single-connection TCP client. It exists purely to
// drive the demo protocols in tests and cmd/bongo-client; the reactor never
// uses it.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to addr with the given timeout.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.Wrap(err, "bongoclient: dial")
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// SetDeadline applies a read/write deadline to the underlying connection.
func (c *Client) SetDeadline(t time.Time) error { return c.conn.SetDeadline(t) }

// WriteFixed writes a 4-byte little-endian length header followed by body,
// the wire shape proto/fixedmirror and proto/reqresp use.
func (c *Client) WriteFixed(body []byte) error {
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(body)))
	if _, err := c.conn.Write(header); err != nil {
		return errors.Wrap(err, "bongoclient: write header")
	}
	if _, err := c.conn.Write(body); err != nil {
		return errors.Wrap(err, "bongoclient: write body")
	}
	return nil
}

// ReadFixed reads one 4-byte-length-prefixed frame and returns its body.
func (c *Client) ReadFixed() ([]byte, error) {
	header := make([]byte, 4)
	if _, err := readFull(c.r, header); err != nil {
		return nil, errors.Wrap(err, "bongoclient: read header")
	}
	body := make([]byte, binary.LittleEndian.Uint32(header))
	if _, err := readFull(c.r, body); err != nil {
		return nil, errors.Wrap(err, "bongoclient: read body")
	}
	return body, nil
}

// WriteLine writes s with a trailing newline, the wire shape proto/echo
// uses.
func (c *Client) WriteLine(s string) error {
	_, err := c.conn.Write([]byte(s + "\n"))
	if err != nil {
		return errors.Wrap(err, "bongoclient: write line")
	}
	return nil
}

// ReadLine reads up to and including the next newline, trimming it off the
// returned string.
func (c *Client) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", errors.Wrap(err, "bongoclient: read line")
	}
	return line[:len(line)-1], nil
}

// WriteDelimited writes a decimal length, "\r\n", then body: the wire shape
// proto/delimmirror uses.
func (c *Client) WriteDelimited(body []byte) error {
	header := []byte(strconv.Itoa(len(body)) + "\r\n")
	if _, err := c.conn.Write(header); err != nil {
		return errors.Wrap(err, "bongoclient: write header")
	}
	if _, err := c.conn.Write(body); err != nil {
		return errors.Wrap(err, "bongoclient: write body")
	}
	return nil
}

// ReadDelimited reads one decimal-length-prefixed frame and returns its
// body.
func (c *Client) ReadDelimited() ([]byte, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return nil, errors.Wrap(err, "bongoclient: read header")
	}
	n, err := strconv.Atoi(line[:len(line)-2]) // strip trailing "\r\n"
	if err != nil {
		return nil, errors.Wrap(err, "bongoclient: parse header")
	}
	body := make([]byte, n)
	if _, err := readFull(c.r, body); err != nil {
		return nil, errors.Wrap(err, "bongoclient: read body")
	}
	return body, nil
}

// WriteRaw writes b verbatim, for protocols like httpish whose framing
// doesn't fit the fixed/delimited helpers above.
func (c *Client) WriteRaw(b []byte) error {
	_, err := c.conn.Write(b)
	return errors.Wrap(err, "bongoclient: write raw")
}

// ReadUntil reads bytes until marker has been seen, returning everything up
// to and including it.
func (c *Client) ReadUntil(marker string) ([]byte, error) {
	var out []byte
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return out, errors.Wrap(err, "bongoclient: read until marker")
		}
		out = append(out, b)
		if len(out) >= len(marker) && string(out[len(out)-len(marker):]) == marker {
			return out, nil
		}
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
