// Package telnet implements transport.Transport over a raw net.Conn, answering
// just enough Telnet IAC option negotiation (RFC 854) to get a usable text
// stream: it refuses every DO/WILL the far end offers, which is sufficient for
// the line-mode device CLIs this repo targets. Like system, it never performs
// authentication itself -- the device's username/password prompts arrive as
// plain bytes, so a caller must set driver.Config.InBandAuth to drive them via
// Channel.AuthenticateInBand (SPEC_FULL.md section 4.5).
package telnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/smnsjas/go-netshell"
	"github.com/smnsjas/go-netshell/transport"
)

const transportName = "telnet"

func init() {
	transport.Register(transportName, transport.ModeSync, New)
}

// Telnet IAC command bytes (RFC 854).
const (
	iac  = 255
	dont = 254
	do   = 253
	wont = 252
	will = 251
	sb   = 250
	se   = 240
)

// Transport speaks raw Telnet over a TCP connection.
type Transport struct {
	opts transport.Options
	conn net.Conn
}

// New constructs a telnet Transport.
func New(opts transport.Options) (transport.Transport, error) {
	return &Transport{opts: opts}, nil
}

// Open dials the device and performs the passive side of IAC negotiation: it
// reads nothing proactively, relying on negotiateIAC inside Read to strip and
// answer option bytes interleaved with real terminal data.
func (t *Transport) Open(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", t.opts.Host, t.opts.Port)
	dialer := net.Dialer{Timeout: t.opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", netshell.ErrTransportOpen, addr, err)
	}
	t.conn = conn
	return nil
}

// Close closes the underlying connection.
func (t *Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	if err := t.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Read reads one chunk from the connection, stripping and answering any IAC
// option negotiation found in it, and returns only the plain-text remainder.
func (t *Transport) Read(ctx context.Context) ([]byte, error) {
	type result struct {
		n   int
		err error
	}
	raw := make([]byte, 4096)
	done := make(chan result, 1)
	go func() {
		n, err := t.conn.Read(raw)
		done <- result{n: n, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", netshell.ErrConnection, r.err)
		}
		text, err := t.negotiateIAC(ctx, raw[:r.n])
		if err != nil {
			return nil, err
		}
		return text, nil
	}
}

// negotiateIAC strips IAC sequences from chunk, writing a refusal reply
// (WONT/DONT) for every DO/WILL offer, and returns the remaining plain bytes.
func (t *Transport) negotiateIAC(ctx context.Context, chunk []byte) ([]byte, error) {
	out := make([]byte, 0, len(chunk))
	var replies []byte

	i := 0
	for i < len(chunk) {
		if chunk[i] != iac {
			out = append(out, chunk[i])
			i++
			continue
		}
		if i+1 >= len(chunk) {
			break
		}
		cmd := chunk[i+1]
		switch cmd {
		case do, dont, will, wont:
			if i+2 >= len(chunk) {
				i = len(chunk)
				break
			}
			option := chunk[i+2]
			reply := dont
			if cmd == do || cmd == dont {
				reply = wont
			}
			replies = append(replies, iac, byte(reply), option)
			i += 3
		case sb:
			// Subnegotiation: skip to IAC SE.
			j := i + 2
			for j+1 < len(chunk) && !(chunk[j] == iac && chunk[j+1] == se) {
				j++
			}
			i = j + 2
		case iac:
			out = append(out, iac)
			i += 2
		default:
			i += 2
		}
	}

	if len(replies) > 0 {
		if err := t.Write(ctx, replies); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Write sends p to the connection.
func (t *Transport) Write(ctx context.Context, p []byte) error {
	done := make(chan error, 1)
	go func() {
		_, err := t.conn.Write(p)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %v", netshell.ErrConnection, err)
		}
		return nil
	}
}

// IsAlive performs a zero-byte deadline write to probe the connection.
func (t *Transport) IsAlive() bool {
	if t.conn == nil {
		return false
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(time.Second)); err != nil {
		return false
	}
	defer t.conn.SetWriteDeadline(time.Time{})
	_, err := t.conn.Write(nil)
	return err == nil
}

// SetTimeout is a no-op here: reads are bounded by ctx, not an internal deadline.
func (t *Transport) SetTimeout(d time.Duration) {}
