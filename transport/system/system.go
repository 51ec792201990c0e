// Package system implements transport.Transport by spawning the host's own
// ssh(1) or telnet(1) binary under a pseudo-terminal and driving its stdio.
// Unlike cryptossh, this transport never handles the password (the username,
// if set, only goes on the ssh command line): the
// spawned binary's own login prompt arrives as plain bytes on the PTY, so a
// caller must set driver.Config.InBandAuth to drive it via
// Channel.AuthenticateInBand (SPEC_FULL.md section 4.5) before the session is
// usable. This transport is useful when host-configured SSH options (known
// hosts, ProxyJump, agent forwarding) should apply unmodified (SPEC_FULL.md
// section 1).
package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/smnsjas/go-netshell"
	"github.com/smnsjas/go-netshell/transport"
)

const transportName = "system"

func init() {
	transport.Register(transportName, transport.ModeSync, New)
}

// Binary selects which system client New spawns.
type Binary string

const (
	BinarySSH     Binary = "ssh"
	BinaryTelnet  Binary = "telnet"
)

// Transport drives a spawned ssh/telnet client process through a PTY.
type Transport struct {
	opts   transport.Options
	binary Binary

	cmd  *exec.Cmd
	ptmx *os.File
}

// New constructs a system Transport that spawns ssh(1). Use NewWithBinary to
// spawn telnet(1) instead.
func New(opts transport.Options) (transport.Transport, error) {
	return NewWithBinary(opts, BinarySSH)
}

// NewWithBinary constructs a system Transport for the given client binary.
func NewWithBinary(opts transport.Options, binary Binary) (transport.Transport, error) {
	return &Transport{opts: opts, binary: binary}, nil
}

func (t *Transport) buildCommand() (*exec.Cmd, error) {
	switch t.binary {
	case BinarySSH:
		args := []string{"-tt"}
		if !t.opts.StrictHostKeyCheck {
			args = append(args, "-o", "StrictHostKeyChecking=no", "-o", "UserKnownHostsFile=/dev/null")
		}
		if t.opts.Port != 0 {
			args = append(args, "-p", fmt.Sprintf("%d", t.opts.Port))
		}
		target := t.opts.Host
		if t.opts.Username != "" {
			target = t.opts.Username + "@" + t.opts.Host
		}
		args = append(args, target)
		return exec.Command("ssh", args...), nil
	case BinaryTelnet:
		port := "23"
		if t.opts.Port != 0 {
			port = fmt.Sprintf("%d", t.opts.Port)
		}
		return exec.Command("telnet", t.opts.Host, port), nil
	default:
		return nil, fmt.Errorf("%w: unknown system binary %q", netshell.ErrInvalidConfig, t.binary)
	}
}

// Open spawns the client binary attached to a PTY.
func (t *Transport) Open(ctx context.Context) error {
	cmd, err := t.buildCommand()
	if err != nil {
		return err
	}
	cmd.Env = filteredEnv("LINES", "COLUMNS")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 50, Cols: 200})
	if err != nil {
		return fmt.Errorf("%w: spawn %s: %v", netshell.ErrTransportOpen, t.binary, err)
	}
	t.cmd = cmd
	t.ptmx = ptmx
	return nil
}

// Close terminates the spawned process and releases the PTY.
func (t *Transport) Close() error {
	if t.ptmx != nil {
		_ = t.ptmx.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
		_, _ = t.cmd.Process.Wait()
	}
	return nil
}

// Read reads one chunk from the PTY master, respecting ctx cancellation.
func (t *Transport) Read(ctx context.Context) ([]byte, error) {
	type result struct {
		n   int
		err error
	}
	buf := make([]byte, 4096)
	done := make(chan result, 1)
	go func() {
		n, err := t.ptmx.Read(buf)
		done <- result{n: n, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			// EIO is the PTY's normal end-of-session signal once the slave closes.
			if errors.Is(r.err, syscall.EIO) {
				return buf[:r.n], nil
			}
			return nil, fmt.Errorf("%w: %v", netshell.ErrConnection, r.err)
		}
		return buf[:r.n], nil
	}
}

// Write sends p to the PTY master.
func (t *Transport) Write(ctx context.Context, p []byte) error {
	done := make(chan error, 1)
	go func() {
		_, err := t.ptmx.Write(p)
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

// IsAlive reports whether the spawned process is still running.
func (t *Transport) IsAlive() bool {
	if t.cmd == nil || t.cmd.Process == nil {
		return false
	}
	return t.cmd.ProcessState == nil
}

// SetTimeout is a no-op here: reads are bounded by ctx, not an internal deadline.
func (t *Transport) SetTimeout(d time.Duration) {}

func filteredEnv(exclude ...string) []string {
	excl := make(map[string]bool, len(exclude))
	for _, k := range exclude {
		excl[k] = true
	}
	var out []string
	for _, e := range os.Environ() {
		key := e
		for i := 0; i < len(e); i++ {
			if e[i] == '=' {
				key = e[:i]
				break
			}
		}
		if !excl[key] {
			out = append(out, e)
		}
	}
	return out
}

