// Package channel implements the byte-level read/write discipline described in
// SPEC_FULL.md section 4.1: it turns a raw Transport byte stream into transactional
// command/response I/O against a device whose only contract is "emits a prompt
// pattern when idle".
package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/smnsjas/go-netshell"
	"github.com/smnsjas/go-netshell/internal/sessionlog"
	"github.com/smnsjas/go-netshell/transport"
)

// defaultMaxBufferBytes bounds how large the read buffer may grow while waiting
// for a prompt match, so a misconfigured pattern or a chatty device can't grow
// memory unboundedly (SPEC_FULL.md section 4.1).
const defaultMaxBufferBytes = 1 << 20 // 1 MiB

// Config holds the comms_* options from spec.md section 6 that shape Channel
// behavior.
type Config struct {
	// PromptPattern is the initial active prompt pattern (comms_prompt_pattern).
	// It is mutated during privilege transitions via SetPromptPattern.
	PromptPattern *regexp.Regexp

	// ReturnChar is written by SendReturn to submit input (comms_return_char).
	ReturnChar string

	// ANSIStrip enables ANSI escape-sequence stripping on every read (comms_ansi).
	ANSIStrip bool

	// TimeoutOps bounds each wait inside a Channel operation: every read-until
	// loop (for an echo, a prompt, or an interactive step), every single Read
	// and every Transport write gets its own TimeoutOps deadline, so an
	// operation made of several waits (SendInput, SendInputsInteract,
	// AuthenticateInBand) can take a multiple of it in total. Zero or less
	// means no deadline.
	TimeoutOps time.Duration

	// MaxBufferBytes bounds the read buffer; zero means defaultMaxBufferBytes.
	MaxBufferBytes int

	// Transcript, if non-nil, receives every inbound chunk and every non-redacted
	// outbound write for later replay/diagnosis.
	Transcript *sessionlog.Writer

	// Clock is stored on the Channel; nil means netshell.RealClock. Deadlines
	// come from context.WithTimeout on the system clock and do not read it.
	Clock netshell.Clock
}

// InteractEvent is one leg of a scripted interactive dialog (spec.md's "Are you
// sure? [y/N]" style confirmation sequences).
type InteractEvent struct {
	// Input is the text to send once ExpectPrompt has matched.
	Input string
	// ExpectPrompt is the intermediate prompt to wait for before sending Input.
	ExpectPrompt *regexp.Regexp
	// Hidden marks Input as a secret: it is written with redacted=true.
	Hidden bool
}

// Channel owns one Transport's byte-level read/write discipline. It is not safe
// for concurrent use by multiple goroutines calling different operations
// simultaneously -- every public method serializes on an internal opLock instead,
// so concurrent callers queue rather than interleave (spec.md section 5).
type Channel struct {
	transport transport.Transport
	cfg       Config
	clock     netshell.Clock

	lock *opLock
	ansi ansiStripper

	// prompt is the currently active pattern; changed by SetPromptPattern during
	// privilege escalation/de-escalation.
	prompt *regexp.Regexp

	buf []byte
}

// New constructs a Channel over an already-open Transport.
func New(t transport.Transport, cfg Config) *Channel {
	if cfg.MaxBufferBytes <= 0 {
		cfg.MaxBufferBytes = defaultMaxBufferBytes
	}
	if cfg.ReturnChar == "" {
		cfg.ReturnChar = "\n"
	}
	clock := cfg.Clock
	if clock == nil {
		clock = netshell.RealClock{}
	}
	return &Channel{
		transport: t,
		cfg:       cfg,
		clock:     clock,
		lock:      newOpLock(),
		prompt:    cfg.PromptPattern,
	}
}

// PromptPattern returns the currently active prompt pattern.
func (c *Channel) PromptPattern() *regexp.Regexp {
	return c.prompt
}

// SetPromptPattern changes the active prompt pattern. Used by the privilege engine
// when it moves the Channel into a new level before sending the
// escalate/de-escalate command, so the subsequent read-until-prompt targets the
// level being entered rather than the one being left.
func (c *Channel) SetPromptPattern(pattern *regexp.Regexp) {
	c.prompt = pattern
}

func (c *Channel) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.TimeoutOps <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.TimeoutOps)
}

func asChannelTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", netshell.ErrChannelTimeout, err)
	}
	return err
}

// Write pushes data through the Transport. redacted=true suppresses the payload
// from the session transcript (it is replaced by a fixed mask); used for passwords
// and other secrets.
func (c *Channel) Write(ctx context.Context, data []byte, redacted bool) error {
	if err := c.lock.acquire(ctx); err != nil {
		return err
	}
	defer c.lock.release()
	return c.writeLocked(ctx, data, redacted)
}

func (c *Channel) writeLocked(ctx context.Context, data []byte, redacted bool) error {
	ctx, cancel := c.deadline(ctx)
	defer cancel()
	if err := c.transport.Write(ctx, data); err != nil {
		return asChannelTimeout(err)
	}
	if c.cfg.Transcript != nil {
		_ = c.cfg.Transcript.Outbound(data, redacted)
	}
	return nil
}

// SendReturn writes the configured return character(s).
func (c *Channel) SendReturn(ctx context.Context) error {
	if err := c.lock.acquire(ctx); err != nil {
		return err
	}
	defer c.lock.release()
	return c.writeLocked(ctx, []byte(c.cfg.ReturnChar), false)
}

// Read issues one Transport.Read, appends the result to the internal buffer
// (optionally ANSI-stripped), and returns the new chunk.
func (c *Channel) Read(ctx context.Context) ([]byte, error) {
	if err := c.lock.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.lock.release()
	return c.readLocked(ctx)
}

func (c *Channel) readLocked(ctx context.Context) ([]byte, error) {
	ctx, cancel := c.deadline(ctx)
	defer cancel()
	chunk, err := c.transport.Read(ctx)
	if err != nil {
		return nil, asChannelTimeout(err)
	}
	if c.cfg.ANSIStrip {
		chunk = c.ansi.Feed(chunk)
	}
	if len(chunk) > 0 {
		c.buf = append(c.buf, chunk...)
		if c.cfg.Transcript != nil {
			_ = c.cfg.Transcript.Inbound(chunk)
		}
		if len(c.buf) > c.cfg.MaxBufferBytes {
			return nil, fmt.Errorf("%w: %w (%d bytes)", netshell.ErrChannelTimeout, netshell.ErrBufferExceeded, len(c.buf))
		}
	}
	return chunk, nil
}

// ReadUntilInput blocks until the internal buffer contains expected, comparing by
// normalized whitespace and lowercase to tolerate terminal line-wrapping of the
// echoed command. It does not consume/reset the buffer: the caller is still
// waiting for the command's own output and trailing prompt.
func (c *Channel) ReadUntilInput(ctx context.Context, expected []byte) error {
	if err := c.lock.acquire(ctx); err != nil {
		return err
	}
	defer c.lock.release()

	target := normalizeForEchoMatch(string(expected))
	if target == "" {
		return nil
	}
	ctx, cancel := c.deadline(ctx)
	defer cancel()
	for {
		if strings.Contains(normalizeForEchoMatch(string(c.buf)), target) {
			return nil
		}
		if _, err := c.readLocked(ctx); err != nil {
			return err
		}
	}
}

// ReadUntilPrompt blocks until the tail of the buffer matches pattern (anchored
// per-line, i.e. pattern is matched in multiline mode). It returns everything read
// and resets the internal buffer to empty, per invariant 1: between operations the
// buffer is empty or ends with exactly one privilege-level prompt match.
func (c *Channel) ReadUntilPrompt(ctx context.Context, pattern *regexp.Regexp) ([]byte, error) {
	if err := c.lock.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.lock.release()
	out, _, err := c.readUntilAnyLocked(ctx, []*regexp.Regexp{pattern})
	return out, err
}

// ReadUntilExplicitPrompt is ReadUntilPrompt against a list of candidate patterns;
// it also reports which one matched, for interactive sequences that branch on the
// device's response.
func (c *Channel) ReadUntilExplicitPrompt(ctx context.Context, patterns []*regexp.Regexp) ([]byte, int, error) {
	if err := c.lock.acquire(ctx); err != nil {
		return nil, -1, err
	}
	defer c.lock.release()
	return c.readUntilAnyLocked(ctx, patterns)
}

func (c *Channel) readUntilAnyLocked(ctx context.Context, patterns []*regexp.Regexp) ([]byte, int, error) {
	ctx, cancel := c.deadline(ctx)
	defer cancel()
	for {
		if which, ok := tailMatch(c.buf, patterns); ok {
			out := c.buf
			c.buf = nil
			return out, which, nil
		}
		if _, err := c.readLocked(ctx); err != nil {
			return nil, -1, err
		}
	}
}

// tailMatch reports whether any pattern matches a suffix of buf ending at buf's
// last non-whitespace byte, and if so, which index matched (the caller -- the
// privilege engine -- is responsible for breaking ties between overlapping
// patterns by level, per spec.md section 4.2).
func tailMatch(buf []byte, patterns []*regexp.Regexp) (int, bool) {
	trimmed := bytes.TrimRight(buf, "\r\n \t")
	if len(trimmed) == 0 {
		return 0, false
	}
	for i, p := range patterns {
		if p == nil {
			continue
		}
		locs := p.FindAllIndex(trimmed, -1)
		if len(locs) > 0 && locs[len(locs)-1][1] == len(trimmed) {
			return i, true
		}
	}
	return 0, false
}

// GetPrompt writes the return char and reads until the active prompt pattern
// matches, returning the matched line.
func (c *Channel) GetPrompt(ctx context.Context) (string, error) {
	if err := c.lock.acquire(ctx); err != nil {
		return "", err
	}
	defer c.lock.release()

	if err := c.writeLocked(ctx, []byte(c.cfg.ReturnChar), false); err != nil {
		return "", err
	}
	raw, _, err := c.readUntilAnyLocked(ctx, []*regexp.Regexp{c.prompt})
	if err != nil {
		return "", err
	}
	return lastLine(raw), nil
}

func lastLine(raw []byte) string {
	lines := strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return strings.TrimSpace(lines[i])
		}
	}
	return ""
}

// SendInput is the canonical Channel transaction: write input, consume its echo,
// send the return char, and read until the active prompt -- unless eager is true,
// in which case it only writes, synchronizing with nothing (spec.md's eager mode:
// write-only, used to bulk-load content into a prompt-less sub-editor such as a
// banner or macro body). If input already ends with the configured ReturnChar (the
// convention every call site in this tree uses, e.g. "show version\n"), the return
// char is not sent a second time -- input's own trailing newline already submits
// the command to the device.
//
// raw is everything read back after input is written (echo, output, prompt);
// bytes an earlier Read left in the buffer are discarded first. processed has
// the leading echoed command line removed and, if stripPrompt is true, the
// trailing prompt line removed, with line endings normalized to "\n".
func (c *Channel) SendInput(ctx context.Context, input string, stripPrompt bool, eager bool) (raw, processed []byte, err error) {
	if err := c.lock.acquire(ctx); err != nil {
		return nil, nil, err
	}
	defer c.lock.release()
	c.buf = nil

	if err := c.writeLocked(ctx, []byte(input), false); err != nil {
		return nil, nil, err
	}

	if eager {
		return nil, nil, nil
	}

	if err := c.readUntilInputLocked(ctx, []byte(input)); err != nil {
		return nil, nil, err
	}
	if !strings.HasSuffix(input, c.cfg.ReturnChar) {
		if err := c.writeLocked(ctx, []byte(c.cfg.ReturnChar), false); err != nil {
			return nil, nil, err
		}
	}
	raw, _, err = c.readUntilAnyLocked(ctx, []*regexp.Regexp{c.prompt})
	if err != nil {
		return nil, nil, err
	}
	processed = stripEchoAndPrompt(raw, input, c.prompt, stripPrompt)
	return raw, processed, nil
}

func (c *Channel) readUntilInputLocked(ctx context.Context, expected []byte) error {
	target := normalizeForEchoMatch(string(expected))
	if target == "" {
		return nil
	}
	ctx, cancel := c.deadline(ctx)
	defer cancel()
	for {
		if strings.Contains(normalizeForEchoMatch(string(c.buf)), target) {
			return nil
		}
		if _, err := c.readLocked(ctx); err != nil {
			return err
		}
	}
}

// stripEchoAndPrompt normalizes line endings to "\n", drops the first line if it is
// the echoed command, and (if stripPrompt) drops the trailing prompt line.
func stripEchoAndPrompt(raw []byte, input string, prompt *regexp.Regexp, stripPrompt bool) []byte {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	lines := strings.Split(text, "\n")

	if len(lines) > 0 && normalizeForEchoMatch(lines[0]) == normalizeForEchoMatch(input) {
		lines = lines[1:]
	}

	if stripPrompt && prompt != nil && len(lines) > 0 {
		last := strings.TrimSpace(lines[len(lines)-1])
		if prompt.MatchString(last) {
			lines = lines[:len(lines)-1]
		}
	}

	return []byte(strings.TrimRight(strings.Join(lines, "\n"), "\n"))
}

// SendInputsInteract drives a scripted dialog: for each event, read until its
// expected prompt, write its input (redacted if Hidden), send return; after the
// last event, read until finale (the normal resting prompt, by convention, though
// callers may pass any pattern).
func (c *Channel) SendInputsInteract(ctx context.Context, events []InteractEvent, finale *regexp.Regexp) (raw, processed []byte, err error) {
	if err := c.lock.acquire(ctx); err != nil {
		return nil, nil, err
	}
	defer c.lock.release()

	var total []byte
	for _, ev := range events {
		chunk, _, err := c.readUntilAnyLocked(ctx, []*regexp.Regexp{ev.ExpectPrompt})
		if err != nil {
			return nil, nil, err
		}
		total = append(total, chunk...)

		if err := c.writeLocked(ctx, []byte(ev.Input), ev.Hidden); err != nil {
			return nil, nil, err
		}
		if !strings.HasSuffix(ev.Input, c.cfg.ReturnChar) {
			if err := c.writeLocked(ctx, []byte(c.cfg.ReturnChar), false); err != nil {
				return nil, nil, err
			}
		}
	}

	finalPattern := finale
	if finalPattern == nil {
		finalPattern = c.prompt
	}
	chunk, _, err := c.readUntilAnyLocked(ctx, []*regexp.Regexp{finalPattern})
	if err != nil {
		return nil, nil, err
	}
	total = append(total, chunk...)

	processed = []byte(strings.ReplaceAll(string(total), "\r\n", "\n"))
	return total, processed, nil
}
