package channel

import (
	"context"
	"fmt"
	"regexp"

	"github.com/smnsjas/go-netshell"
)

// maxInBandAuthAttempts bounds the authenticateInBand loop by attempt count
// (SPEC_FULL.md section 4.5); TimeoutOps bounds each wait for the next prompt
// inside the loop, not the loop's total time.
const maxInBandAuthAttempts = 10

// InBandAuthPrompts is the pattern set for AuthenticateInBand, unifying
// channel_authenticate_ssh and channel_authenticate_telnet (spec.md section
// 4.5) into one state machine: they differ only in which of these prompts
// apply. Username is left nil for SSH (only Telnet asks for it in-band);
// Passphrase is left nil unless a private key requires one.
type InBandAuthPrompts struct {
	// Prompt is the idle shell prompt that signals authentication completed.
	// Nil means the Channel's currently active PromptPattern.
	Prompt *regexp.Regexp
	// Username matches a login prompt (Telnet only).
	Username *regexp.Regexp
	// Password matches a password prompt.
	Password *regexp.Regexp
	// Passphrase matches a private-key passphrase prompt.
	Passphrase *regexp.Regexp
	// Failure matches a rejection such as "Permission denied".
	Failure *regexp.Regexp
}

// InBandAuthCredentials carries the values AuthenticateInBand writes in
// response to each matched prompt.
type InBandAuthCredentials struct {
	Username   string
	Password   string
	Passphrase string
}

// AuthenticateInBand drives a bare-PTY login sequence to completion: it reads
// the buffer in a loop bounded by maxInBandAuthAttempts, answering whichever
// known prompt appears at the tail of the buffer, until the target idle
// prompt matches (success) or a failure pattern matches (*netshell.
// AuthenticationError). Used by transports that deliver a raw byte stream
// with no transport-level auth of its own (system ssh/telnet, raw telnet);
// cryptossh performs auth at the transport level and never calls this.
func (c *Channel) AuthenticateInBand(ctx context.Context, prompts InBandAuthPrompts, creds InBandAuthCredentials, host string) error {
	if err := c.lock.acquire(ctx); err != nil {
		return err
	}
	defer c.lock.release()

	target := prompts.Prompt
	if target == nil {
		target = c.prompt
	}

	type stage struct {
		pattern *regexp.Regexp
		name    string
	}
	stages := []stage{{target, "prompt"}}
	if prompts.Username != nil {
		stages = append(stages, stage{prompts.Username, "username"})
	}
	if prompts.Password != nil {
		stages = append(stages, stage{prompts.Password, "password"})
	}
	if prompts.Passphrase != nil {
		stages = append(stages, stage{prompts.Passphrase, "passphrase"})
	}
	if prompts.Failure != nil {
		stages = append(stages, stage{prompts.Failure, "failure"})
	}
	patterns := make([]*regexp.Regexp, len(stages))
	for i, st := range stages {
		patterns[i] = st.pattern
	}

	// answered names the last credential written, reported as the failed Stage.
	answered := "password"
	for attempt := 0; attempt < maxInBandAuthAttempts; attempt++ {
		raw, which, err := c.readUntilAnyLocked(ctx, patterns)
		if err != nil {
			return err
		}

		switch name := stages[which].name; name {
		case "username", "password", "passphrase":
			answered = name
		}
		switch stages[which].name {
		case "prompt":
			return nil
		case "failure":
			return &netshell.AuthenticationError{Host: host, Stage: answered, Matched: lastLine(raw)}
		case "username":
			if err := c.writeLocked(ctx, []byte(creds.Username), false); err != nil {
				return err
			}
			if err := c.writeLocked(ctx, []byte(c.cfg.ReturnChar), false); err != nil {
				return err
			}
		case "password":
			if err := c.writeLocked(ctx, []byte(creds.Password), true); err != nil {
				return err
			}
			if err := c.writeLocked(ctx, []byte(c.cfg.ReturnChar), false); err != nil {
				return err
			}
		case "passphrase":
			if err := c.writeLocked(ctx, []byte(creds.Passphrase), true); err != nil {
				return err
			}
			if err := c.writeLocked(ctx, []byte(c.cfg.ReturnChar), false); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w: in-band authentication did not reach %q within %d attempts",
		netshell.ErrChannelTimeout, target.String(), maxInBandAuthAttempts)
}
