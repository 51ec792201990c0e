package driver

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/smnsjas/go-netshell"
	"github.com/smnsjas/go-netshell/internal/audit"
)

// ReconnectPolicy configures lazy reconnection after a transport-level
// ConnectionError. Reconnect never runs proactively in the background: the
// Session only notices a dead transport because some public operation's
// Channel.Read/Write returned netshell.ErrConnection, and it is the *next*
// public operation call that re-runs Open (with backoff) before proceeding.
// The operation that originally observed the ConnectionError still returns its
// own error unchanged, with no Result for the failed line -- nothing that may have partially landed
// on the device is silently retried.
type ReconnectPolicy struct {
	Enabled bool

	// MaxAttempts bounds how many Open redials a single reconnect sequence will
	// make before giving up. 0 means unlimited.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultReconnectPolicy returns a disabled policy; callers opt in.
func DefaultReconnectPolicy() *ReconnectPolicy {
	return &ReconnectPolicy{
		Enabled:      false,
		MaxAttempts:  0,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// noteConnectionError flags the Session for a lazy reconnect on its next public
// operation when err is (or wraps) netshell.ErrConnection and reconnect is
// enabled. Called from every public operation's error path.
func (s *Session) noteConnectionError(err error) {
	if s.cfg.Reconnect == nil || !s.cfg.Reconnect.Enabled {
		return
	}
	if errors.Is(err, netshell.ErrConnection) {
		s.needsReconnect = true
	}
}

// reconnectIfNeeded re-dials the transport with exponential backoff and jitter
// when a prior operation tripped a ConnectionError. A no-op when the Session
// has nothing to recover from.
func (s *Session) reconnectIfNeeded(ctx context.Context) error {
	if !s.needsReconnect {
		return nil
	}
	policy := s.cfg.Reconnect

	s.audit.Log(audit.EventConnection, "reconnect", "", s.cfg.Host, audit.OutcomeAttempt, audit.SeverityWarning, nil)

	delay := policy.InitialDelay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for attempt := 1; policy.MaxAttempts == 0 || attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jitter(delay)):
			}
			delay *= 2
			if policy.MaxDelay > 0 && delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
		}

		_ = s.transport.Close()
		if err := s.Open(ctx); err != nil {
			lastErr = err
			s.logger.Warn("reconnect attempt failed", "host", s.cfg.Host, "attempt", attempt, "error", err)
			continue
		}

		s.needsReconnect = false
		s.audit.Log(audit.EventConnection, "reconnect", "", s.cfg.Host, audit.OutcomeSuccess, audit.SeverityInfo,
			map[string]any{"attempts": attempt})
		return nil
	}

	s.audit.Log(audit.EventConnection, "reconnect", "", s.cfg.Host, audit.OutcomeFailure, audit.SeverityCritical,
		map[string]any{"error": lastErr.Error()})
	return fmt.Errorf("%w: reconnect exhausted attempts: %v", netshell.ErrConnection, lastErr)
}

// jitter adds up to +/-10% random variance to d using crypto/rand, matching the
// teacher's reconnect backoff (client/reconnect.go's calculateBackoff), which
// avoids math/rand throughout the codebase.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	spreadN := int64(d) / 5
	if spreadN <= 0 {
		return d
	}
	n, err := rand.Int(rand.Reader, big.NewInt(spreadN+1))
	if err != nil {
		return d
	}
	return d - time.Duration(spreadN/2) + time.Duration(n.Int64())
}
