package netshell

import (
	"errors"
	"fmt"
)

// Sentinel errors matching section 7 of the design: channel-level, privilege-engine,
// and configuration failures all surface to the caller unchanged and are matchable
// with errors.Is. Command-semantic failures never use these -- they are reported via
// Result.Failed instead (see result.go).
var (
	// ErrTransportOpen is returned when the transport layer could not connect.
	ErrTransportOpen = errors.New("netshell: transport open failed")

	// ErrChannelTimeout is returned when a Channel operation exceeds its deadline.
	ErrChannelTimeout = errors.New("netshell: channel operation timed out")

	// ErrBufferExceeded is returned when the Channel's read buffer grows past its
	// bound without finding a prompt match. Wrapped as a ChannelTimeout-class failure.
	ErrBufferExceeded = errors.New("netshell: channel read buffer exceeded limit")

	// ErrUnknownPrivilegeLevel is returned when the current prompt matches no known
	// PrivilegeLevel pattern.
	ErrUnknownPrivilegeLevel = errors.New("netshell: prompt matched no known privilege level")

	// ErrCouldNotAcquirePrivLevel is returned when the escalate/de-escalate loop
	// exceeds its iteration bound.
	ErrCouldNotAcquirePrivLevel = errors.New("netshell: could not acquire privilege level")

	// ErrInvalidConfig is returned for an impossible configuration: a cyclic
	// privilege graph, a duplicate level name, an escalate edge missing its
	// auth prompt, an unknown transport name, or a sync/async transport mismatch.
	ErrInvalidConfig = errors.New("netshell: invalid configuration")

	// ErrConnection is returned when the transport dies mid-operation.
	ErrConnection = errors.New("netshell: connection lost")

	// ErrSessionClosed is returned by any operation attempted after Session.Close.
	ErrSessionClosed = errors.New("netshell: session is closed")
)

// AuthenticationError reports a failed in-band or transport-level authentication
// attempt (section 4.5, section 7 "AuthenticationFailed"). It is a distinct type
// rather than a sentinel so callers can recover which prompt triggered the failure
// without parsing strings.
type AuthenticationError struct {
	// Host is the device that rejected authentication.
	Host string
	// Stage identifies which credential exchange failed, e.g. "password",
	// "passphrase", "username", or "secondary" (enable/escalation password).
	Stage string
	// Matched is the failure pattern text that triggered this error, e.g.
	// "Permission denied".
	Matched string
}

func (e *AuthenticationError) Error() string {
	if e.Matched != "" {
		return fmt.Sprintf("netshell: authentication failed for %s at stage %q: %s", e.Host, e.Stage, e.Matched)
	}
	return fmt.Sprintf("netshell: authentication failed for %s at stage %q", e.Host, e.Stage)
}

// IsAuthenticationFailure reports whether err is (or wraps) an *AuthenticationError.
func IsAuthenticationFailure(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}
