// Package audit implements the structured security-event log described in
// SPEC_FULL.md section 2: a record of authentication, privilege-transition, and
// command-execution outcomes, independent of the per-command Result values and of
// the raw session transcript. It is adapted from the teacher's NIST SP 800-92
// security-event logger, generalized from a single PSRP command's lifecycle to the
// event families this domain needs (authentication, connection, privilege,
// command, session).
package audit

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Event categories.
const (
	EventAuthentication = "authentication"
	EventConnection     = "connection"
	EventPrivilege      = "privilege"
	EventCommand        = "command"
	EventSession        = "session"
)

// Outcomes.
const (
	OutcomeAttempt = "attempt"
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)

// Severities.
const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityError    = "ERROR"
	SeverityCritical = "CRITICAL"
)

// Event is one structured security log record.
type Event struct {
	Timestamp     string         `json:"timestamp"`
	EventType     string         `json:"event_type"`
	Subtype       string         `json:"subtype,omitempty"`
	Component     string         `json:"component"`
	CorrelationID string         `json:"correlation_id"`
	Target        string         `json:"target"`
	Outcome       string         `json:"outcome"`
	Severity      string         `json:"severity"`
	Details       map[string]any `json:"details,omitempty"`
}

// JSON renders the event for sinks that want a raw record rather than structured
// slog attributes (e.g. forwarding to an external SIEM).
func (e *Event) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Logger emits Events to a slog.Logger. A nil *Logger is valid and every method on
// it is a no-op, so audit logging can be disabled by simply not constructing one.
type Logger struct {
	logger *slog.Logger
}

// New returns a Logger that emits to base. If base is nil, the returned Logger
// discards every event.
func New(base *slog.Logger) *Logger {
	return &Logger{logger: base}
}

// Log records one security event.
func (l *Logger) Log(eventType, subtype, correlationID, target, outcome, severity string, details map[string]any) {
	if l == nil || l.logger == nil {
		return
	}
	e := &Event{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		EventType:     eventType,
		Subtype:       subtype,
		Component:     "go-netshell",
		CorrelationID: correlationID,
		Target:        target,
		Outcome:       outcome,
		Severity:      severity,
		Details:       details,
	}

	var logFunc func(msg string, args ...any)
	switch severity {
	case SeverityCritical, SeverityError:
		logFunc = l.logger.Error
	case SeverityWarning:
		logFunc = l.logger.Warn
	default:
		logFunc = l.logger.Info
	}

	logFunc("security_event",
		"event_type", e.EventType,
		"subtype", e.Subtype,
		"correlation_id", e.CorrelationID,
		"target", e.Target,
		"outcome", e.Outcome,
		"severity", e.Severity,
		"details", e.Details,
	)
}
