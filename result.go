package netshell

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Result is the immutable record returned by every NetworkDriver operation. It is
// constructed at the start of an operation and finalized once, by RecordResult;
// nothing may mutate it afterward.
type Result struct {
	// Host is the device the operation ran against.
	Host string

	// CorrelationID threads this Result to matching audit-log entries. The
	// session transcript does not record it.
	CorrelationID string

	// ChannelInput is the input sent down the channel.
	ChannelInput string

	// Expectation, Response, and Finale are populated only for interactive
	// operations (SendInteractive): the prompt that was expected, the response
	// sent for it (both from the dialog's first event), and the terminal prompt
	// pattern used to know the dialog is done.
	Expectation string
	Response    string
	Finale      string

	// RawResult is the raw bytes read back from the device, including the echoed
	// input and the trailing prompt.
	RawResult []byte

	// Result is RawResult decoded as UTF-8 (invalid sequences replaced) with the
	// echoed input line removed and, if requested, the trailing prompt stripped.
	Result string

	// FailedWhenContains is the vendor-supplied list of substrings that mark this
	// operation as failed when found in Result.
	FailedWhenContains []string

	// Failed reports whether any FailedWhenContains substring appeared in Result.
	// It is true until RecordResult runs, matching the source behavior of "assume
	// failure until proven otherwise".
	Failed bool

	StartTime  time.Time
	FinishTime time.Time
	// ElapsedTime is FinishTime.Sub(StartTime); zero until RecordResult runs.
	ElapsedTime time.Duration
}

// NewResult opens a Result at the start of an operation. clock lets callers (and
// tests) control StartTime deterministically.
func NewResult(clock Clock, host, channelInput string, failedWhenContains []string) *Result {
	if clock == nil {
		clock = RealClock{}
	}
	return &Result{
		Host:               host,
		CorrelationID:      uuid.New().String(),
		ChannelInput:       channelInput,
		FailedWhenContains: failedWhenContains,
		Failed:             true,
		StartTime:          clock.Now(),
	}
}

// RecordResult finalizes the Result: it sets FinishTime/ElapsedTime, stores the
// decoded text, and classifies success/failure by scanning for FailedWhenContains
// substrings. It must be called exactly once and never again after.
func (r *Result) RecordResult(clock Clock, raw []byte, text string) {
	if clock == nil {
		clock = RealClock{}
	}
	r.FinishTime = clock.Now()
	r.ElapsedTime = r.FinishTime.Sub(r.StartTime)
	r.RawResult = raw
	r.Result = strings.ToValidUTF8(text, "�")
	r.Failed = r.matchesFailure(r.Result)
}

func (r *Result) matchesFailure(text string) bool {
	for _, needle := range r.FailedWhenContains {
		if needle == "" {
			continue
		}
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer for readable test failures and logs.
func (r *Result) String() string {
	status := "success"
	if r.Failed {
		status = "failed"
	}
	return "netshell.Result<" + r.Host + " " + status + ">"
}
