// Package sessionlog implements the "Session log" from spec.md section 6: an
// optional append-only byte file capturing all inbound bytes and all non-redacted
// outbound bytes, for post-mortem replay/diagnosis. It is built on the teacher's
// size-based rotating file writer.
package sessionlog

import (
	"github.com/smnsjas/go-netshell/internal/log"
)

const redactedMask = "[REDACTED]\n"

// Writer is a rotating, redaction-aware transcript sink for one Session.
type Writer struct {
	rf *log.RotatingFile
}

// Open creates (or appends to) the transcript file at path, rotating once it
// exceeds maxSizeBytes and keeping maxBackups old generations.
func Open(path string, maxSizeBytes int64, maxBackups int) (*Writer, error) {
	rf, err := log.NewRotatingFile(path, maxSizeBytes, maxBackups)
	if err != nil {
		return nil, err
	}
	return &Writer{rf: rf}, nil
}

// Inbound records bytes read from the device. Inbound data is never redacted: a
// device does not echo secrets back by itself except via the outbound write the
// Channel already knows to redact.
func (w *Writer) Inbound(p []byte) error {
	if w == nil || len(p) == 0 {
		return nil
	}
	_, err := w.rf.Write(p)
	return err
}

// Outbound records bytes written to the device. When redacted is true (passwords,
// secondary-auth secrets) the actual payload is never written -- only a fixed mask
// -- so the transcript can never leak a credential even if an operator shares it.
func (w *Writer) Outbound(p []byte, redacted bool) error {
	if w == nil || len(p) == 0 {
		return nil
	}
	if redacted {
		_, err := w.rf.Write([]byte(redactedMask))
		return err
	}
	_, err := w.rf.Write(p)
	return err
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	return w.rf.Close()
}
