// Package transport defines the byte-pipe contract the Channel engine drives, plus
// a name-keyed registry of concrete implementations. The core (channel, privilege,
// driver) never imports a concrete transport package directly -- only this
// interface and the registry -- so SSH, Telnet, and test-mock backends are
// interchangeable.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smnsjas/go-netshell"
)

// Transport is the external collaborator the core requires: something that opens a
// pseudo-terminal-like byte stream to a device and yields raw bytes. It implements
// no device semantics of its own.
type Transport interface {
	// Open establishes the underlying connection. Returns netshell.ErrTransportOpen
	// (wrapped) on failure.
	Open(ctx context.Context) error

	// Close tears down the connection. Idempotent: calling Close on an
	// already-closed Transport is a no-op returning nil.
	Close() error

	// Read blocks until at least one byte is available, the per-read timeout set
	// by SetTimeout elapses, or ctx is done. It never returns a nil slice; it may
	// return an empty, non-nil slice if nothing arrived before a benign timeout
	// internal to the implementation (callers retry).
	Read(ctx context.Context) ([]byte, error)

	// Write sends p to the device.
	Write(ctx context.Context, p []byte) error

	// IsAlive reports whether the underlying connection is still usable. It is a
	// best-effort liveness check, not a guarantee the next Read/Write will succeed.
	IsAlive() bool

	// SetTimeout changes the per-read timeout used internally by Read.
	SetTimeout(d time.Duration)
}

// Mode distinguishes synchronous (blocking-thread) transports from any future
// cooperative/async transport, so the registry can reject a mismatched pairing
// explicitly instead of letting it fail confusingly deep in the Channel loop.
type Mode int

const (
	// ModeSync is a blocking transport: Read blocks the calling goroutine until
	// data, timeout, or context cancellation. Every transport this repo ships is
	// ModeSync.
	ModeSync Mode = iota
	// ModeAsync is reserved for a future cooperative-runtime transport.
	ModeAsync
)

// Options carries the configuration options from section 6 of the design that are
// forwarded to a Transport factory. Extra carries transport_options: plugin-specific
// pass-through the core never interprets.
type Options struct {
	Host string
	Port int

	Username             string
	Password             string
	PrivateKey           []byte
	PrivateKeyPassphrase []byte
	StrictHostKeyCheck   bool

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// RequiredMode is what the driver expects (always ModeSync today); New
	// rejects a factory registered with a different Mode.
	RequiredMode Mode

	Extra map[string]string
}

// Factory constructs a Transport from Options. Registered implementations store
// their own Mode alongside the factory (see Register).
type Factory func(Options) (Transport, error)

type registration struct {
	factory Factory
	mode    Mode
}

var (
	registryMu sync.RWMutex
	registry   = map[string]registration{}
)

// Register adds a named Transport factory to the registry. Transport packages call
// this from an init() function; it panics on a duplicate name, the same way
// database/sql.Register does, since that indicates a programming error (two
// transport packages imported under the same name) rather than a runtime
// condition callers should handle.
func Register(name string, mode Mode, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("transport: Register called twice for name %q", name))
	}
	registry[name] = registration{factory: factory, mode: mode}
}

// New constructs the named Transport. It returns netshell.ErrInvalidConfig wrapped
// with detail when the name is unknown or when opts.RequiredMode does not match
// the mode the factory was registered under.
func New(name string, opts Options) (Transport, error) {
	registryMu.RLock()
	reg, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown transport %q", netshell.ErrInvalidConfig, name)
	}
	if opts.RequiredMode != reg.mode {
		return nil, fmt.Errorf("%w: transport %q is mode %v, requested %v",
			netshell.ErrInvalidConfig, name, reg.mode, opts.RequiredMode)
	}
	return reg.factory(opts)
}

// Registered returns the names of all currently registered transports, mainly for
// diagnostics and tests.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
