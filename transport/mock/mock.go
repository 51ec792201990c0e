// Package mock provides a scripted Transport for testing the Channel and driver
// packages without a real device, in the style of the teacher's func-field mock
// backends: every behavior is an overridable func field with a sensible default.
package mock

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// Step is one scripted exchange: when the accumulated write buffer contains
// OnWriteContains, Reply is queued to be returned by subsequent Reads (split into
// chunks of at most ChunkSize bytes, or as one chunk if ChunkSize is 0).
type Step struct {
	OnWriteContains string
	Reply           []byte
	ChunkSize       int

	consumed bool
}

// Transport is a scripted, in-memory Transport implementation. Tests either drive
// it directly with Script/QueueReply, or override the Func fields for
// fully custom behavior (e.g. to simulate a transport that never returns, for
// timeout tests).
type Transport struct {
	mu sync.Mutex

	// OpenFunc, CloseFunc, ReadFunc, WriteFunc, IsAliveFunc override the default
	// scripted behavior when set.
	OpenFunc    func(ctx context.Context) error
	CloseFunc   func() error
	ReadFunc    func(ctx context.Context) ([]byte, error)
	WriteFunc   func(ctx context.Context, p []byte) error
	IsAliveFunc func() bool

	steps   []Step
	written bytes.Buffer
	pending [][]byte

	alive   bool
	closed  bool
	timeout time.Duration

	// Writes records every byte slice ever passed to Write, for assertions.
	Writes [][]byte
}

// New returns a Transport that is alive and has no scripted steps queued.
func New() *Transport {
	return &Transport{alive: true}
}

// Script appends scripted steps evaluated in order on every Write.
func (t *Transport) Script(steps ...Step) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, steps...)
	return t
}

// QueueReply pushes raw bytes to be returned by the next Read call(s), independent
// of the step-matching logic in Write. Useful for seeding the initial prompt before
// any command has been sent.
func (t *Transport) QueueReply(p []byte) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, append([]byte(nil), p...))
	return t
}

func (t *Transport) Open(ctx context.Context) error {
	if t.OpenFunc != nil {
		return t.OpenFunc(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alive = true
	t.closed = false
	return nil
}

func (t *Transport) Close() error {
	if t.CloseFunc != nil {
		return t.CloseFunc()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alive = false
	t.closed = true
	return nil
}

func (t *Transport) Read(ctx context.Context) ([]byte, error) {
	if t.ReadFunc != nil {
		return t.ReadFunc(ctx)
	}
	t.mu.Lock()
	if len(t.pending) > 0 {
		chunk := t.pending[0]
		t.pending = t.pending[1:]
		t.mu.Unlock()
		return chunk, nil
	}
	t.mu.Unlock()

	// Nothing queued: behave like a live transport whose read simply timed out
	// with no new data, respecting context cancellation.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
		return []byte{}, nil
	}
}

func (t *Transport) Write(ctx context.Context, p []byte) error {
	if t.WriteFunc != nil {
		return t.WriteFunc(ctx, p)
	}
	t.mu.Lock()
	t.Writes = append(t.Writes, append([]byte(nil), p...))
	t.written.Write(p)
	matched := t.written.String()
	var queued [][]byte
	for i := range t.steps {
		step := t.steps[i]
		if step.OnWriteContains == "" || !bytes.Contains([]byte(matched), []byte(step.OnWriteContains)) {
			continue
		}
		if step.consumed {
			continue
		}
		t.steps[i].consumed = true
		queued = append(queued, chunk(step.Reply, step.ChunkSize)...)
	}
	t.pending = append(t.pending, queued...)
	t.mu.Unlock()
	return nil
}

func chunk(data []byte, size int) [][]byte {
	if size <= 0 || size >= len(data) {
		return [][]byte{data}
	}
	var out [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}

func (t *Transport) IsAlive() bool {
	if t.IsAliveFunc != nil {
		return t.IsAliveFunc()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alive && !t.closed
}

func (t *Transport) SetTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = d
}
