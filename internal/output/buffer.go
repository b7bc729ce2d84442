// Package output accumulates the streamed output of an external process and
// lets callers wait for the accumulated text to match a pattern.
package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds a WaitForMatch call that was given no timeout.
const DefaultTimeout = 30 * time.Second

var (
	// ErrTimeout is the sentinel wrapped by TimeoutError.
	ErrTimeout = errors.New("timed out waiting for output")

	// ErrNoMatch is returned when the stream finished without ever matching.
	ErrNoMatch = errors.New("stream closed before output matched")
)

// TimeoutError is returned when a wait exceeded its bound.
type TimeoutError struct {
	Pattern string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for output matching %q", e.After, e.Pattern)
}

// Unwrap returns ErrTimeout for errors.Is.
func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// ReadyFunc decides from the full output so far and the newest line whether
// the stream is ready.
type ReadyFunc func(output, line string) bool

// Chunk is one appended piece of output.
type Chunk struct {
	Seq  uint64
	Data []byte
}

// Options configures a Buffer.
type Options struct {
	// Lines stores complete lines as chunks instead of raw writes.
	Lines bool
	// Limit bounds the retained bytes; oldest data is dropped first. Zero is unbounded.
	Limit int
	// Ready marks the stream ready once it returns true.
	// Without it the first chunk marks the stream ready.
	Ready ReadyFunc
}

// Buffer holds the output of one stream of one process.
// It is written by a single stream reader and may be read by any number of observers.
type Buffer struct {
	opts Options

	mu      sync.Mutex
	chunks  []Chunk
	size    int
	nextSeq uint64
	partial []byte
	closed  bool
	notify  chan struct{}

	readyOnce sync.Once
	ready     chan struct{}
}

// New creates an empty Buffer.
func New(opts Options) *Buffer {
	return &Buffer{
		opts:   opts,
		notify: make(chan struct{}),
		ready:  make(chan struct{}),
	}
}

// Write appends p. It never blocks on waiters.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, errors.New("write to closed output buffer")
	}

	// Each appended line is checked against the view that ends with it.
	type readyCheck struct{ view, line string }
	trackReady := !b.IsReady()
	var checks []readyCheck
	if b.opts.Lines {
		b.partial = append(b.partial, p...)
		for {
			idx := bytes.IndexByte(b.partial, '\n')
			if idx < 0 {
				break
			}
			line := bytes.TrimSuffix(b.partial[:idx], []byte{'\r'})
			b.appendLocked(line)
			b.partial = b.partial[idx+1:]
			if trackReady {
				checks = append(checks, readyCheck{view: b.stringLocked(), line: string(line)})
			}
		}
	} else {
		b.appendLocked(p)
		if trackReady {
			checks = append(checks, readyCheck{view: b.stringLocked(), line: lastLine(p)})
		}
	}

	b.broadcastLocked()
	b.mu.Unlock()

	for _, c := range checks {
		b.checkReady(c.view, c.line)
	}
	return len(p), nil
}

// Close flushes a pending partial line and marks the stream finished.
func (b *Buffer) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	var line string
	flushed := false
	if len(b.partial) > 0 {
		b.appendLocked(b.partial)
		line = string(b.partial)
		b.partial = nil
		flushed = true
	}
	b.closed = true
	view := b.stringLocked()
	b.broadcastLocked()
	b.mu.Unlock()

	if flushed {
		b.checkReady(view, line)
	}
}

// Closed reports whether the stream has finished.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// String returns the current contents. In line mode the lines are joined by newlines.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stringLocked()
}

// Lines returns the current contents split into lines.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.opts.Lines {
		lines := make([]string, len(b.chunks))
		for i, c := range b.chunks {
			lines[i] = string(c.Data)
		}
		return lines
	}
	s := b.stringLocked()
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// Chunks returns a copy of the retained chunks.
func (b *Buffer) Chunks() []Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Chunk, len(b.chunks))
	copy(out, b.chunks)
	return out
}

// Len returns the number of retained bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Ready is closed once the stream is considered ready.
func (b *Buffer) Ready() <-chan struct{} {
	return b.ready
}

// IsReady reports whether the stream is ready.
func (b *Buffer) IsReady() bool {
	select {
	case <-b.ready:
		return true
	default:
		return false
	}
}

// WaitForMatch blocks until the accumulated output matches re and returns it.
// In line mode a trailing line without a newline is part of the matched view,
// so prompts like "password: " are seen. A zero timeout means DefaultTimeout.
func (b *Buffer) WaitForMatch(ctx context.Context, re *regexp.Regexp, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		b.mu.Lock()
		view := b.matchViewLocked()
		closed := b.closed
		notify := b.notify
		b.mu.Unlock()

		if re.MatchString(view) {
			return view, nil
		}
		if closed {
			return view, fmt.Errorf("waiting for %q: %w", re.String(), ErrNoMatch)
		}

		select {
		case <-notify:
		case <-timer.C:
			return view, &TimeoutError{Pattern: re.String(), After: timeout}
		case <-ctx.Done():
			return view, fmt.Errorf("waiting for %q: %w", re.String(), ctx.Err())
		}
	}
}

func (b *Buffer) appendLocked(data []byte) {
	c := Chunk{Seq: b.nextSeq, Data: bytes.Clone(data)}
	b.nextSeq++
	b.chunks = append(b.chunks, c)
	b.size += len(c.Data)
	b.enforceLimitLocked()
}

// enforceLimitLocked drops the oldest data until the retained size fits the limit.
func (b *Buffer) enforceLimitLocked() {
	if b.opts.Limit <= 0 {
		return
	}
	for b.size > b.opts.Limit && len(b.chunks) > 1 {
		b.size -= len(b.chunks[0].Data)
		b.chunks = b.chunks[1:]
	}
	if b.size > b.opts.Limit {
		over := b.size - b.opts.Limit
		b.chunks[0].Data = b.chunks[0].Data[over:]
		b.size -= over
	}
}

func (b *Buffer) stringLocked() string {
	var sb strings.Builder
	sb.Grow(b.size + len(b.chunks))
	for i, c := range b.chunks {
		if b.opts.Lines && i > 0 {
			sb.WriteByte('\n')
		}
		sb.Write(c.Data)
	}
	return sb.String()
}

// matchViewLocked is stringLocked plus, in line mode, the pending partial line.
func (b *Buffer) matchViewLocked() string {
	view := b.stringLocked()
	if !b.opts.Lines || len(b.partial) == 0 {
		return view
	}
	if len(b.chunks) > 0 {
		view += "\n"
	}
	return view + string(bytes.TrimSuffix(b.partial, []byte{'\r'}))
}

func (b *Buffer) broadcastLocked() {
	close(b.notify)
	b.notify = make(chan struct{})
}

func (b *Buffer) checkReady(view, line string) {
	if b.IsReady() {
		return
	}
	if b.opts.Ready == nil || b.opts.Ready(view, line) {
		b.readyOnce.Do(func() { close(b.ready) })
	}
}

// lastLine returns the last non-empty line of p.
func lastLine(p []byte) string {
	s := strings.TrimRight(string(p), "\r\n")
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	return strings.TrimSuffix(s, "\r")
}
