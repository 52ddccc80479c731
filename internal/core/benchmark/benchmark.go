// Package benchmark measures wall-clock time of pipeline stages.
package benchmark

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

const DefaultDescription = "Done"

// Timer records a series of laps.
type Timer struct {
	mu    sync.Mutex
	start time.Time
	laps  []time.Duration
}

// NewTimer returns a running timer.
func NewTimer() *Timer {
	t := &Timer{}
	t.Start()
	return t
}

func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start = time.Now()
}

// Stop records the time since the last Start as a lap and returns it.
func (t *Timer) Stop() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	lap := time.Since(t.start)
	t.laps = append(t.laps, lap)
	return lap
}

func (t *Timer) Laps() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.laps...)
}

func (t *Timer) Sum() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total time.Duration
	for _, lap := range t.laps {
		total += lap
	}
	return total
}

func (t *Timer) Avg() time.Duration {
	laps := t.Laps()
	if len(laps) == 0 {
		return 0
	}
	return t.Sum() / time.Duration(len(laps))
}

// CumSum returns the running total after each lap.
func (t *Timer) CumSum() []time.Duration {
	laps := t.Laps()
	out := make([]time.Duration, len(laps))
	var total time.Duration
	for i, lap := range laps {
		total += lap
		out[i] = total
	}
	return out
}

// Recorder receives every finished benchmark.
type Recorder interface {
	Record(description string, elapsed time.Duration) error
}

type Option func(*Benchmark)

// WithOutput sets where the result line is written. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(b *Benchmark) { b.out = w }
}

func WithRecorder(r Recorder) Option {
	return func(b *Benchmark) { b.recorder = r }
}

// Benchmark times a single scoped block.
type Benchmark struct {
	description string
	timer       *Timer
	out         io.Writer
	recorder    Recorder
	stopped     bool
	elapsed     time.Duration
}

// Start begins timing. An empty description is reported as "Done".
func Start(description string, opts ...Option) *Benchmark {
	if description == "" {
		description = DefaultDescription
	}
	b := &Benchmark{description: description, out: os.Stdout}
	for _, opt := range opts {
		opt(b)
	}
	b.timer = NewTimer()
	return b
}

func (b *Benchmark) Description() string {
	return b.description
}

// Stop reports the elapsed time. Calling it again returns the first result
// without reporting twice.
func (b *Benchmark) Stop() time.Duration {
	if b.stopped {
		return b.elapsed
	}
	b.stopped = true
	b.elapsed = b.timer.Stop()

	if b.out != nil {
		fmt.Fprintln(b.out, Format(b.description, b.elapsed)) //nolint:errcheck
	}
	if b.recorder != nil {
		if err := b.recorder.Record(b.description, b.elapsed); err != nil {
			slog.Error("error recording benchmark", "description", b.description, "error", err)
		}
	}
	return b.elapsed
}

// Time runs fn inside a benchmark and returns the elapsed time. The result is
// reported even if fn panics.
func Time(description string, fn func(), opts ...Option) (elapsed time.Duration) {
	b := Start(description, opts...)
	defer func() { elapsed = b.Stop() }()
	fn()
	return
}

func Format(description string, elapsed time.Duration) string {
	return fmt.Sprintf("%s: %.4f sec", description, elapsed.Seconds())
}
