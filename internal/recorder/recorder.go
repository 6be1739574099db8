// Package recorder is the hourly-rotated NDJSON durable log: a bounded
// async queue drained by a dedicated background goroutine that appends one
// JSON line per event, rolls the file when the UTC hour changes, and
// optionally prunes files past a retention age.
package recorder

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultQueueSize is the recorder's bounded enqueue buffer.
const DefaultQueueSize = 10000

// Metrics is the subset of metrics.Registry the recorder updates.
type Metrics interface {
	NoteRecorderDropped()
}

// Recorder owns the current file handle and its queue exclusively.
// Enqueue never blocks the ingest caller.
type Recorder struct {
	baseDir   string
	retention time.Duration // 0 disables pruning
	metrics   Metrics
	log       zerolog.Logger

	queue chan string
	done  chan struct{}
	wg    sync.WaitGroup

	currentKey string
	file       *os.File
	writer     *bufio.Writer

	now func() time.Time
}

// Option configures a Recorder at construction.
type Option func(*Recorder)

func WithQueueSize(n int) Option { return func(r *Recorder) { r.queue = make(chan string, n) } }
func WithRetention(d time.Duration) Option { return func(r *Recorder) { r.retention = d } }

// withClock overrides the recorder's notion of "now", used by tests to
// exercise hour rollover without sleeping past a real hour boundary.
func withClock(now func() time.Time) Option { return func(r *Recorder) { r.now = now } }

// New constructs a Recorder rooted at baseDir. Call Run in a goroutine to
// start the consumer.
func New(baseDir string, metrics Metrics, log zerolog.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		baseDir: baseDir,
		metrics: metrics,
		log:     log.With().Str("component", "recorder").Logger(),
		queue:   make(chan string, DefaultQueueSize),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enqueue submits a line for durable append. Non-blocking: on a full queue
// it increments recorder_dropped and returns immediately.
func (r *Recorder) Enqueue(line string) {
	select {
	case r.queue <- line:
	default:
		r.metrics.NoteRecorderDropped()
	}
}

// QueueDepth reports the number of buffered lines awaiting the consumer.
func (r *Recorder) QueueDepth() int {
	return len(r.queue)
}

// Run drains the queue until ctx is cancelled, rotating hour files and
// optionally pruning on every rotation. It is meant to run in its own
// goroutine; Stop (or ctx cancellation) causes it to flush and return.
func (r *Recorder) Run(ctx context.Context) {
	r.wg.Add(1)
	defer r.wg.Done()

	if err := os.MkdirAll(r.baseDir, 0o755); err != nil {
		r.log.Error().Err(err).Msg("failed to create record directory")
	}

	for {
		select {
		case <-ctx.Done():
			r.closeCurrent()
			return
		case <-r.done:
			r.closeCurrent()
			return
		case line := <-r.queue:
			r.writeLine(line)
		}
	}
}

// Stop signals Run to flush and exit, and waits for it to finish.
func (r *Recorder) Stop() {
	close(r.done)
	r.wg.Wait()
}

func (r *Recorder) writeLine(line string) {
	key := hourKey(r.now().UTC())
	if key != r.currentKey {
		r.closeCurrent()
		if err := r.openForKey(key); err != nil {
			r.log.Error().Err(err).Str("key", key).Msg("rotation failed")
			return
		}
		if r.retention > 0 {
			r.pruneOlderThan(r.retention)
		}
	}

	if _, err := r.writer.WriteString(line); err != nil {
		r.log.Error().Err(err).Msg("write failed")
		return
	}
	if line == "" || line[len(line)-1] != '\n' {
		r.writer.WriteByte('\n')
	}
	if err := r.writer.Flush(); err != nil {
		r.log.Error().Err(err).Msg("flush failed")
	}
}

func (r *Recorder) openForKey(key string) error {
	path := filepath.Join(r.baseDir, key+".ndjson")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	r.file = f
	r.writer = bufio.NewWriter(f)
	r.currentKey = key
	return nil
}

func (r *Recorder) closeCurrent() {
	if r.writer != nil {
		_ = r.writer.Flush()
	}
	if r.file != nil {
		_ = r.file.Close()
	}
	r.file = nil
	r.writer = nil
}

// hourKey renders the UTC hour key YYYYMMDD_HH used for the record file
// name and for rotation comparisons.
func hourKey(t time.Time) string {
	return t.Format("20060102_15")
}
