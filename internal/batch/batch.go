// Package batch runs credential pipelines over a queue of input lines with
// a fixed number of concurrent workers.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shineum/mailcode-lite/internal/credential"
	"github.com/shineum/mailcode-lite/internal/metrics"
	"github.com/shineum/mailcode-lite/internal/pipeline"
)

// DefaultConcurrency is the worker count used when none is configured.
const DefaultConcurrency = 10

// RunFunc runs the pipeline for one credential.
type RunFunc func(ctx context.Context, rec credential.Record) pipeline.Outcome

// Sink receives each outcome as soon as it is produced. Calls are
// serialized, so a Sink need not be safe for concurrent use, but a slow
// Sink holds up delivery from every worker and should bound its own
// writes. A panicking Sink is recovered and logged; the outcome is still
// counted.
type Sink func(pipeline.Outcome)

// Options configures a Processor.
type Options struct {
	// Concurrency is the maximum number of pipelines in flight.
	// Values <= 0 select DefaultConcurrency.
	Concurrency int

	// DefaultClientID is used for lines without a client id.
	DefaultClientID string
}

// Stats summarises a finished run.
type Stats struct {
	Lines      int
	Parsed     int
	Skipped    int
	Workers    int
	Panics     int
	SinkPanics int
	ByStatus   map[pipeline.Status]int
	Started    time.Time
	Elapsed    time.Duration
}

// Outcomes returns the total number of outcomes delivered.
func (s Stats) Outcomes() int {
	n := 0
	for _, c := range s.ByStatus {
		n += c
	}
	return n
}

// Processor is a bounded worker pool over a queue of credentials.
type Processor struct {
	concurrency     int
	defaultClientID string
}

// New creates a Processor.
func New(opts Options) *Processor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Processor{
		concurrency:     opts.Concurrency,
		defaultClientID: opts.DefaultClientID,
	}
}

// Concurrency returns the configured worker ceiling.
func (p *Processor) Concurrency() int {
	return p.concurrency
}

// Run parses lines into a queue and drains it with min(concurrency, queue
// length) workers. Each worker pulls the next record as soon as it
// finishes the previous one, so delivery order follows completion order.
// Every parsed record yields exactly one outcome, including when run
// panics. Run returns after all workers have exited.
func (p *Processor) Run(ctx context.Context, lines []string, mode pipeline.Mode, run RunFunc, sink Sink) Stats {
	started := time.Now()
	records := credential.ParseLines(lines, p.defaultClientID)

	stats := Stats{
		Lines:    len(lines),
		Parsed:   len(records),
		Skipped:  len(lines) - len(records),
		ByStatus: make(map[pipeline.Status]int),
		Started:  started,
	}

	queue := make(chan credential.Record, len(records))
	for _, rec := range records {
		queue <- rec
	}
	close(queue)

	workers := min(p.concurrency, len(records))
	stats.Workers = workers

	var (
		mu sync.Mutex // guards sink and stats
		wg sync.WaitGroup
	)

	deliver := func(out pipeline.Outcome, elapsed time.Duration, panicked bool) {
		mu.Lock()
		defer mu.Unlock()
		stats.ByStatus[out.Status]++
		if panicked {
			stats.Panics++
		}
		metrics.RecordOutcome(string(mode), string(out.Status), elapsed)
		if deliverSafely(sink, out) {
			stats.SinkPanics++
		}
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for rec := range queue {
				start := time.Now()
				out, panicked := p.runOne(ctx, worker, rec, mode, run)
				deliver(out, time.Since(start), panicked)
			}
		}(i)
	}

	wg.Wait()

	stats.Elapsed = time.Since(started)
	slog.Info("batch finished",
		"mode", mode,
		"lines", stats.Lines,
		"parsed", stats.Parsed,
		"skipped", stats.Skipped,
		"workers", workers,
		"success", stats.ByStatus[pipeline.StatusSuccess],
		"failed", stats.ByStatus[pipeline.StatusFailed],
		"unknown", stats.ByStatus[pipeline.StatusUnknown],
		"elapsed", stats.Elapsed,
	)
	return stats
}

// deliverSafely calls sink, reporting whether it panicked.
func deliverSafely(sink Sink, out pipeline.Outcome) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.WorkerPanics.Inc()
			slog.Error("recovered from sink panic",
				"email", out.Email,
				"panic", r,
			)
			panicked = true
		}
	}()

	sink(out)
	return false
}

// runOne executes run for one record, converting a panic into an UNKNOWN
// outcome so the worker keeps draining the queue.
func (p *Processor) runOne(ctx context.Context, worker int, rec credential.Record, mode pipeline.Mode, run RunFunc) (out pipeline.Outcome, panicked bool) {
	metrics.PipelinesInFlight.Inc()
	defer metrics.PipelinesInFlight.Dec()

	defer func() {
		if r := recover(); r != nil {
			metrics.WorkerPanics.Inc()
			slog.Error("worker recovered from pipeline panic",
				"worker", worker,
				"email", rec.Email,
				"panic", r,
			)
			out = pipeline.Unknown(rec, mode, fmt.Sprintf("worker error: %v", r))
			panicked = true
		}
	}()

	return run(ctx, rec), false
}
