package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/shineum/mailcode-lite/internal/batch"
	"github.com/shineum/mailcode-lite/internal/config"
	"github.com/shineum/mailcode-lite/internal/extract"
	"github.com/shineum/mailcode-lite/internal/pipeline"
	"github.com/shineum/mailcode-lite/internal/report"
)

// maxLineSize bounds one credential line.
const maxLineSize = 1 << 20

// runOptions are the flags of the run command.
type runOptions struct {
	input       string
	mode        pipeline.Mode
	types       []string
	concurrency int
}

// parseRunFlags parses run flags, falling back to configured defaults.
func parseRunFlags(cfg *config.Config, args []string) (runOptions, error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	input := fs.String("input", "-", "credential file, or - for stdin")
	mode := fs.String("mode", cfg.Batch.Mode, "fetch-code, check-liveness or renew-token")
	types := fs.String("types", strings.Join(cfg.Batch.Types, ","), "comma-separated sender types, or Auto")
	concurrency := fs.Int("concurrency", cfg.Batch.Concurrency, "maximum pipelines in flight")

	if err := fs.Parse(args); err != nil {
		return runOptions{}, err
	}

	m, err := pipeline.ParseMode(*mode)
	if err != nil {
		return runOptions{}, err
	}

	return runOptions{
		input:       *input,
		mode:        m,
		types:       extract.CleanTypes(strings.Split(*types, ",")),
		concurrency: *concurrency,
	}, nil
}

// runCommand processes one batch of credential lines. Outcomes are written
// to out as NDJSON in completion order; the summary goes to the reporter,
// whose stdout variant writes to stderr.
func runCommand(ctx context.Context, cfg *config.Config, args []string, stdin io.Reader, out io.Writer) error {
	opts, err := parseRunFlags(cfg, args)
	if err != nil {
		return err
	}

	lines, err := readInput(opts.input, stdin)
	if err != nil {
		return err
	}

	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	rep, err := selectReporter(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}

	batchID := uuid.NewString()
	slog.Info("starting batch",
		"batch_id", batchID,
		"mode", opts.mode,
		"lines", len(lines),
		"concurrency", opts.concurrency,
	)

	stats := runBatch(ctx, p.Bind(opts.mode, opts.types), lines, opts, cfg.Batch.DefaultClientID, out)

	// The batch context may already be cancelled; the summary still goes out.
	if err := rep.Report(context.WithoutCancel(ctx), report.NewSummary(batchID, opts.mode, stats)); err != nil {
		slog.Error("failed to report batch summary", "batch_id", batchID, "error", err)
	}
	return nil
}

// runBatch drains lines through the worker pool and encodes each outcome
// to out.
func runBatch(ctx context.Context, run batch.RunFunc, lines []string, opts runOptions, defaultClientID string, out io.Writer) batch.Stats {
	bw := bufio.NewWriter(out)
	defer bw.Flush()
	enc := json.NewEncoder(bw)

	proc := batch.New(batch.Options{
		Concurrency:     opts.concurrency,
		DefaultClientID: defaultClientID,
	})

	return proc.Run(ctx, lines, opts.mode, run, func(o pipeline.Outcome) {
		if err := enc.Encode(o); err != nil {
			slog.Warn("failed to write outcome", "email", o.Email, "error", err)
			return
		}
		// Flush per outcome so consumers see results as they complete.
		bw.Flush()
	})
}

// readInput reads all lines from path, or from stdin when path is "-".
func readInput(path string, stdin io.Reader) ([]string, error) {
	r := stdin
	if path != "-" && path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return lines, nil
}
