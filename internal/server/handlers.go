package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shineum/mailcode-lite/internal/batch"
	"github.com/shineum/mailcode-lite/internal/extract"
	"github.com/shineum/mailcode-lite/internal/pipeline"
	"github.com/shineum/mailcode-lite/internal/report"
)

const (
	// maxBodySize caps a batch submission.
	maxBodySize = 16 << 20

	// maxConcurrency caps the per-request worker count.
	maxConcurrency = 100

	// writeTimeout bounds each streamed line. Outcome delivery is
	// serialized across workers, so a stalled client must not block it.
	writeTimeout = 10 * time.Second
)

// batchRequest is the body of POST /v1/batches. Omitted fields fall back
// to the server defaults.
type batchRequest struct {
	Lines       []string `json:"lines"`
	Mode        string   `json:"mode"`
	Types       []string `json:"types"`
	Concurrency int      `json:"concurrency"`
}

type summaryLine struct {
	Summary *report.Summary `json:"summary"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleBatch runs one batch and streams each outcome as an NDJSON line
// as soon as it completes, followed by a summary line.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	mode := s.config.Mode
	if req.Mode != "" {
		m, err := pipeline.ParseMode(req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode = m
	}

	types := extract.CleanTypes(req.Types)
	if len(types) == 0 {
		types = s.config.Types
	}

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = s.config.Concurrency
	}
	concurrency = min(concurrency, maxConcurrency)

	batchID := uuid.NewString()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Batch-ID", batchID)
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)

	slog.Info("batch accepted",
		"batch_id", batchID,
		"mode", mode,
		"lines", len(req.Lines),
		"concurrency", concurrency,
	)

	proc := batch.New(batch.Options{
		Concurrency:     concurrency,
		DefaultClientID: s.config.DefaultClientID,
	})

	// Write errors mean the client went away; the batch still runs to
	// completion so every credential yields an outcome and a summary.
	// After the first failed write the rest are skipped.
	var writeErr error
	stats := proc.Run(r.Context(), req.Lines, mode, s.config.Pipeline.Bind(mode, types), func(out pipeline.Outcome) {
		if writeErr != nil {
			return
		}
		rc.SetWriteDeadline(time.Now().Add(writeTimeout))
		if writeErr = enc.Encode(out); writeErr != nil {
			slog.Warn("client stopped reading batch stream", "batch_id", batchID, "error", writeErr)
			return
		}
		writeErr = rc.Flush()
	})

	summary := report.NewSummary(batchID, mode, stats)
	if writeErr == nil {
		rc.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := enc.Encode(summaryLine{Summary: summary}); err == nil {
			rc.Flush()
		}
	}

	s.report(context.WithoutCancel(r.Context()), summary)
}

// report delivers the summary in the background so the response can
// complete without waiting on the reporter.
func (s *Server) report(ctx context.Context, summary *report.Summary) {
	s.reports.Add(1)
	go func() {
		defer s.reports.Done()

		ctx, cancel := context.WithTimeout(ctx, reportTimeout)
		defer cancel()

		if err := s.config.Reporter.Report(ctx, summary); err != nil {
			slog.Error("failed to report batch summary",
				"batch_id", summary.BatchID,
				"reporter", s.config.Reporter.Name(),
				"error", err,
			)
		}
	}()
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
