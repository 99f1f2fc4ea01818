// Package report defines the interface for batch summary destinations.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shineum/mailcode-lite/internal/batch"
	"github.com/shineum/mailcode-lite/internal/pipeline"
)

// Reporter is the interface that summary destinations must implement.
// Only aggregate counts are reported; outcomes themselves are never
// forwarded.
type Reporter interface {
	// Report delivers the summary of a finished batch.
	Report(ctx context.Context, s *Summary) error

	// Name returns the human-readable name of this reporter.
	Name() string
}

// Summary is the aggregate view of one finished batch.
type Summary struct {
	BatchID string        `json:"batchId"`
	Mode    pipeline.Mode `json:"mode"`
	Lines   int           `json:"lines"`
	Parsed  int           `json:"parsed"`
	Skipped int           `json:"skipped"`
	Success int           `json:"success"`
	Failed  int           `json:"failed"`
	Unknown int           `json:"unknown"`
	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"-"`
}

// MarshalJSON encodes Elapsed as whole milliseconds.
func (s *Summary) MarshalJSON() ([]byte, error) {
	type plain Summary
	return json.Marshal(struct {
		*plain
		ElapsedMs int64 `json:"elapsedMs"`
	}{(*plain)(s), s.Elapsed.Milliseconds()})
}

// NewSummary builds a Summary from the stats of a finished run.
func NewSummary(batchID string, mode pipeline.Mode, stats batch.Stats) *Summary {
	return &Summary{
		BatchID: batchID,
		Mode:    mode,
		Lines:   stats.Lines,
		Parsed:  stats.Parsed,
		Skipped: stats.Skipped,
		Success: stats.ByStatus[pipeline.StatusSuccess],
		Failed:  stats.ByStatus[pipeline.StatusFailed],
		Unknown: stats.ByStatus[pipeline.StatusUnknown],
		Started: stats.Started,
		Elapsed: stats.Elapsed,
	}
}

// Subject returns a one-line title for the summary.
func (s *Summary) Subject() string {
	return fmt.Sprintf("[mailcode] %s batch %s: %d success, %d failed, %d unknown",
		s.Mode, s.BatchID, s.Success, s.Failed, s.Unknown)
}

// Text renders the summary as plain text, one field per line.
func (s *Summary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch: %s\n", s.BatchID)
	fmt.Fprintf(&b, "Mode: %s\n", s.Mode)
	fmt.Fprintf(&b, "Started: %s\n", s.Started.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Elapsed: %s\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "Lines: %d (parsed %d, skipped %d)\n", s.Lines, s.Parsed, s.Skipped)
	fmt.Fprintf(&b, "Success: %d\n", s.Success)
	fmt.Fprintf(&b, "Failed: %d\n", s.Failed)
	fmt.Fprintf(&b, "Unknown: %d\n", s.Unknown)
	return b.String()
}

// Nop discards summaries. It backs the "none" provider.
type Nop struct{}

// Report does nothing.
func (Nop) Report(context.Context, *Summary) error { return nil }

// Name returns the reporter name.
func (Nop) Name() string { return "none" }
