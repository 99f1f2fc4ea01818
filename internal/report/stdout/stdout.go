// Package stdout implements a Reporter that prints batch summaries to
// standard output.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shineum/mailcode-lite/internal/report"
)

const separator = "========================================\n"

// Reporter prints summaries in a human-readable block.
type Reporter struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a Reporter that writes to os.Stdout.
func New() *Reporter {
	return &Reporter{writer: os.Stdout}
}

// NewWithWriter creates a Reporter that writes to the given writer.
// This is useful for testing, and for keeping the block off a stream
// that carries NDJSON outcomes.
func NewWithWriter(w io.Writer) *Reporter {
	return &Reporter{writer: w}
}

// Report prints the summary block.
func (r *Reporter) Report(_ context.Context, s *report.Summary) error {
	var b strings.Builder

	b.WriteString(separator)
	b.WriteString(s.Text())
	b.WriteString(separator)

	if _, err := fmt.Fprint(r.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// Name returns the reporter name.
func (r *Reporter) Name() string {
	return "stdout"
}
