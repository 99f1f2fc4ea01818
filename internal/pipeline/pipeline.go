// Package pipeline runs a single credential through token refresh and,
// depending on the mode, mailbox reading and code extraction.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shineum/mailcode-lite/internal/credential"
	"github.com/shineum/mailcode-lite/internal/extract"
	"github.com/shineum/mailcode-lite/internal/mailbox"
	"github.com/shineum/mailcode-lite/internal/token"
)

// Pipeline composes the token, mailbox and extraction collaborators.
// It is safe for concurrent use as long as its collaborators are.
type Pipeline struct {
	refresher token.Refresher
	reader    mailbox.Reader
	extractor *extract.Extractor
	top       int
}

// New creates a Pipeline. top is the number of messages read in
// fetch-code mode; top <= 0 selects mailbox.DefaultTop.
func New(refresher token.Refresher, reader mailbox.Reader, extractor *extract.Extractor, top int) *Pipeline {
	if extractor == nil {
		extractor = extract.NewExtractor(nil, nil)
	}
	if top <= 0 {
		top = mailbox.DefaultTop
	}
	return &Pipeline{
		refresher: refresher,
		reader:    reader,
		extractor: extractor,
		top:       top,
	}
}

// Run produces exactly one Outcome for rec. It never panics: a panic in a
// collaborator is recovered and reported as UNKNOWN.
func (p *Pipeline) Run(ctx context.Context, rec credential.Record, mode Mode, types []string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline panic recovered", "email", rec.Email, "mode", mode, "panic", r)
			out = Unknown(rec, mode, fmt.Sprintf("internal error: %v", r))
		}
	}()

	res := p.refresher.Refresh(ctx, rec.RefreshToken, rec.ClientID)
	if !res.Success {
		slog.Debug("token refresh failed", "email", rec.Email, "fault", res.Fault, "error", res.Error)
		// Renew mode reports transport faults as UNKNOWN; the other modes
		// report every refresh failure as FAILED.
		if mode == ModeRenewToken && res.Fault {
			return Unknown(rec, mode, res.Error)
		}
		return Failed(rec, mode, res.Error)
	}

	switch mode {
	case ModeCheckLiveness:
		out = newOutcome(rec, mode)
		out.Status = StatusSuccess
		out.IsLive = true
		return out

	case ModeRenewToken:
		renewed := rec
		renewed.RefreshToken = res.RefreshToken
		out = newOutcome(renewed, mode)
		out.Status = StatusSuccess
		out.AccessToken = res.AccessToken
		out.FullData = renewed.FullData()
		return out

	case ModeFetchCode:
		msgs := p.reader.Read(ctx, res.AccessToken, p.top)
		found := p.extractor.Find(msgs, types)
		if found == nil {
			return Failed(rec, mode, NoCodeFound)
		}
		out = newOutcome(rec, mode)
		out.Status = StatusSuccess
		out.Code = found.Code
		out.Content = found.Content
		out.Date = found.Date
		return out

	default:
		return Unknown(rec, mode, fmt.Sprintf("unsupported mode %q", mode))
	}
}

// Bind fixes the mode and type filter, returning a function suitable for
// batch processing.
func (p *Pipeline) Bind(mode Mode, types []string) func(context.Context, credential.Record) Outcome {
	return func(ctx context.Context, rec credential.Record) Outcome {
		return p.Run(ctx, rec, mode, types)
	}
}
