package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/shineum/mailcode-lite/internal/config"
	"github.com/shineum/mailcode-lite/internal/extract"
	"github.com/shineum/mailcode-lite/internal/mailbox"
	"github.com/shineum/mailcode-lite/internal/pipeline"
	"github.com/shineum/mailcode-lite/internal/report"
	"github.com/shineum/mailcode-lite/internal/report/ses"
	"github.com/shineum/mailcode-lite/internal/report/stdout"
	"github.com/shineum/mailcode-lite/internal/token"
	"github.com/shineum/mailcode-lite/internal/transport"
)

// buildPipeline wires the token backend, mailbox reader and extractor.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	client := transport.New(transport.Options{
		Timeout:        cfg.Transport.Timeout,
		MaxRetries:     cfg.Transport.MaxRetries,
		BaseRetryDelay: cfg.Transport.BaseRetryDelay,
	})

	refresher, err := selectRefresher(cfg, client)
	if err != nil {
		return nil, err
	}

	patterns := extract.DefaultPatterns
	if len(cfg.Patterns) > 0 {
		patterns = patterns.Merge(extract.NewPatternSet(cfg.Patterns))
		slog.Info("custom sender patterns loaded", "types", len(cfg.Patterns))
	}

	reader := mailbox.NewGraphReader(cfg.Mailbox.MessagesURL, client)
	extractor := extract.NewExtractor(patterns, cfg.Location())

	return pipeline.New(refresher, reader, extractor, cfg.Batch.Top), nil
}

// selectRefresher chooses the token refresh backend based on configuration.
func selectRefresher(cfg *config.Config, client *transport.Client) (token.Refresher, error) {
	switch cfg.Token.Backend {
	case "proxy":
		slog.Info("using token proxy backend", "url", cfg.Token.ProxyURL)
		return token.NewProxyClient(cfg.Token.ProxyURL, client), nil

	case "oauth":
		slog.Info("using OAuth token backend", "tenant", cfg.Token.Tenant)
		return token.NewOAuthClient(cfg.Token.Tenant, cfg.Token.Scopes, client.HTTPClient()), nil

	default:
		return nil, fmt.Errorf("unknown token backend %q", cfg.Token.Backend)
	}
}

// selectReporter chooses where batch summaries go. The stdout reporter
// writes to w.
func selectReporter(ctx context.Context, cfg *config.Config, w io.Writer) (report.Reporter, error) {
	switch cfg.Report.Provider {
	case "ses":
		slog.Info("using AWS SES reporter",
			"region", cfg.Report.SES.Region,
			"sender", cfg.Report.SES.Sender,
		)
		r, err := ses.New(ctx, ses.Config{
			Region:          cfg.Report.SES.Region,
			AccessKeyID:     cfg.Report.SES.AccessKeyID,
			SecretAccessKey: cfg.Report.SES.SecretAccessKey,
			Sender:          cfg.Report.SES.Sender,
			Recipient:       cfg.Report.SES.Recipient,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES reporter: %w", err)
		}
		return r, nil

	case "stdout", "":
		return stdout.NewWithWriter(w), nil

	case "none":
		return report.Nop{}, nil

	default:
		return nil, fmt.Errorf("unknown report provider %q", cfg.Report.Provider)
	}
}

// batchMode returns the configured default mode. Validate has already
// normalised it.
func batchMode(cfg *config.Config) pipeline.Mode {
	mode, err := pipeline.ParseMode(cfg.Batch.Mode)
	if err != nil {
		return pipeline.ModeFetchCode
	}
	return mode
}
