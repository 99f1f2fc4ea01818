// Package ses implements a Reporter that emails batch summaries via AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/mailcode-lite/internal/report"
)

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// defaultRetryDelay is the initial delay for exponential backoff.
const defaultRetryDelay = 1 * time.Second

// Config holds the settings for creating a Reporter.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Sender          string
	// Recipient is one address or a comma-separated list.
	Recipient string
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Reporter sends each summary as a plain-text email.
type Reporter struct {
	sender     string
	recipients []string
	client     SendEmailAPI
	retryDelay time.Duration
}

// New creates a Reporter backed by a real SES v2 client.
func New(ctx context.Context, cfg Config) (*Reporter, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(cfg.Sender, cfg.Recipient, sesv2.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a Reporter with a custom client, used for testing.
func NewWithClient(sender, recipient string, client SendEmailAPI) *Reporter {
	return &Reporter{
		sender:     sender,
		recipients: splitRecipients(recipient),
		client:     client,
		retryDelay: defaultRetryDelay,
	}
}

// Report emails the summary, retrying transient SES errors with
// exponential backoff.
func (r *Reporter) Report(ctx context.Context, s *report.Summary) error {
	if len(r.recipients) == 0 {
		return fmt.Errorf("no SES recipient configured")
	}

	input := buildInput(r.sender, r.recipients, s)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying SES API request",
				"attempt", attempt,
				"max_retries", maxRetries,
			)
			if err := sleepWithContext(ctx, backoffDelay(r.retryDelay, attempt)); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		_, err := r.client.SendEmail(ctx, input)
		if err == nil {
			slog.Info("batch summary sent",
				"reporter", "ses",
				"batch_id", s.BatchID,
				"recipients", len(r.recipients),
			)
			return nil
		}

		lastErr = err
		slog.Warn("SES API error",
			"attempt", attempt,
			"error", err,
		)
	}

	return fmt.Errorf("SES API request failed after %d retries: %w", maxRetries, lastErr)
}

// Name returns the reporter name.
func (r *Reporter) Name() string {
	return "ses"
}

// buildInput creates a simple text-only SendEmailInput for a summary.
func buildInput(sender string, recipients []string, s *report.Summary) *sesv2.SendEmailInput {
	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(sender),
		Destination: &types.Destination{
			ToAddresses: recipients,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(s.Subject()),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(s.Text()),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}
}

func splitRecipients(s string) []string {
	var out []string
	for _, addr := range strings.Split(s, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// backoffDelay returns the exponential backoff delay for the given attempt number.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
