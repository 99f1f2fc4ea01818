package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shineum/mailcode-lite/internal/metrics"
	"github.com/shineum/mailcode-lite/internal/transport"
)

// DefaultMessagesURL lists the signed-in user's inbox.
const DefaultMessagesURL = "https://graph.microsoft.com/v1.0/me/mailFolders/inbox/messages"

// DefaultTop is the page size used when the caller passes top <= 0.
const DefaultTop = 50

// Reader fetches the most recent messages of an authenticated mailbox.
// A failed read is reported as an empty slice.
type Reader interface {
	Read(ctx context.Context, accessToken string, top int) []Message
}

// GraphReader reads messages from the Graph messages endpoint.
type GraphReader struct {
	messagesURL string
	client      *transport.Client
}

// NewGraphReader creates a GraphReader. An empty messagesURL selects
// DefaultMessagesURL.
func NewGraphReader(messagesURL string, client *transport.Client) *GraphReader {
	if messagesURL == "" {
		messagesURL = DefaultMessagesURL
	}
	return &GraphReader{messagesURL: messagesURL, client: client}
}

// Read returns up to top messages ordered by receipt time, newest first.
func (g *GraphReader) Read(ctx context.Context, accessToken string, top int) []Message {
	msgs, err := g.list(ctx, accessToken, top)
	if err != nil {
		metrics.MailboxReadFailures.Inc()
		slog.Warn("mailbox read failed", "error", err)
		return nil
	}
	return msgs
}

func (g *GraphReader) list(ctx context.Context, accessToken string, top int) ([]Message, error) {
	if top <= 0 {
		top = DefaultTop
	}

	reqURL, err := g.buildURL(top)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	if !resp.OK() {
		var graphErrResp graphErrorResponse
		if jsonErr := json.Unmarshal(resp.Body, &graphErrResp); jsonErr == nil && graphErrResp.Error.Message != "" {
			return nil, fmt.Errorf("Graph API error (HTTP %d): %s", resp.StatusCode, graphErrResp.Error.Message)
		}
		return nil, fmt.Errorf("Graph API error (HTTP %d): %s", resp.StatusCode, string(resp.Body))
	}

	var list listResponse
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, fmt.Errorf("failed to parse messages response: %w", err)
	}

	msgs := make([]Message, 0, len(list.Value))
	for _, m := range list.Value {
		msgs = append(msgs, m.toMessage())
	}
	return msgs, nil
}

func (g *GraphReader) buildURL(top int) (string, error) {
	u, err := url.Parse(g.messagesURL)
	if err != nil {
		return "", fmt.Errorf("invalid messages URL: %w", err)
	}

	q := u.Query()
	q.Set("$top", strconv.Itoa(top))
	q.Set("$orderby", "receivedDateTime desc")
	q.Set("$select", selectFields)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
