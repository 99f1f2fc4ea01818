package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shineum/mailcode-lite/internal/transport"
)

// proxyRequest is the body posted to the token refresh proxy.
type proxyRequest struct {
	RefreshToken string `json:"refreshToken"`
	ClientID     string `json:"clientId"`
}

// proxyResponse is the envelope returned by the token refresh proxy.
// Success is a pointer so a body without the field can be told apart
// from an explicit false.
type proxyResponse struct {
	Success *bool       `json:"success"`
	Data    *proxyToken `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

type proxyToken struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ProxyClient refreshes tokens through an HTTP proxy endpoint that speaks
// the {refreshToken, clientId} → {success, data, message} protocol.
type ProxyClient struct {
	url    string
	client *transport.Client
}

// NewProxyClient creates a ProxyClient posting to url.
func NewProxyClient(url string, client *transport.Client) *ProxyClient {
	return &ProxyClient{url: url, client: client}
}

// Refresh posts the refresh token to the proxy.
func (p *ProxyClient) Refresh(ctx context.Context, refreshToken, clientID string) Result {
	return record("proxy", p.refresh(ctx, refreshToken, clientID))
}

func (p *ProxyClient) refresh(ctx context.Context, refreshToken, clientID string) Result {
	bodyJSON, err := json.Marshal(proxyRequest{RefreshToken: refreshToken, ClientID: clientID})
	if err != nil {
		return fault(fmt.Sprintf("failed to marshal request body: %v", err))
	}

	resp, err := p.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(bodyJSON))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		slog.Debug("token proxy unreachable", "error", err)
		return fault(err.Error())
	}

	var body proxyResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return fault(fmt.Sprintf("malformed token proxy response (HTTP %d): %v", resp.StatusCode, err))
	}

	if body.Success == nil {
		return fault(fmt.Sprintf("malformed token proxy response (HTTP %d): missing success field", resp.StatusCode))
	}

	if !*body.Success {
		msg := body.Message
		if msg == "" {
			msg = fmt.Sprintf("token refresh rejected (HTTP %d)", resp.StatusCode)
		}
		return rejected(msg)
	}

	if body.Data == nil || body.Data.AccessToken == "" {
		return fault("token proxy response missing accessToken")
	}

	newRefresh := body.Data.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}

	return Result{
		AccessToken:  body.Data.AccessToken,
		RefreshToken: newRefresh,
		Success:      true,
	}
}
