package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// OAuthClient refreshes tokens directly against the Microsoft identity
// platform token endpoint, acting as a public client (no secret).
type OAuthClient struct {
	endpoint   oauth2.Endpoint
	scopes     []string
	httpClient *http.Client
}

// NewOAuthClient creates an OAuthClient for the given Azure AD tenant
// ("common", "consumers", or a tenant id). When scopes is empty the
// refreshed token carries the scopes of the original grant.
func NewOAuthClient(tenant string, scopes []string, httpClient *http.Client) *OAuthClient {
	if tenant == "" {
		tenant = "common"
	}
	endpoint := microsoft.AzureADEndpoint(tenant)
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	return newOAuthClientWithEndpoint(endpoint, scopes, httpClient)
}

func newOAuthClientWithEndpoint(endpoint oauth2.Endpoint, scopes []string, httpClient *http.Client) *OAuthClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OAuthClient{endpoint: endpoint, scopes: scopes, httpClient: httpClient}
}

// Refresh performs a refresh_token grant for clientID.
func (o *OAuthClient) Refresh(ctx context.Context, refreshToken, clientID string) Result {
	return record("oauth", o.refresh(ctx, refreshToken, clientID))
}

func (o *OAuthClient) refresh(ctx context.Context, refreshToken, clientID string) Result {
	conf := &oauth2.Config{
		ClientID: clientID,
		Endpoint: o.endpoint,
		Scopes:   o.scopes,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return classifyOAuthError(err)
	}

	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}

	return Result{
		AccessToken:  tok.AccessToken,
		RefreshToken: newRefresh,
		Success:      true,
	}
}

// classifyOAuthError turns an OAuth error response into a rejection and
// everything else (network, 5xx, malformed body) into a fault.
func classifyOAuthError(err error) Result {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		return fault(err.Error())
	}

	status := 0
	if rErr.Response != nil {
		status = rErr.Response.StatusCode
	}
	if status >= 500 {
		return fault(fmt.Sprintf("token endpoint returned %d", status))
	}

	switch {
	case rErr.ErrorDescription != "":
		return rejected(rErr.ErrorDescription)
	case rErr.ErrorCode != "":
		return rejected(rErr.ErrorCode)
	default:
		return rejected(fmt.Sprintf("token endpoint returned %d", status))
	}
}
