package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"
)

func newTestOAuth(srv *httptest.Server, scopes ...string) *OAuthClient {
	return newOAuthClientWithEndpoint(oauth2.Endpoint{
		TokenURL:  srv.URL,
		AuthStyle: oauth2.AuthStyleInParams,
	}, scopes, srv.Client())
}

func TestOAuthClient_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if r.FormValue("grant_type") != "refresh_token" {
			t.Errorf("grant_type: got %q, want %q", r.FormValue("grant_type"), "refresh_token")
		}
		if r.FormValue("refresh_token") != "old-rt" {
			t.Errorf("refresh_token: got %q, want %q", r.FormValue("refresh_token"), "old-rt")
		}
		if r.FormValue("client_id") != "client-1" {
			t.Errorf("client_id: got %q, want %q", r.FormValue("client_id"), "client-1")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-at",
			"refresh_token": "new-rt",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	res := newTestOAuth(srv).Refresh(context.Background(), "old-rt", "client-1")

	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.AccessToken != "new-at" {
		t.Errorf("AccessToken: got %q, want %q", res.AccessToken, "new-at")
	}
	if res.RefreshToken != "new-rt" {
		t.Errorf("RefreshToken: got %q, want %q", res.RefreshToken, "new-rt")
	}
}

func TestOAuthClient_InvalidGrant(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "AADSTS70000: The refresh token has expired.",
		})
	}))
	defer srv.Close()

	res := newTestOAuth(srv).Refresh(context.Background(), "rt", "cid")

	if res.Success {
		t.Fatal("expected failure, got success")
	}
	if res.Fault {
		t.Error("invalid_grant should be a rejection, not a fault")
	}
	if res.Error != "AADSTS70000: The refresh token has expired." {
		t.Errorf("Error: got %q", res.Error)
	}
}

func TestOAuthClient_ServerErrorIsFault(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res := newTestOAuth(srv).Refresh(context.Background(), "rt", "cid")
	if res.Success || !res.Fault {
		t.Errorf("expected fault, got %+v", res)
	}
}

func TestOAuthClient_UnreachableIsFault(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := newTestOAuth(srv)
	srv.Close()

	res := client.Refresh(context.Background(), "rt", "cid")
	if res.Success || !res.Fault {
		t.Errorf("expected fault, got %+v", res)
	}
}

func TestNewOAuthClient_DefaultsToCommonTenant(t *testing.T) {
	t.Parallel()

	c := NewOAuthClient("", nil, nil)
	want := "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	if c.endpoint.TokenURL != want {
		t.Errorf("TokenURL: got %q, want %q", c.endpoint.TokenURL, want)
	}
}

func TestOAuthClient_SendsConfiguredScopes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		scopes []string
		want   string
	}{
		{name: "none", want: ""},
		{
			name:   "mail read",
			scopes: []string{"offline_access", "https://graph.microsoft.com/Mail.Read"},
			want:   "offline_access https://graph.microsoft.com/Mail.Read",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := r.ParseForm(); err != nil {
					t.Errorf("failed to parse form: %v", err)
				}
				got = r.FormValue("scope")
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{
					"access_token": "at",
					"token_type":   "Bearer",
					"expires_in":   3600,
				})
			}))
			defer srv.Close()

			res := newTestOAuth(srv, tt.scopes...).Refresh(context.Background(), "rt", "cid")
			if !res.Success {
				t.Fatalf("expected success, got %+v", res)
			}
			if got != tt.want {
				t.Errorf("scope: got %q, want %q", got, tt.want)
			}
		})
	}
}
