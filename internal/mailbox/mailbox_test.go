package mailbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shineum/mailcode-lite/internal/transport"
)

func newTestReader(srv *httptest.Server) *GraphReader {
	return NewGraphReader(srv.URL+"/v1.0/me/mailFolders/inbox/messages", transport.New(transport.Options{
		HTTPClient:     srv.Client(),
		MaxRetries:     -1,
		BaseRetryDelay: time.Millisecond,
	}))
}

func TestGraphReader_Read(t *testing.T) {
	t.Parallel()

	received := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			t.Errorf("Authorization header: got %q, want %q", r.Header.Get("Authorization"), "Bearer at-1")
		}
		q := r.URL.Query()
		if q.Get("$top") != "5" {
			t.Errorf("$top: got %q, want %q", q.Get("$top"), "5")
		}
		if q.Get("$orderby") != "receivedDateTime desc" {
			t.Errorf("$orderby: got %q, want %q", q.Get("$orderby"), "receivedDateTime desc")
		}
		if q.Get("$select") != selectFields {
			t.Errorf("$select: got %q, want %q", q.Get("$select"), selectFields)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(listResponse{Value: []graphMessage{
			{
				ID:               "m1",
				Subject:          "Your code is 123456",
				BodyPreview:      "Use 123456 to sign in",
				From:             &recipient{EmailAddress: emailAddress{Name: "Facebook", Address: "security@facebookmail.com"}},
				ReceivedDateTime: received,
				HasAttachments:   true,
			},
			{ID: "m2", Subject: "No sender"},
		}})
	}))
	defer srv.Close()

	msgs := newTestReader(srv).Read(context.Background(), "at-1", 5)

	if len(msgs) != 2 {
		t.Fatalf("messages: got %d, want 2", len(msgs))
	}

	m := msgs[0]
	if m.ID != "m1" {
		t.Errorf("ID: got %q, want %q", m.ID, "m1")
	}
	if m.FromAddress != "security@facebookmail.com" {
		t.Errorf("FromAddress: got %q, want %q", m.FromAddress, "security@facebookmail.com")
	}
	if m.FromName != "Facebook" {
		t.Errorf("FromName: got %q, want %q", m.FromName, "Facebook")
	}
	if !m.ReceivedAt.Equal(received) {
		t.Errorf("ReceivedAt: got %v, want %v", m.ReceivedAt, received)
	}
	if !m.HasAttachments {
		t.Error("HasAttachments: got false, want true")
	}
	if msgs[1].FromAddress != "" {
		t.Errorf("FromAddress without sender: got %q, want empty", msgs[1].FromAddress)
	}
}

func TestGraphReader_DefaultTop(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("$top"); got != "50" {
			t.Errorf("$top: got %q, want %q", got, "50")
		}
		w.Write([]byte(`{"value": []}`))
	}))
	defer srv.Close()

	msgs := newTestReader(srv).Read(context.Background(), "at", 0)
	if len(msgs) != 0 {
		t.Errorf("messages: got %d, want 0", len(msgs))
	}
}

func TestGraphReader_FailuresYieldEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(graphErrorResponse{
					Error: graphError{Code: "InvalidAuthenticationToken", Message: "Access token is empty."},
				})
			},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			msgs := newTestReader(srv).Read(context.Background(), "at", 10)
			if len(msgs) != 0 {
				t.Errorf("messages: got %d, want 0", len(msgs))
			}
		})
	}
}

func TestGraphReader_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	reader := newTestReader(srv)
	srv.Close()

	if msgs := reader.Read(context.Background(), "at", 10); len(msgs) != 0 {
		t.Errorf("messages: got %d, want 0", len(msgs))
	}
}

func TestNewGraphReader_DefaultURL(t *testing.T) {
	t.Parallel()

	r := NewGraphReader("", nil)
	if r.messagesURL != DefaultMessagesURL {
		t.Errorf("messagesURL: got %q, want %q", r.messagesURL, DefaultMessagesURL)
	}
}
