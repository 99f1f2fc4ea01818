// Package token exchanges OAuth refresh tokens for fresh access tokens.
package token

import (
	"context"

	"github.com/shineum/mailcode-lite/internal/metrics"
)

// Result is the outcome of one refresh attempt. Implementations of
// Refresher never return a Go error; every failure is described here.
type Result struct {
	AccessToken  string
	RefreshToken string
	Success      bool

	// Error is the human-readable failure reason when Success is false.
	Error string

	// Fault is true when the failure came from the transport (network
	// error, malformed response) rather than the endpoint rejecting the
	// exchange.
	Fault bool
}

// Refresher exchanges a refresh token and client id for a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken, clientID string) Result
}

func rejected(msg string) Result {
	return Result{Error: msg}
}

func fault(msg string) Result {
	return Result{Error: msg, Fault: true}
}

// record counts the result under the given backend name.
func record(backend string, res Result) Result {
	switch {
	case res.Success:
		metrics.RecordTokenRefresh(backend, "success")
	case res.Fault:
		metrics.RecordTokenRefresh(backend, "fault")
	default:
		metrics.RecordTokenRefresh(backend, "rejected")
	}
	return res
}
