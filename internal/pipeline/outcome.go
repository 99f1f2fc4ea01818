package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shineum/mailcode-lite/internal/credential"
)

// Mode selects the branch a pipeline takes after a successful refresh.
type Mode string

const (
	ModeFetchCode     Mode = "fetch-code"
	ModeCheckLiveness Mode = "check-liveness"
	ModeRenewToken    Mode = "renew-token"
)

// ParseMode accepts the canonical mode names and their short aliases
// (code, live, renew).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fetch-code", "code":
		return ModeFetchCode, nil
	case "check-liveness", "live", "liveness":
		return ModeCheckLiveness, nil
	case "renew-token", "renew":
		return ModeRenewToken, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Status is the terminal classification of an outcome.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusUnknown Status = "UNKNOWN"
)

// NoCodeFound is the content of a fetch-code outcome when no message
// yielded a code.
const NoCodeFound = "No verification code found"

// Outcome is the terminal result for one credential. Which fields are
// meaningful depends on Mode; MarshalJSON emits only those.
type Outcome struct {
	Mode         Mode
	Email        string
	Password     string
	RefreshToken string
	ClientID     string
	Status       Status

	// fetch-code
	Code    string
	Content string
	Date    string

	// check-liveness
	IsLive bool

	// renew-token
	AccessToken string
	FullData    string

	// Error describes a failure for check-liveness and renew-token.
	Error string
}

func newOutcome(rec credential.Record, mode Mode) Outcome {
	return Outcome{
		Mode:         mode,
		Email:        rec.Email,
		Password:     rec.Password,
		RefreshToken: rec.RefreshToken,
		ClientID:     rec.ClientID,
	}
}

// Failed builds a FAILED outcome carrying msg.
func Failed(rec credential.Record, mode Mode, msg string) Outcome {
	out := newOutcome(rec, mode)
	out.Status = StatusFailed
	out.Content = msg
	out.Error = msg
	return out
}

// Unknown builds an UNKNOWN outcome carrying msg.
func Unknown(rec credential.Record, mode Mode, msg string) Outcome {
	out := newOutcome(rec, mode)
	out.Status = StatusUnknown
	out.Content = msg
	out.Error = msg
	return out
}

type codeJSON struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refreshToken"`
	ClientID     string `json:"clientId"`
	Status       Status `json:"status"`
	Code         string `json:"code,omitempty"`
	Content      string `json:"content,omitempty"`
	Date         string `json:"date,omitempty"`
}

type livenessJSON struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refreshToken"`
	ClientID     string `json:"clientId"`
	IsLive       bool   `json:"isLive"`
	Status       Status `json:"status"`
	Error        string `json:"error,omitempty"`
}

type renewJSON struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken"`
	ClientID     string `json:"clientId"`
	FullData     string `json:"fullData,omitempty"`
	Status       Status `json:"status"`
	Error        string `json:"error,omitempty"`
}

// MarshalJSON renders the code-result, liveness-result or
// token-renewal-result shape according to Mode.
func (o Outcome) MarshalJSON() ([]byte, error) {
	switch o.Mode {
	case ModeCheckLiveness:
		return json.Marshal(livenessJSON{
			Email:        o.Email,
			Password:     o.Password,
			RefreshToken: o.RefreshToken,
			ClientID:     o.ClientID,
			IsLive:       o.IsLive,
			Status:       o.Status,
			Error:        o.Error,
		})
	case ModeRenewToken:
		return json.Marshal(renewJSON{
			Email:        o.Email,
			Password:     o.Password,
			AccessToken:  o.AccessToken,
			RefreshToken: o.RefreshToken,
			ClientID:     o.ClientID,
			FullData:     o.FullData,
			Status:       o.Status,
			Error:        o.Error,
		})
	default:
		return json.Marshal(codeJSON{
			Email:        o.Email,
			Password:     o.Password,
			RefreshToken: o.RefreshToken,
			ClientID:     o.ClientID,
			Status:       o.Status,
			Code:         o.Code,
			Content:      o.Content,
			Date:         o.Date,
		})
	}
}
