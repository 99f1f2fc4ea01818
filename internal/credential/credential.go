// Package credential parses pipe-delimited mailbox credential lines.
package credential

import "strings"

// DefaultClientID is the OAuth client id used when a line carries only
// email, password and refresh token.
const DefaultClientID = "9e5f94bc-e8a4-4e73-b8be-63364c29d753"

// minFields is the number of non-empty fields a line needs to be usable.
const minFields = 3

// Record is one mailbox credential. It is passed by value and never
// modified after parsing.
type Record struct {
	Email        string
	Password     string
	RefreshToken string
	ClientID     string
}

// Parse turns one "email|password|refreshToken[|clientId]" line into a
// Record. Empty fields are discarded before positions are assigned, and
// lines left with fewer than three fields are rejected. An empty
// defaultClientID falls back to DefaultClientID.
func Parse(line, defaultClientID string) (Record, bool) {
	var fields []string
	for _, f := range strings.Split(line, "|") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}

	if len(fields) < minFields {
		return Record{}, false
	}

	if defaultClientID == "" {
		defaultClientID = DefaultClientID
	}

	rec := Record{
		Email:        fields[0],
		Password:     fields[1],
		RefreshToken: fields[2],
		ClientID:     defaultClientID,
	}
	if len(fields) >= 4 {
		rec.ClientID = fields[3]
	}

	return rec, true
}

// ParseLines parses every line in order, silently dropping the ones
// Parse rejects.
func ParseLines(lines []string, defaultClientID string) []Record {
	records := make([]Record, 0, len(lines))
	for _, line := range lines {
		if rec, ok := Parse(line, defaultClientID); ok {
			records = append(records, rec)
		}
	}
	return records
}

// FullData renders the record back into its pipe-delimited form.
func (r Record) FullData() string {
	return strings.Join([]string{r.Email, r.Password, r.RefreshToken, r.ClientID}, "|")
}
