// Package extract classifies mailbox messages by sender and subject and
// pulls numeric verification codes out of them.
package extract

import "strings"

// AutoType matches every message regardless of sender.
const AutoType = "Auto"

// PatternSet maps a lower-cased type name to lower-cased substrings that
// identify messages of that type.
type PatternSet map[string][]string

// DefaultPatterns is the built-in type table. Treat it as read-only.
var DefaultPatterns = NewPatternSet(map[string][]string{
	"facebook":  {"facebookmail.com", "facebook"},
	"instagram": {"instagram"},
	"google":    {"google.com", "google"},
	"microsoft": {"microsoft", "accountprotection", "outlook"},
	"twitter":   {"twitter", "@x.com"},
	"tiktok":    {"tiktok"},
	"amazon":    {"amazon"},
	"apple":     {"apple.com", "apple id"},
	"discord":   {"discord"},
	"telegram":  {"telegram"},
	"netflix":   {"netflix"},
	"linkedin":  {"linkedin"},
})

// NewPatternSet builds a PatternSet, normalising names and patterns to
// lower case and dropping empty patterns.
func NewPatternSet(raw map[string][]string) PatternSet {
	set := make(PatternSet, len(raw))
	for name, patterns := range raw {
		key := normalize(name)
		if key == "" {
			continue
		}
		for _, p := range patterns {
			if p = normalize(p); p != "" {
				set[key] = append(set[key], p)
			}
		}
	}
	return set
}

// Merge returns a new PatternSet containing p overlaid with extra. Types
// present in extra replace the same types in p.
func (p PatternSet) Merge(extra PatternSet) PatternSet {
	merged := make(PatternSet, len(p)+len(extra))
	for name, patterns := range p {
		merged[name] = patterns
	}
	for name, patterns := range extra {
		merged[name] = patterns
	}
	return merged
}

// Types returns the type names in the set.
func (p PatternSet) Types() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	return names
}

// Matches reports whether a message from fromAddress with the given
// subject belongs to any of the requested types. An empty type list, or
// one containing AutoType, matches everything.
func (p PatternSet) Matches(fromAddress, subject string, types []string) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if strings.EqualFold(strings.TrimSpace(t), AutoType) {
			return true
		}
	}

	haystack := strings.ToLower(fromAddress + subject)
	for _, t := range types {
		for _, pattern := range p[normalize(t)] {
			if strings.Contains(haystack, pattern) {
				return true
			}
		}
	}
	return false
}

// CleanTypes trims a requested type list and drops blank entries. A list
// that ends up empty means no filter.
func CleanTypes(types []string) []string {
	var out []string
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Matches applies DefaultPatterns.
func Matches(fromAddress, subject string, types []string) bool {
	return DefaultPatterns.Matches(fromAddress, subject, types)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
