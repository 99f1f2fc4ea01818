package extract

import (
	"regexp"
	"time"

	"github.com/shineum/mailcode-lite/internal/mailbox"
)

// DateLayout renders a receipt time as "HH:MM - DD/MM/YYYY".
const DateLayout = "15:04 - 02/01/2006"

var codePattern = regexp.MustCompile(`\d{5,10}`)

// Extraction is a verification code found in a message.
type Extraction struct {
	Code    string
	Content string
	Date    string
}

// ExtractCode returns the first run of 5 to 10 consecutive digits in text.
// Longer runs yield their first 10 digits.
func ExtractCode(text string) (string, bool) {
	code := codePattern.FindString(text)
	return code, code != ""
}

// Extractor finds the newest matching verification code in a message list.
type Extractor struct {
	patterns PatternSet
	loc      *time.Location
}

// NewExtractor creates an Extractor. A nil pattern set selects
// DefaultPatterns and a nil location selects time.Local.
func NewExtractor(patterns PatternSet, loc *time.Location) *Extractor {
	if patterns == nil {
		patterns = DefaultPatterns
	}
	if loc == nil {
		loc = time.Local
	}
	return &Extractor{patterns: patterns, loc: loc}
}

// Find walks messages in the given order (newest first as delivered by the
// mailbox reader) and returns the first code found in the subject of a
// message matching types, or nil.
func (e *Extractor) Find(messages []mailbox.Message, types []string) *Extraction {
	for _, msg := range messages {
		if !e.patterns.Matches(msg.FromAddress, msg.Subject, types) {
			continue
		}
		code, ok := ExtractCode(msg.Subject)
		if !ok {
			continue
		}
		return &Extraction{
			Code:    code,
			Content: msg.Subject,
			Date:    msg.ReceivedAt.In(e.loc).Format(DateLayout),
		}
	}
	return nil
}
