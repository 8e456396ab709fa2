package compliance

import (
	"regexp"
	"strings"
)

// DefaultSpamTerms is used when no terms are configured.
var DefaultSpamTerms = []string{"crypto", "investment", "viagra", "casino", "lottery", "prize"}

// SpamDetector flags messages containing any blocklisted term as a whole
// word, case-insensitively.
type SpamDetector struct {
	spamRegex *regexp.Regexp
}

// NewSpamDetector compiles terms into one alternation. Empty terms are
// ignored; an empty list falls back to DefaultSpamTerms.
func NewSpamDetector(terms []string) *SpamDetector {
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(strings.Join(strings.Fields(term), " ")))
	}
	if len(quoted) == 0 {
		return NewSpamDetector(DefaultSpamTerms)
	}
	pattern := `(?i)(?:^|[^\p{L}\p{N}])(?:` + strings.Join(quoted, "|") + `)(?:[^\p{L}\p{N}]|$)`
	return &SpamDetector{spamRegex: regexp.MustCompile(pattern)}
}

// IsSpam returns true when body mentions a blocklisted term.
func (d *SpamDetector) IsSpam(body string) bool {
	if d == nil || d.spamRegex == nil {
		return false
	}
	return d.spamRegex.MatchString(body)
}
