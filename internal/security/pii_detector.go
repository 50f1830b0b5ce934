package security

import (
	"regexp"
	"strings"
)

// PIIDetector checks questions for sensitive PII keywords
type PIIDetector struct {
	keywords []string
	patterns []*regexp.Regexp
}

// NewPIIDetector matches keywords on word boundaries, so "ssn" does not fire
// inside "lessons".
func NewPIIDetector(keywords []string) *PIIDetector {
	d := &PIIDetector{}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		d.keywords = append(d.keywords, k)
		d.patterns = append(d.patterns, regexp.MustCompile(`\b`+regexp.QuoteMeta(k)+`\b`))
	}
	return d
}

// Detect returns true and the matched keyword if PII is found in text
func (d *PIIDetector) Detect(text string) (bool, string) {
	lower := strings.ToLower(text)
	for i, re := range d.patterns {
		if re.MatchString(lower) {
			return true, d.keywords[i]
		}
	}
	return false, ""
}
