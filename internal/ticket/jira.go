package ticket

import (
	"fmt"
	"regexp"
)

// DefaultIssuePattern matches Jira-style issue keys such as "ABC-123"
// when a project does not configure its own pattern.
const DefaultIssuePattern = `[A-Z][A-Z_0-9]+-\d+`

// Jira links issue keys to a Jira instance. The matcher is assembled
// from an optional literal prefix and a key-shape pattern into
// `\b<prefix>(?P<issue><pattern>)` and scanned globally over the text.
type Jira struct {
	baseURL string
	pattern *regexp.Regexp
}

// NewJira compiles a Jira integration. baseURL is the tracker root
// (links are formed as <baseURL>/browse/<key>). prefix and pattern may
// be empty, in which case no prefix is required and
// DefaultIssuePattern is used.
func NewJira(baseURL, prefix, pattern string) (*Jira, error) {
	if pattern == "" {
		pattern = DefaultIssuePattern
	}

	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(prefix) + `(?P<issue>` + pattern + `)`)
	if err != nil {
		return nil, fmt.Errorf("failed to compile issue pattern: %w", err)
	}

	return &Jira{baseURL: baseURL, pattern: re}, nil
}

// FindMatches returns every issue key in text, in order of appearance.
// Only the captured key (not the prefix) becomes the link text.
func (j *Jira) FindMatches(text string) []Match {
	indices := j.pattern.FindAllStringSubmatchIndex(text, -1)
	if len(indices) == 0 {
		return nil
	}

	group := j.pattern.SubexpIndex("issue")
	matches := make([]Match, 0, len(indices))
	for _, m := range indices {
		start, end := m[2*group], m[2*group+1]
		if start < 0 {
			continue
		}
		issue := text[start:end]
		matches = append(matches, Match{
			Text:  issue,
			Start: start,
			URL:   fmt.Sprintf("%s/browse/%s", j.baseURL, issue),
		})
	}

	return matches
}
